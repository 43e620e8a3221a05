package extract

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// docxText streams word/document.xml and emits one paragraph per w:p element.
func docxText(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, docxBody) {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("no %s in archive", docxBody)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(bufio.NewReader(rc))
	var (
		b      strings.Builder
		inText bool
		tokens int
	)
	for {
		tokens++
		if tokens%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return "", fmt.Errorf("decode token: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br", "cr":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}
}

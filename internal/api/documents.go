package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/analysis"
	"lexplain/backend/internal/cache"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/extract"
	"lexplain/backend/internal/lang"
	"lexplain/backend/internal/store"
)

// statusClientClosed is reported when the caller went away mid-analysis.
const statusClientClosed = 499

// DocumentResponse pairs the stored record with the requested bundle.
type DocumentResponse struct {
	Document *DocumentDTO    `json:"document"`
	Bundle   document.Bundle `json:"bundle"`
}

// analysisInput is a request normalized from either a JSON body or an upload.
type analysisInput struct {
	text     string
	language string
	filename string
	mimeType string
}

// readInput accepts a multipart upload in the "file" field or a JSON AnalyzeRequest.
func (s *Server) readInput(c *gin.Context) (analysisInput, int, error) {
	var in analysisInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return in, http.StatusBadRequest, errors.New("file is required")
			}
			return in, http.StatusBadRequest, err
		}
		if header.Size > int64(s.maxUpload) {
			return in, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", s.maxUpload)
		}
		f, err := header.Open()
		if err != nil {
			return in, http.StatusInternalServerError, err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, int64(s.maxUpload)+1))
		if err != nil {
			return in, http.StatusBadRequest, err
		}
		in.filename = header.Filename
		in.mimeType = header.Header.Get("Content-Type")
		in.language = firstNonEmpty(c.PostForm("language"), c.Query("lang"))

		text, err := s.extractor.Extract(c.Request.Context(), data, in.mimeType)
		if err != nil {
			return in, extractionStatus(err), err
		}
		in.text = text
	} else {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return in, http.StatusBadRequest, err
		}
		in.text = req.Text
		in.language = firstNonEmpty(req.Language, c.Query("lang"))
		in.filename = req.Filename
		in.mimeType = extract.MimePlain
	}

	if strings.TrimSpace(in.text) == "" {
		return in, http.StatusBadRequest, errors.New("text is required")
	}
	if strings.TrimSpace(in.language) != "" {
		code, ok := lang.Normalize(in.language)
		if !ok {
			return in, http.StatusBadRequest, fmt.Errorf("unsupported language %q", in.language)
		}
		in.language = code
	}
	return in, 0, nil
}

func extractionStatus(err error) int {
	switch {
	case errors.Is(err, extract.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusClientClosed
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleAnalyze(c *gin.Context) {
	in, status, err := s.readInput(c)
	if err != nil {
		s.renderError(c, status, err)
		return
	}

	report, err := s.pipeline.Analyze(c.Request.Context(), analysis.Request{
		Filename: in.filename,
		MimeType: in.mimeType,
		Text:     in.text,
		Language: in.language,
	})
	if err != nil {
		switch {
		case errors.Is(err, analysis.ErrEmptyText):
			s.renderError(c, http.StatusBadRequest, err)
		case errors.Is(err, context.Canceled):
			s.renderError(c, statusClientClosed, err)
		default:
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, FromReport(report))
}

func (s *Server) handleListDocuments(c *gin.Context) {
	page := max(0, queryInt(c, "page", 0))
	pageSize := queryInt(c, "pageSize", 25)
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 25
	}

	rows, total, err := s.db.ListDocuments(store.DocumentQuery{
		Query:    c.Query("q"),
		Language: c.Query("language"),
		Risk:     c.Query("risk"),
		Sort:     c.Query("sort"),
		Offset:   page * pageSize,
		Limit:    pageSize,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	items := make([]DocumentDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, DocumentFromModel(row))
	}
	c.JSON(http.StatusOK, DocumentsResponse{Items: items, Total: total})
}

// handleGetDocument serves the cached bundle, translating it when ?lang= names a
// language that differs from the document's own.
func (s *Server) handleGetDocument(c *gin.Context) {
	docID := strings.TrimSpace(c.Param("id"))
	tc := s.pipeline.Cache()
	if tc == nil {
		s.renderError(c, http.StatusServiceUnavailable, errors.New("result cache unavailable"))
		return
	}

	var record *DocumentDTO
	if row, err := s.db.GetDocument(docID); err == nil {
		dto := DocumentFromModel(*row)
		record = &dto
	} else if !errors.Is(err, store.ErrNotFound) {
		logrus.WithError(err).WithField("document_id", docID).Warn("load document record")
	}

	ctx := c.Request.Context()
	bundle, err := tc.Source(ctx, docID)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			msg := fmt.Errorf("document %s not found", docID)
			if record != nil {
				msg = fmt.Errorf("results for document %s have expired; analyze it again", docID)
			}
			s.renderError(c, http.StatusNotFound, msg)
			return
		}
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	if requested := strings.TrimSpace(c.Query("lang")); requested != "" {
		target, ok := lang.Normalize(requested)
		if !ok {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("unsupported language %q", requested))
			return
		}
		if target != bundle.Language {
			bundle = tc.TranslateIfMissing(ctx, docID, target, bundle)
		}
	}
	c.JSON(http.StatusOK, DocumentResponse{Document: record, Bundle: bundle})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

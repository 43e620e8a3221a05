package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lexplain/backend/internal/analysis"
	"lexplain/backend/internal/app"
	"lexplain/backend/internal/config"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/extract"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

type analyzeOptions struct {
	language string
	noAI     bool
	format   string
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lexplain",
		Short:         "Explain legal and financial agreements clause by clause",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	cmd.AddCommand(newAnalyzeCmd(opts))
	return cmd
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a document and print its clauses, risks and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), root, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "language of the output (ISO 639-1); defaults to the document's")
	cmd.Flags().BoolVar(&opts.noAI, "no-ai", false, "skip the generative service and use static explanations")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json or markdown")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall analysis deadline (defaults to the configured one)")
	return cmd
}

func runAnalyze(ctx context.Context, out io.Writer, root *rootOptions, opts *analyzeOptions, path string) error {
	format := strings.ToLower(strings.TrimSpace(opts.format))
	if format != "json" && format != "markdown" {
		return fmt.Errorf("unsupported format %q (must be json or markdown)", opts.format)
	}

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
	}
	cfg.Log.ConfigureLogging()
	logrus.SetOutput(os.Stderr)
	if opts.noAI {
		cfg.AI.Disabled = true
	}
	if opts.timeout > 0 {
		cfg.Pipeline.Deadline = opts.timeout
	}

	services, err := app.New(cfg, app.Options{Ephemeral: true})
	if err != nil {
		return err
	}
	defer services.Close()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	mimeType := typeByExtension(path)

	if ctx == nil {
		ctx = context.Background()
	}
	text, err := services.Extractor.Extract(ctx, data, mimeType)
	if err != nil {
		return err
	}
	report, err := services.Pipeline.Analyze(ctx, analysis.Request{
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Text:     text,
		Language: opts.language,
	})
	if err != nil {
		return err
	}

	if format == "markdown" {
		_, err = io.WriteString(out, renderMarkdown(report))
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// typeByExtension maps the extensions the extractor understands. Anything else
// is left empty so the extractor sniffs the content.
func typeByExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text":
		return extract.MimePlain
	case ".md", ".markdown":
		return extract.MimeMarkdown
	case ".html", ".htm":
		return extract.MimeHTML
	case ".docx":
		return extract.MimeDOCX
	}
	return ""
}

func renderMarkdown(report *analysis.Report) string {
	var b strings.Builder
	bundle := report.Bundle
	fmt.Fprintf(&b, "# Document %s\n\n", bundle.DocumentID)
	fmt.Fprintf(&b, "Overall risk: **%s** (language: %s)\n\n", report.Overall.Category, bundle.Language)
	b.WriteString(strings.TrimSpace(bundle.Summary))
	b.WriteString("\n\n# Clauses\n")
	for _, clause := range bundle.Clauses {
		fmt.Fprintf(&b, "\n## %d. %s, %s risk (%d/5)\n\n", clause.Index+1, clause.Type, clause.RiskCategory, clause.RiskScore)
		fmt.Fprintf(&b, "> %s\n\n%s\n", document.Truncate(clause.Text, 300), clause.Explanation)
		for _, q := range clause.SuggestedQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	if len(bundle.SuggestedQuestions) > 0 {
		b.WriteString("\n# Questions to ask\n\n")
		for _, q := range bundle.SuggestedQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	return b.String()
}

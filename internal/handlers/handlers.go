// Package handlers ships a minimal set of built-in document handlers so the
// docforge binary is useful out of the box. Embedding callers typically
// replace these with their own via processor.HandlerRegistry.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/processor"
)

// RegisterDefaults installs the built-in handlers for every job type.
func RegisterDefaults(reg *processor.HandlerRegistry) {
	reg.Register(domain.JobTypeParse, processor.HandlerFunc(parseHandler))
	reg.Register(domain.JobTypeAnalyze, processor.HandlerFunc(analyzeHandler))
	reg.Register(domain.JobTypeValidate, processor.HandlerFunc(validateHandler))
	reg.Register(domain.JobTypeExport, processor.HandlerFunc(exportHandler))
}

func readInput(job *domain.Job) ([]byte, error) {
	data, err := os.ReadFile(job.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

func lenient(job *domain.Job) bool {
	return job.Metadata["lenient"] == "true" || job.Metadata["strict_validation"] == "disabled"
}

// parseHandler checks the document is well formed for its declared type.
func parseHandler(ctx context.Context, job *domain.Job, report processor.ProgressFunc) (any, error) {
	data, err := readInput(job)
	if err != nil {
		return nil, err
	}
	report(domain.Progress{Percentage: 50, Stage: "parsing"})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch strings.ToLower(job.FileType) {
	case "xml", "xliff":
		if err := checkXML(data); err != nil && !lenient(job) {
			return nil, fmt.Errorf("parse error: invalid xml: %w", err)
		}
	case "json":
		if !json.Valid(data) && !lenient(job) {
			return nil, fmt.Errorf("parse error: malformed json document")
		}
	}

	return map[string]any{"bytes": len(data), "parser": job.Metadata["parser"]}, nil
}

func checkXML(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// analyzeHandler computes cheap document statistics.
func analyzeHandler(ctx context.Context, job *domain.Job, report processor.ProgressFunc) (any, error) {
	if job.Metadata["skip_analysis"] == "true" {
		return map[string]any{"skipped": true}, nil
	}

	data, err := readInput(job)
	if err != nil {
		return nil, err
	}
	report(domain.Progress{Percentage: 50, Stage: "analyzing"})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := len(strings.Fields(string(data)))
	lines := bytes.Count(data, []byte("\n")) + 1
	return map[string]any{"words": words, "lines": lines, "bytes": len(data)}, nil
}

// validateHandler runs encoding and size checks.
func validateHandler(ctx context.Context, job *domain.Job, report processor.ProgressFunc) (any, error) {
	if job.Metadata["skip_validation"] == "true" || job.Metadata["skip_content_validation"] == "true" {
		return map[string]any{"skipped": true}, nil
	}

	data, err := readInput(job)
	if err != nil {
		return nil, err
	}
	report(domain.Progress{Percentage: 50, Stage: "validating"})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("validation failed: malformed empty document")
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("validation failed: invalid utf-8 encoding")
	}
	return map[string]any{"valid": true, "bytes": len(data)}, nil
}

// exportHandler writes a JSON summary next to the input.
func exportHandler(ctx context.Context, job *domain.Job, report processor.ProgressFunc) (any, error) {
	data, err := readInput(job)
	if err != nil {
		return nil, err
	}
	report(domain.Progress{Percentage: 50, Stage: "exporting"})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := job.FileName + ".export.json"
	summary, _ := json.Marshal(map[string]any{
		"source": job.FileName,
		"bytes":  len(data),
		"tags":   job.Tags,
	})
	if err := os.WriteFile(out, summary, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	return map[string]any{"output": out}, nil
}

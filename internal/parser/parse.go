package parser

import (
	"fmt"
	"strings"

	"tablesync/internal/apperr"
	"tablesync/internal/value"
)

// Result is a parsed document together with the format that produced it.
type Result struct {
	Format Format
	Value  value.Value
}

// Parse parses text as format. FormatAuto (or "") runs DetectFormat first.
//
// Errors are *apperr.AppError with code ErrFormat or ErrUnsupportedFormat and
// a message meant to be shown to the user as is.
func Parse(text string, format Format) (Result, error) {
	if format == "" || format == FormatAuto {
		format = DetectFormat(text)
	}

	switch format {
	case FormatJSON:
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return Result{Format: format, Value: value.List()}, nil
		}
		v, err := value.ParseJSONString(trimmed)
		if err != nil {
			return Result{Format: format}, apperr.Wrap(apperr.ErrFormat, "JSON parse failed", err)
		}
		return Result{Format: format, Value: v}, nil

	case FormatYAML:
		return Result{Format: format, Value: ParseYAML(text)}, nil

	case FormatTSV:
		rows, err := ParseDelimited(text, '\t')
		if err != nil {
			return Result{Format: format}, apperr.Wrap(apperr.ErrFormat, "TSV parse failed", err)
		}
		return Result{Format: format, Value: rows}, nil

	case FormatLog:
		return Result{Format: format, Value: ParseLogLines(text)}, nil

	case FormatHTML:
		v, err := ParseHTMLTables(text)
		if err != nil {
			return Result{Format: format}, apperr.Wrap(apperr.ErrFormat, "HTML parse failed", err)
		}
		return Result{Format: format, Value: v}, nil

	case FormatXML:
		return Result{Format: format}, apperr.New(apperr.ErrUnsupportedFormat,
			"XML input is not supported, convert it to JSON, YAML, TSV or log lines")
	}
	return Result{Format: format}, apperr.New(apperr.ErrFormat, fmt.Sprintf("unknown format %q", format))
}

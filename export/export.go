package export

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/ports"
)

// Format selects the export file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatDual Format = "dual"
)

// ParseFormat accepts csv, json (or jsonl) and dual.
func ParseFormat(text string) (Format, error) {
	switch text {
	case "csv":
		return FormatCSV, nil
	case "json", "jsonl":
		return FormatJSON, nil
	case "dual":
		return FormatDual, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, json or dual)", text)
	}
}

// NewFileWriter opens the writer for format under dir, naming files
// <base>.csv and <base>.jsonl.
func NewFileWriter(format Format, dir, base string) (Writer, error) {
	csvPath := filepath.Join(dir, base+".csv")
	jsonPath := filepath.Join(dir, base+".jsonl")
	switch format {
	case FormatCSV:
		return NewCSVWriter(csvPath)
	case FormatJSON:
		return NewJSONWriter(jsonPath)
	case FormatDual:
		return NewDualWriter(csvPath, jsonPath)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Querier is the part of the store an export reads from.
type Querier interface {
	Query(ctx context.Context, filter models.PropertyFilter, offset, limit int) ([]models.Property, int, error)
}

var _ Querier = ports.Store(nil)

// FromStore pages through every listing matching filter and feeds it to p.
// It returns the number of records read.
func FromStore(ctx context.Context, src Querier, filter models.PropertyFilter, pageSize int, p *Pipeline) (int, error) {
	if pageSize <= 0 {
		pageSize = models.MaxPageSize
	}
	read := 0
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return read, err
		}
		rows, total, err := src.Query(ctx, filter, offset, pageSize)
		if err != nil {
			return read, fmt.Errorf("query offset %d: %w", offset, err)
		}
		if err := p.Process(rows...); err != nil {
			return read, err
		}
		read += len(rows)
		if len(rows) == 0 || offset+len(rows) >= total {
			return read, nil
		}
	}
}

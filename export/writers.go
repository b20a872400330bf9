package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// CSVHeader is the column order of CSV exports.
var CSVHeader = []string{
	"source_name", "source_listing_id", "listing_type", "address", "suburb", "state", "postcode",
	"property_type", "bedrooms", "bathrooms", "parking", "price_display", "price_amount",
	"frequency", "agent", "agency", "source_url", "provenance", "confidence", "scraped_at", "last_updated",
}

// csvRecord flattens p into CSVHeader order. Unknown numbers are empty cells.
func csvRecord(p models.Property) []string {
	return []string{
		p.SourceName,
		p.SourceListingID,
		string(p.ListingType),
		p.Address.Display,
		p.Address.Suburb,
		p.Address.State,
		p.Address.Postcode,
		string(p.Details.PropertyType),
		intCell(p.Details.Bedrooms),
		intCell(p.Details.Bathrooms),
		intCell(p.Details.Parking),
		p.Price.Display,
		floatCell(p.Price.Amount),
		string(p.Price.Frequency),
		p.Contact.AgentName,
		p.Contact.AgencyName,
		p.Metadata.SourceURL,
		string(p.Metadata.Provenance),
		strconv.FormatFloat(p.Metadata.Confidence, 'f', 2, 64),
		timeCell(p.Metadata.ScrapedAt),
		timeCell(p.Metadata.LastUpdated),
	}
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func timeCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteCSV writes a header and one row per record to w.
func WriteCSV(w io.Writer, records []models.Property) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range records {
		if err := cw.Write(csvRecord(p)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONL writes one JSON document per line to w.
func WriteJSONL(w io.Writer, records []models.Property) error {
	enc := json.NewEncoder(w)
	for _, p := range records {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	return nil
}

// CSVWriter writes records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	rows   int
	mu     sync.Mutex
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{file: f, writer: writer}, nil
}

func (cw *CSVWriter) Write(records []models.Property) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, p := range records {
		if err := cw.writer.Write(csvRecord(p)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate fails when no row was written after the header.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.rows == 0 {
		return fmt.Errorf("csv file %s has no records", cw.file.Name())
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records to a file.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	rows    int
	mu      sync.Mutex
}

// NewJSONWriter creates filename for JSONL output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

func (jw *JSONWriter) Write(records []models.Property) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, p := range records {
		if err := jw.encoder.Encode(p); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate fails when no record was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.rows == 0 {
		return fmt.Errorf("json file %s has no records", jw.file.Name())
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

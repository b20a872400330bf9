package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/aluiziolira/go-scrape-rentals/store"
)

var scrapedAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func listing(id string) models.Property {
	price := 650.0
	beds := 2
	return models.Property{
		SourceListingID: id,
		SourceName:      "domain.com.au",
		ListingType:     models.ListingRent,
		Address:         models.Address{Display: id + " King St", Suburb: "Newtown", State: "NSW", Postcode: "2042"},
		Price:           models.Price{Display: "$650 per week", Amount: &price, Frequency: models.FrequencyWeekly},
		Details:         models.Details{PropertyType: models.PropertyApartment, Bedrooms: &beds},
		Metadata:        models.Metadata{ScrapedAt: scrapedAt, LastUpdated: scrapedAt, Provenance: models.ProvenanceStructured, Confidence: 1},
	}
}

type mockWriter struct {
	mu       sync.Mutex
	batches  [][]models.Property
	writeErr error
}

func (mw *mockWriter) Write(records []models.Property) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	batch := make([]models.Property, len(records))
	copy(batch, records)
	mw.batches = append(mw.batches, batch)
	return nil
}

func (mw *mockWriter) Close() error    { return nil }
func (mw *mockWriter) Validate() error { return nil }

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, b := range mw.batches {
		total += len(b)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, b := range mw.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func TestPipelineDropsKeylessAndDuplicateRecords(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 10, nil)
	p.Start(1)

	keyless := listing("")
	if err := p.Process(listing("1"), keyless, listing("1")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written = %d, want 1", got)
	}
	stats := p.Stats()
	if stats.Written != 1 || stats.Invalid != 1 || stats.Duplicates != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer, 64, nil)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(listing(strconv.Itoa(i))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 || sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := NewPipeline(&mockWriter{}, 0, nil)
	p.Start(2)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(listing("1")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineWriteErrorSurfaces(t *testing.T) {
	boom := errors.New("disk full")
	p := NewPipeline(&mockWriter{writeErr: boom}, 1, nil)
	p.Start(1)
	_ = p.Process(listing("1"))
	if err := p.Close(); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestFromStorePagesThroughEveryMatch(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemory()
	var batch []models.Property
	for i := 0; i < 7; i++ {
		batch = append(batch, listing(strconv.Itoa(i)))
	}
	other := listing("vic")
	other.Address.State = "VIC"
	batch = append(batch, other)
	if err := src.UpsertMany(ctx, batch); err != nil {
		t.Fatalf("seed: %v", err)
	}

	writer := &mockWriter{}
	p := NewPipeline(writer, 3, nil)
	p.Start(1)
	read, err := FromStore(ctx, src, models.PropertyFilter{State: "NSW"}, 3, p)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if read != 7 || writer.totalWritten() != 7 {
		t.Fatalf("read=%d written=%d, want 7", read, writer.totalWritten())
	}
}

func TestFromStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPipeline(&mockWriter{}, 1, nil)
	if _, err := FromStore(ctx, store.NewMemory(), models.PropertyFilter{}, 10, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatal("expected validate to fail before any row")
	}
	if err := writer.Write([]models.Property{listing("1")}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "source_name" || records[1][1] != "1" {
		t.Fatalf("unexpected rows: %v", records)
	}
	// parking is unknown and renders as an empty cell
	if records[1][10] != "" || records[1][8] != "2" {
		t.Fatalf("unexpected numeric cells: %v", records[1])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.jsonl")
	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]models.Property{listing("1"), listing("2")}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		var p models.Property
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			t.Fatalf("decode line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines=%d, want 2", lines)
	}
}

func TestDualWriterWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(FormatDual, dir, "export")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Write([]models.Property{listing("1")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, name := range []string{"export.csv", "export.jsonl"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty: %v", name, err)
		}
	}
}

func TestWriteCSVToBuffer(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, []models.Property{listing("1")}); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || len(rows[1]) != len(CSVHeader) {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][12] != "650" || rows[1][19] != "2025-03-01T09:00:00Z" {
		t.Fatalf("unexpected row: %v", rows[1])
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: "json", want: FormatJSON},
		{in: "jsonl", want: FormatJSON},
		{in: "dual", want: FormatDual},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

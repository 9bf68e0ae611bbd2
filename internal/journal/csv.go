package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/scitrue/internal/model"
)

// CSVLookup serves metrics from a SCImago journal ranking export
// (semicolon separated, header row with Title, SJR, Country and H index)
type CSVLookup struct {
	byName map[string]Record
}

// NewCSVLookup loads the export at path into memory
func NewCSVLookup(path string) (*CSVLookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal rankings: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadCSV(f)
}

// ReadCSV parses a SCImago export. The first row for a title wins.
func ReadCSV(r io.Reader) (*CSVLookup, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{"Title", "SJR", "Country", "H index"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("journal rankings: missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	lookup := &CSVLookup{byName: make(map[string]Record)}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		rec := Record{
			Title:   field(row, "Title"),
			SJR:     field(row, "SJR"),
			Country: field(row, "Country"),
			HIndex:  field(row, "H index"),
		}
		key := NormalizeName(rec.Title)
		if key == "" {
			continue
		}
		if _, seen := lookup.byName[key]; !seen {
			lookup.byName[key] = rec
		}
	}

	return lookup, nil
}

func (c *CSVLookup) Lookup(_ context.Context, name string) (*model.MetricsBlock, error) {
	rec, ok := c.byName[NormalizeName(name)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Block(), nil
}

// Len returns the number of journals loaded
func (c *CSVLookup) Len() int {
	return len(c.byName)
}

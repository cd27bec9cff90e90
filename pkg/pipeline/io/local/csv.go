package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Record is one CSV row keyed by lowercased, trimmed header name.
type Record map[string]string

// Get returns the value for col, or "" if the column is absent.
func (r Record) Get(col string) string {
	return r[strings.ToLower(strings.TrimSpace(col))]
}

// ReadRecordsCSV reads a headered CSV. Header matching is case-insensitive and
// every column in required must be present. Short rows yield empty values.
func ReadRecordsCSV(r io.Reader, required ...string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, name := range required {
		if _, ok := index[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var out []Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(Record, len(index))
		for name, i := range index {
			if i < len(rec) {
				row[name] = rec[i]
			} else {
				row[name] = ""
			}
		}
		out = append(out, row)
	}
}

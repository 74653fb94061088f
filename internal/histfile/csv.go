package histfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"ratingrisk/internal/hazard"
)

// ReadCSV parses a state-history table from r
func ReadCSV(r io.Reader) ([]hazard.StateHistoryRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return parseRows(rows)
}

// LoadCSV reads a state-history CSV file from disk
func LoadCSV(path string) ([]hazard.StateHistoryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

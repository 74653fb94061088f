// Package histfile loads rating state histories from delimited files.
// It supports CSV and xlsx workbooks with the same tabular layout: an
// entity_id column, a date column, a rating column, and any number of
// numeric covariate columns. Parsing is strict; a bad cell fails the load
// with its row number rather than producing a silently truncated corpus.
package histfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ratingrisk/internal/hazard"
)

const (
	entityColumn = "entity_id"
	dateColumn   = "date"
	ratingColumn = "rating"

	dateLayout = "2006-01-02"
)

// header maps the layout of one file's columns
type header struct {
	entity     int
	date       int
	rating     int
	covariates map[string]int
}

func parseHeader(row []string) (*header, error) {
	h := &header{entity: -1, date: -1, rating: -1, covariates: make(map[string]int)}
	for i, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch name {
		case entityColumn:
			h.entity = i
		case dateColumn:
			h.date = i
		case ratingColumn:
			h.rating = i
		case "":
			// skip unnamed columns
		default:
			h.covariates[name] = i
		}
	}
	var missing []string
	for name, idx := range map[string]int{
		entityColumn: h.entity,
		dateColumn:   h.date,
		ratingColumn: h.rating,
	} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("header missing required columns: %s", strings.Join(missing, ", "))
	}
	return h, nil
}

// parseRow converts one data row. rowNum is 1-based including the header,
// for error messages that match what the user sees in a spreadsheet.
func (h *header) parseRow(row []string, rowNum int) (hazard.StateHistoryRecord, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var rec hazard.StateHistoryRecord

	rec.EntityID = cell(h.entity)
	if rec.EntityID == "" {
		return rec, fmt.Errorf("row %d: empty entity_id", rowNum)
	}

	date, err := time.Parse(dateLayout, cell(h.date))
	if err != nil {
		return rec, fmt.Errorf("row %d: bad date %q: %w", rowNum, cell(h.date), err)
	}
	rec.Date = date

	grade, err := hazard.ParseGrade(cell(h.rating))
	if err != nil {
		return rec, fmt.Errorf("row %d: %w", rowNum, err)
	}
	rec.Grade = grade

	rec.Covariates = make(map[string]float64, len(h.covariates))
	for name, idx := range h.covariates {
		raw := cell(idx)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, fmt.Errorf("row %d: covariate %s: bad value %q: %w", rowNum, name, raw, err)
		}
		rec.Covariates[name] = v
	}
	return rec, nil
}

// parseRows converts a full table, header first. Blank rows are skipped.
func parseRows(rows [][]string) ([]hazard.StateHistoryRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	h, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}

	var records []hazard.StateHistoryRecord
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec, err := h.parseRow(row, i+2)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

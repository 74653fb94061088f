package histfile

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"ratingrisk/internal/hazard"
)

// LoadXLSX reads a state-history table from an xlsx workbook. When sheet is
// empty the first sheet in the workbook is used.
func LoadXLSX(path, sheet string) ([]hazard.StateHistoryRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s of %s: %w", sheet, path, err)
	}

	records, err := parseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/expertshelf/hub/internal/api/validation"
	"github.com/expertshelf/hub/internal/models"
)

var (
	errMissingColumn = errors.New("missing required column")
	errEmptyCatalog  = errors.New("catalog file has no data rows")
)

var catalogColumns = []string{
	"broad_label",
	"specific_label",
	"contributor_name",
	"contributor_role",
	"title",
	"description",
}

// readCatalog parses a catalog CSV. The first row is a header naming the columns; column order
// is free and unknown columns are ignored. Every data row is trimmed and validated.
func readCatalog(r io.Reader) ([]models.CatalogRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errEmptyCatalog
	}

	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	for _, col := range catalogColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", errMissingColumn, col)
		}
	}

	var rows []models.CatalogRow

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if isBlank(record) {
			continue
		}

		field := func(col string) string {
			i := index[col]
			if i >= len(record) {
				return ""
			}

			return strings.TrimSpace(record[i])
		}

		row := models.CatalogRow{
			BroadLabel:      field("broad_label"),
			SpecificLabel:   field("specific_label"),
			ContributorName: field("contributor_name"),
			ContributorRole: field("contributor_role"),
			Title:           field("title"),
			Description:     field("description"),
		}

		if err := validation.ValidateStruct(&row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errEmptyCatalog
	}

	return rows, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}

	return true
}

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
)

type row struct {
	Line  int
	Place model.Place
}

var requiredColumns = []string{"name", "category", "lat", "lng"}

// parseRows reads a CSV whose first record names the columns. Columns may
// appear in any order; unknown ones are ignored.
func parseRows(r io.Reader) ([]row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		p := model.Place{
			Name:        field("name"),
			Category:    model.Category(strings.ToLower(field("category"))),
			City:        field("city"),
			Address:     field("address"),
			Description: field("description"),
			Phone:       field("phone"),
			Website:     field("website"),
		}
		if p.Lat, err = strconv.ParseFloat(field("lat"), 64); err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", line, err)
		}
		if p.Lng, err = strconv.ParseFloat(field("lng"), 64); err != nil {
			return nil, fmt.Errorf("line %d: lng: %w", line, err)
		}
		if v := field("verified"); v != "" {
			if p.Verified, err = strconv.ParseBool(v); err != nil {
				return nil, fmt.Errorf("line %d: verified: %w", line, err)
			}
		}
		out = append(out, row{Line: line, Place: p})
	}
	return out, nil
}

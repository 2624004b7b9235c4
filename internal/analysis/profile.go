// Package analysis derives data-file summaries and turns raw completion text
// into normalized assistant messages.
package analysis

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datadrive/analysis-backend/internal"
)

// dateLayouts are the formats a column value may use and still count as a
// date. Checked in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"Jan 2, 2006",
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func isNumeric(v any) bool {
	switch t := v.(type) {
	case float64, float32, int, int64, json.Number:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return err == nil
	}
	return false
}

func isDate(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Summarize classifies every column as numeric, date or text and counts
// missing values and duplicate rows. A column is numeric (or date) only if
// every present value in it parses as such; columns with no present values
// fall back to text. The three sets are disjoint and cover all columns.
func Summarize(columns []string, rows []map[string]any) *internal.DataSummary {
	sum := &internal.DataSummary{
		RowCount:       len(rows),
		NumericColumns: []string{},
		DateColumns:    []string{},
		TextColumns:    []string{},
	}

	for _, col := range columns {
		numeric, date := true, true
		present := 0
		for _, row := range rows {
			v := row[col]
			if isMissing(v) {
				sum.MissingValueCount++
				continue
			}
			present++
			if numeric && !isNumeric(v) {
				numeric = false
			}
			if date && !isDate(v) {
				date = false
			}
		}
		switch {
		case present > 0 && numeric:
			sum.NumericColumns = append(sum.NumericColumns, col)
		case present > 0 && date:
			sum.DateColumns = append(sum.DateColumns, col)
		default:
			sum.TextColumns = append(sum.TextColumns, col)
		}
	}

	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		key := rowKey(columns, row)
		seen[key]++
	}
	for _, n := range seen {
		if n > 1 {
			sum.DuplicateRowCount += n - 1
		}
	}
	return sum
}

// rowKey builds a deterministic fingerprint of a row for duplicate counting.
func rowKey(columns []string, row map[string]any) string {
	cols := columns
	if len(cols) == 0 {
		cols = make([]string, 0, len(row))
		for k := range row {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	var b strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&b, "%v\x1f", row[c])
	}
	return b.String()
}

// ParseCSV turns raw CSV text into ordered columns and rows keyed by column
// name. The first record is the header. Numeric-looking cells stay strings;
// classification happens in Summarize.
func ParseCSV(text string) ([]string, []map[string]any, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("parse csv: empty input")
	}
	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		columns[i] = strings.TrimSpace(h)
	}
	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

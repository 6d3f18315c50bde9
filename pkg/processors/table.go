package processors

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// previewRows is the number of leading rows included in a table summary
const previewRows = 10

// Table is a parsed tabular attachment
type Table struct {
	Header []string
	Rows   [][]string
}

// ColumnStats summarizes a numeric column
type ColumnStats struct {
	Name   string
	Count  int
	Sum    float64
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// ParseCSV parses CSV or TSV data; the first record is the header
func ParseCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if firstLine, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(firstLine, []byte("\t")) > bytes.Count(firstLine, []byte(",")) {
		r.Comma = '\t'
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV")
	}

	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// ParseJSONRecords parses a JSON array of objects into a table. Columns are
// the union of object keys; keys new to a record are appended sorted.
func ParseJSONRecords(data []byte) (*Table, error) {
	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("not a JSON array of objects: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty JSON array")
	}

	var header []string
	index := make(map[string]int)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if _, ok := index[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			index[k] = len(header)
			header = append(header, k)
		}
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(header))
		for k, v := range rec {
			row[index[k]] = formatCell(v)
		}
		rows = append(rows, row)
	}

	return &Table{Header: header, Rows: rows}, nil
}

func formatCell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// NumericColumns returns statistics for every column whose non-empty cells all parse as numbers
func (t *Table) NumericColumns() []ColumnStats {
	var out []ColumnStats
	for col, name := range t.Header {
		values, ok := t.column(col)
		if !ok || len(values) == 0 {
			continue
		}
		out = append(out, ColumnStats{
			Name:   name,
			Count:  len(values),
			Sum:    floats.Sum(values),
			Mean:   stat.Mean(values, nil),
			Min:    floats.Min(values),
			Max:    floats.Max(values),
			StdDev: stdDev(values),
		})
	}
	return out
}

// Column returns the numeric values of a named column
func (t *Table) Column(name string) ([]float64, bool) {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return t.column(i)
		}
	}
	return nil, false
}

func (t *Table) column(col int) ([]float64, bool) {
	values := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Summary renders the table shape, a preview and column statistics as text
func (t *Table) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table with %d rows and %d columns: %s\n", len(t.Rows), len(t.Header), strings.Join(t.Header, ", "))

	n := min(len(t.Rows), previewRows)
	if n > 0 {
		fmt.Fprintf(&b, "First %d rows:\n", n)
		w := csv.NewWriter(&b)
		_ = w.Write(t.Header)
		_ = w.WriteAll(t.Rows[:n])
	}

	stats := t.NumericColumns()
	if len(stats) > 0 {
		b.WriteString("Numeric column statistics:\n")
		for _, s := range stats {
			fmt.Fprintf(&b, "- %s: count=%d sum=%s mean=%s min=%s max=%s stddev=%s\n",
				s.Name, s.Count, num(s.Sum), num(s.Mean), num(s.Min), num(s.Max), num(s.StdDev))
		}
	}

	return strings.TrimSpace(b.String())
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

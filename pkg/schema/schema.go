package schema

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Column types recognized by the inference pass. The advisor only needs to
// distinguish numeric, temporal and categorical columns, so the set is small.
const (
	TypeInteger  = "integer"
	TypeFloat    = "float"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
	TypeText     = "text"
)

// Column summarizes one column of an uploaded table.
type Column struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Samples  []string `json:"samples,omitempty"`
	Distinct int      `json:"distinct"`
}

// TableSummary is the schema summary consumed by the advisor. The upload
// surface produces it from a CSV sample; callers of the provisioning API may
// also supply it directly.
type TableSummary struct {
	TableName string   `json:"table_name"`
	RowCount  int      `json:"row_count"`
	Columns   []Column `json:"columns"`
}

const (
	maxSampleValues = 3
	maxScanRows     = 1000
)

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
}

// InferFromCSV reads a CSV sample (header row required) and infers a column
// summary. Only the first maxScanRows data rows are scanned; the summary is
// advisory, not a validated schema.
func InferFromCSV(r io.Reader, tableName string) (*TableSummary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("CSV has no columns")
	}

	cols := make([]Column, len(header))
	distinct := make([]map[string]struct{}, len(header))
	counts := make([]typeCounts, len(header))
	for i, name := range header {
		cols[i] = Column{Name: strings.TrimSpace(name)}
		distinct[i] = make(map[string]struct{})
	}

	rows := 0
	for rows < maxScanRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", rows+2, err)
		}
		rows++

		for i := range cols {
			if i >= len(record) {
				continue
			}
			val := strings.TrimSpace(record[i])
			if val == "" {
				continue
			}
			counts[i].observe(val)
			distinct[i][val] = struct{}{}
			if len(cols[i].Samples) < maxSampleValues {
				cols[i].Samples = append(cols[i].Samples, val)
			}
		}
	}

	for i := range cols {
		cols[i].Type = counts[i].inferredType()
		cols[i].Distinct = len(distinct[i])
	}

	return &TableSummary{
		TableName: tableName,
		RowCount:  rows,
		Columns:   cols,
	}, nil
}

// NumericColumns returns the names of columns usable as metrics.
func (s *TableSummary) NumericColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == TypeInteger || c.Type == TypeFloat {
			names = append(names, c.Name)
		}
	}
	return names
}

// TemporalColumns returns the names of columns usable as a time axis.
func (s *TableSummary) TemporalColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == TypeDatetime {
			names = append(names, c.Name)
		}
	}
	return names
}

// ColumnNames returns all column names in order.
func (s *TableSummary) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// typeCounts tracks how many observed values parse as each candidate type.
type typeCounts struct {
	total    int
	integer  int
	float    int
	boolean  int
	datetime int
}

func (t *typeCounts) observe(val string) {
	t.total++

	if _, err := strconv.ParseInt(val, 10, 64); err == nil {
		t.integer++
		t.float++
		return
	}
	if _, err := strconv.ParseFloat(val, 64); err == nil {
		t.float++
		return
	}

	switch strings.ToLower(val) {
	case "true", "false", "yes", "no":
		t.boolean++
		return
	}

	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, val); err == nil {
			t.datetime++
			return
		}
	}
}

// inferredType picks the narrowest type every observed value satisfied.
func (t *typeCounts) inferredType() string {
	if t.total == 0 {
		return TypeText
	}
	switch t.total {
	case t.integer:
		return TypeInteger
	case t.float:
		return TypeFloat
	case t.boolean:
		return TypeBoolean
	case t.datetime:
		return TypeDatetime
	}
	return TypeText
}

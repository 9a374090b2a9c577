package dataflows

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Table names of a Dataset, in rendering order.
const (
	TableIncomeStatement  = "income_statement"
	TableBalanceSheet     = "balance_sheet"
	TableCashFlow         = "cash_flow"
	TableFinancialRatios  = "financial_ratios"
	TableDividendSchedule = "dividend_schedule"
)

var TableNames = []string{
	TableIncomeStatement,
	TableBalanceSheet,
	TableCashFlow,
	TableFinancialRatios,
	TableDividendSchedule,
}

// MetaCategory is the top-level label of the identifying ratio columns.
const MetaCategory = "Meta"

// Column is a (category, metric) label. Single-level columns only set Metric.
type Column struct {
	Category string
	Metric   string
}

// Label is the flat name of a column.
func (c Column) Label() string {
	if c.Category == "" {
		return c.Metric
	}
	return c.Category + "/" + c.Metric
}

// Table is a column-ordered grid. A cell holds nil, string, bool or decimal.Decimal.
type Table struct {
	Name       string
	MultiLevel bool
	Columns    []Column
	Rows       [][]any
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Label()
	}
	return names
}

// Records returns one record per row with fields in column order.
func (t *Table) Records() []Record {
	if t == nil {
		return nil
	}
	records := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(Record, 0, len(t.Columns))
		for i, c := range t.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			rec = append(rec, Field{Name: c.Label(), Value: v})
		}
		records = append(records, rec)
	}
	return records
}

// Clone returns a deep copy of the column list and row slices.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Name:       t.Name,
		MultiLevel: t.MultiLevel,
		Columns:    append([]Column(nil), t.Columns...),
		Rows:       make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// DropEmptyColumns removes columns that are nil in every row.
func (t *Table) DropEmptyColumns() {
	if t == nil || len(t.Rows) == 0 {
		return
	}
	keep := make([]int, 0, len(t.Columns))
	for i := range t.Columns {
		for _, row := range t.Rows {
			if i < len(row) && row[i] != nil {
				keep = append(keep, i)
				break
			}
		}
	}
	if len(keep) == len(t.Columns) {
		return
	}

	cols := make([]Column, len(keep))
	for j, i := range keep {
		cols[j] = t.Columns[i]
	}
	for r, row := range t.Rows {
		nr := make([]any, len(keep))
		for j, i := range keep {
			if i < len(row) {
				nr[j] = row[i]
			}
		}
		t.Rows[r] = nr
	}
	t.Columns = cols
}

// Field is a single named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered row. It marshals as a JSON object keeping field order.
type Record []Field

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalCell(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalCell(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("null"), nil
	case decimal.Decimal:
		return []byte(x.String()), nil
	case *decimal.Decimal:
		if x == nil {
			return []byte("null"), nil
		}
		return []byte(x.String()), nil
	default:
		return json.Marshal(x)
	}
}

// cellFromJSON converts a value decoded with UseNumber into a table cell.
func cellFromJSON(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return x.String()
		}
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case string, bool:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	}
}

// CompanyInfo is the listing name and ICB level-3 industry of a ticker.
type CompanyInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// Dataset holds every table fetched for one symbol.
type Dataset struct {
	Symbol string
	Tables map[string]*Table
}

func (d *Dataset) Empty() bool {
	return d == nil || len(d.Tables) == 0
}

// Table returns the named table, or an empty one if it was not fetched.
func (d *Dataset) Table(name string) *Table {
	if d != nil {
		if t, ok := d.Tables[name]; ok && t != nil {
			return t
		}
	}
	return &Table{Name: name}
}

package purgo

import (
	"math"
	"strconv"
	"strings"
)

// ColumnKind describes how the cells of a column are stored.
type ColumnKind int

const (
	// NumericColumn holds float64 cells. Missing cells are NaN.
	NumericColumn ColumnKind = iota
	// TextColumn holds string cells.
	TextColumn
)

// String returns the lower-case name of the kind.
func (k ColumnKind) String() string {
	switch k {
	case NumericColumn:
		return "numeric"
	case TextColumn:
		return "text"
	default:
		return "unknown"
	}
}

// Column is a single named column of a Table.
type Column struct {
	name string
	kind ColumnKind
	nums []float64
	text []string
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the storage kind of the column.
func (c *Column) Kind() ColumnKind { return c.kind }

// IsNumeric reports whether the column stores numbers.
func (c *Column) IsNumeric() bool { return c.kind == NumericColumn }

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	if c.kind == NumericColumn {
		return len(c.nums)
	}
	return len(c.text)
}

// Float returns the numeric cell at row i. Text columns always yield NaN.
func (c *Column) Float(i int) float64 {
	if c.kind != NumericColumn {
		return math.NaN()
	}
	return c.nums[i]
}

// Text returns the cell at row i formatted as a string. Missing numeric
// cells are rendered as the empty string.
func (c *Column) Text(i int) string {
	if c.kind == TextColumn {
		return c.text[i]
	}
	v := c.nums[i]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Floats returns a copy of the numeric cells, or nil for a text column.
func (c *Column) Floats() []float64 {
	if c.kind != NumericColumn {
		return nil
	}
	out := make([]float64, len(c.nums))
	copy(out, c.nums)
	return out
}

// Strings returns a copy of the cells formatted as strings.
func (c *Column) Strings() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Text(i)
	}
	return out
}

func (c *Column) clone() *Column {
	cp := &Column{name: c.name, kind: c.kind}
	if c.nums != nil {
		cp.nums = append([]float64(nil), c.nums...)
	}
	if c.text != nil {
		cp.text = append([]string(nil), c.text...)
	}
	return cp
}

// RowPredicate decides whether row i of a table is kept by Filter.
type RowPredicate func(row int) bool

// Table is a small column-oriented dataset. Every column has the same
// number of rows. A Table is not safe for concurrent mutation.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// AddNumericColumn appends a numeric column. The values slice is copied.
func (t *Table) AddNumericColumn(name string, values []float64) error {
	if err := t.checkNewColumn(name, len(values)); err != nil {
		return err
	}
	t.append(&Column{name: name, kind: NumericColumn, nums: append([]float64{}, values...)})
	return nil
}

// AddTextColumn appends a text column. The values slice is copied.
func (t *Table) AddTextColumn(name string, values []string) error {
	if err := t.checkNewColumn(name, len(values)); err != nil {
		return err
	}
	t.append(&Column{name: name, kind: TextColumn, text: append([]string{}, values...)})
	return nil
}

func (t *Table) checkNewColumn(name string, n int) error {
	if name == "" {
		return NewInvalidValueError("column", name, "column name must not be empty")
	}
	if _, exists := t.index[name]; exists {
		return NewInvalidValueError("column", name, "duplicate column name")
	}
	if len(t.columns) > 0 && n != t.rows {
		return NewInvalidValueError(name, n, "column length does not match table length "+strconv.Itoa(t.rows))
	}
	return nil
}

func (t *Table) append(c *Column) {
	if len(t.columns) == 0 {
		t.rows = c.Len()
	}
	t.index[c.name] = len(t.columns)
	t.columns = append(t.columns, c)
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// SetFloat overwrites a single numeric cell.
func (t *Table) SetFloat(column string, row int, v float64) error {
	c, ok := t.Column(column)
	if !ok {
		return NewNotFoundError("column", column)
	}
	if c.kind != NumericColumn {
		return NewInvalidTypeError(column, "numeric column", c.kind.String())
	}
	if row < 0 || row >= t.rows {
		return &IndexError{Index: row, Length: t.rows}
	}
	c.nums[row] = v
	return nil
}

// Row returns row i formatted as strings, in column order.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.columns))
	for j, c := range t.columns {
		out[j] = c.Text(i)
	}
	return out
}

// Filter returns a new table holding only the rows for which keep returns true.
// The receiver is left untouched.
func (t *Table) Filter(keep RowPredicate) *Table {
	kept := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			kept = append(kept, i)
		}
	}

	out := NewTable()
	for _, c := range t.columns {
		nc := &Column{name: c.name, kind: c.kind}
		if c.kind == NumericColumn {
			nc.nums = make([]float64, len(kept))
			for j, i := range kept {
				nc.nums[j] = c.nums[i]
			}
		} else {
			nc.text = make([]string, len(kept))
			for j, i := range kept {
				nc.text[j] = c.text[i]
			}
		}
		out.append(nc)
	}
	out.rows = len(kept)
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable()
	for _, c := range t.columns {
		out.append(c.clone())
	}
	out.rows = t.rows
	return out
}

// String returns a short description such as "Table(100 rows x 3 cols)".
func (t *Table) String() string {
	return "Table(" + strconv.Itoa(t.rows) + " rows x " + strconv.Itoa(len(t.columns)) + " cols)"
}

// missingMarkers are cell values read as missing numbers.
var missingMarkers = map[string]struct{}{
	"":     {},
	"na":   {},
	"nan":  {},
	"null": {},
	"none": {},
}

func isMissing(cell string) bool {
	_, ok := missingMarkers[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

// TableFromRecords builds a table from a header and string records. A column
// becomes numeric when every non-missing cell parses as a float; missing
// cells of a numeric column become NaN.
func TableFromRecords(header []string, records [][]string) (*Table, error) {
	t := NewTable()
	for j, name := range header {
		cells := make([]string, len(records))
		for i, rec := range records {
			if j >= len(rec) {
				return nil, NewInvalidValueError("record", i, "record has fewer fields than the header")
			}
			cells[i] = rec[j]
		}

		if nums, ok := parseNumeric(cells); ok {
			if err := t.AddNumericColumn(name, nums); err != nil {
				return nil, err
			}
			continue
		}
		if err := t.AddTextColumn(name, cells); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseNumeric(cells []string) ([]float64, bool) {
	nums := make([]float64, len(cells))
	for i, cell := range cells {
		if isMissing(cell) {
			nums[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, false
		}
		nums[i] = v
	}
	return nums, true
}

package purgo

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"
)

// DefaultTableName is the SQLite table read and written when KeyTableName is unset.
const DefaultTableName = "data"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", NewInvalidValueError("identifier", name, "must match "+identifierPattern.String())
	}
	return `"` + name + `"`, nil
}

func decodeCSV(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, NewInvalidValueError("csv", "", "missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv records: %w", err)
	}
	return TableFromRecords(header, records)
}

func encodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns()); err != nil {
		return nil, err
	}
	for i := 0; i < t.Len(); i++ {
		if err := w.Write(t.Row(i)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeJSON reads an array of flat objects. Columns appear in the order
// their keys are first seen; a key missing from a record is a missing cell.
func decodeJSON(data []byte) (*Table, error) {
	if !gjson.ValidBytes(data) {
		return nil, NewInvalidValueError("json", len(data), "malformed JSON document")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, NewInvalidTypeError("json", "array of records", doc.Type.String())
	}

	var header []string
	index := make(map[string]int)
	var rows []map[string]string
	var decodeErr error

	doc.ForEach(func(i, record gjson.Result) bool {
		if !record.IsObject() {
			decodeErr = NewInvalidTypeError(fmt.Sprintf("json[%d]", i.Int()), "object", record.Type.String())
			return false
		}
		row := make(map[string]string)
		record.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if _, seen := index[name]; !seen {
				index[name] = len(header)
				header = append(header, name)
			}
			row[name] = jsonCell(value)
			return true
		})
		rows = append(rows, row)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	records := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, len(header))
		for j, name := range header {
			rec[j] = row[name]
		}
		records[i] = rec
	}
	return TableFromRecords(header, records)
}

func jsonCell(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.Number:
		return v.Raw
	default:
		return v.String()
	}
}

// readSQLite loads every row of table from the SQLite database at file.
func readSQLite(ctx context.Context, file, table string) (*Table, error) {
	quoted, err := quoteIdentifier(table)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", "file:"+file+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoted) //nolint:gosec // identifier validated above
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", table, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records [][]string
	values := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make([]string, len(header))
		for i, v := range values {
			rec[i] = sqlCell(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return TableFromRecords(header, records)
}

func sqlCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// writeSQLite replaces table in the SQLite database at file with t.
// Numeric columns are REAL, text columns TEXT, NaN is stored as NULL.
func writeSQLite(ctx context.Context, file, table string, t *Table) error {
	quoted, err := quoteIdentifier(table)
	if err != nil {
		return err
	}

	cols := t.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, name := range cols {
		qc, err := quoteIdentifier(name)
		if err != nil {
			return err
		}
		c, _ := t.Column(name)
		kind := "TEXT"
		if c.IsNumeric() {
			kind = "REAL"
		}
		defs[i] = qc + " " + kind
		marks[i] = "?"
	}

	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+quoted+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+quoted+" VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for row := 0; row < t.Len(); row++ {
		for j, name := range cols {
			c, _ := t.Column(name)
			if c.IsNumeric() {
				if v := c.Float(row); !math.IsNaN(v) {
					args[j] = v
				} else {
					args[j] = nil
				}
				continue
			}
			args[j] = c.Text(row)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", row, err)
		}
	}
	return tx.Commit()
}

// withLocalCopy runs fn against a local SQLite file holding data, for
// databases stored in a bucket.
func withLocalCopy(data []byte, fn func(file string) error) error {
	f, err := os.CreateTemp("", "purgo-*.db")
	if err != nil {
		return err
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fn(name)
}

// Package schema holds the untyped table produced by the fetcher and the
// column-set validation applied to it before anything is staged or loaded.
package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

const module = "schema"

// Table is a transient untyped table: ordered column names and string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of each column name.
func (t *Table) Index() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		idx[c] = i
	}
	return idx
}

// Append adds the rows of other, re-ordering its columns by name to match t.
// Both tables must carry the same column names.
func (t *Table) Append(other *Table) error {
	if len(other.Columns) != len(t.Columns) {
		return exception.NewKindError(exception.KindSchemaInvalid, module,
			fmt.Sprintf("chunk header has %d columns, expected %d", len(other.Columns), len(t.Columns)), nil)
	}
	src := other.Index()
	order := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		j, ok := src[c]
		if !ok {
			return exception.NewKindError(exception.KindSchemaInvalid, module,
				fmt.Sprintf("chunk header is missing column '%s'", c), nil)
		}
		order[i] = j
	}
	for _, row := range other.Rows {
		out := make([]string, len(order))
		for i, j := range order {
			out[i] = row[j]
		}
		t.Rows = append(t.Rows, out)
	}
	return nil
}

// ReadCSV parses a CSV stream whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, exception.NewKindError(exception.KindSchemaInvalid, module, "CSV has no header row", nil)
	}
	if err != nil {
		return nil, exception.NewKindError(exception.KindSchemaInvalid, module, "failed to read CSV header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &Table{Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, exception.NewKindError(exception.KindSchemaInvalid, module, "failed to parse CSV", err)
		}
		t.Rows = append(t.Rows, rec)
	}
}

// WriteCSV writes the header and every row of t.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

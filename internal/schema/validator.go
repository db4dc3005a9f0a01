package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

// Result reports how a table's columns compare with the expected set.
type Result struct {
	OK      bool
	Missing []string
	Extra   []string
	Detail  string
}

// Validate compares the column set of t against expected. Missing columns
// make the result invalid. Extra columns are reported but tolerated.
func Validate(t *Table, expected []string) Result {
	actual := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		actual[c] = true
	}
	want := make(map[string]bool, len(expected))
	var res Result
	for _, c := range expected {
		want[c] = true
		if !actual[c] {
			res.Missing = append(res.Missing, c)
		}
	}
	for _, c := range t.Columns {
		if !want[c] {
			res.Extra = append(res.Extra, c)
		}
	}
	sort.Strings(res.Missing)
	sort.Strings(res.Extra)

	if len(res.Missing) > 0 {
		res.Detail = fmt.Sprintf("Missing columns: %s", strings.Join(res.Missing, ", "))
		return res
	}
	res.OK = true
	res.Detail = "Schema valid"
	return res
}

// Err returns a SchemaInvalid error for an invalid result, or nil.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return exception.NewKindError(exception.KindSchemaInvalid, module, r.Detail, nil)
}

// Project returns a new table holding only the expected columns, in expected
// order. Every expected column must be present.
func Project(t *Table, expected []string) (*Table, error) {
	idx := t.Index()
	order := make([]int, len(expected))
	for i, c := range expected {
		j, ok := idx[c]
		if !ok {
			return nil, exception.NewKindError(exception.KindSchemaInvalid, module, fmt.Sprintf("cannot project missing column '%s'", c), nil)
		}
		order[i] = j
	}
	out := &Table{Columns: append([]string(nil), expected...), Rows: make([][]string, len(t.Rows))}
	for r, row := range t.Rows {
		projected := make([]string, len(order))
		for i, j := range order {
			projected[i] = row[j]
		}
		out.Rows[r] = projected
	}
	return out, nil
}

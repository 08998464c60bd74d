package model

import "slices"

// Canonical lead columns produced by schema mapping and later stages.
const (
	ColEmail           = "Email"
	ColPhone           = "Phone"
	ColCell            = "Cell"
	ColNameOrEmail     = "Name_or_Email"
	ColWebsite         = "Website"
	ColDescription     = "Description"
	ColName            = "Name"
	ColMetaDescription = "Meta Description"
	ColMetaKeywords    = "Meta Keywords"
	ColDomain1         = "Domain-1"
	ColDomain          = "Domain"
	ColCountry         = "Country"
	ColCity            = "City"
	ColAddress         = "Address"
	ColCategoryI       = "Category-I"
	ColCategoryII      = "Category-II"
	ColCategory        = "Category"
	ColCAP             = "CAP"
	ColProvince        = "Province"
	ColEmailCorrected  = "Email Corretta"
	ColEmailValid      = "Email Valida"
	ColDomainReachable = "Dominio Raggiungibile"
)

// Serialized boolean values, matching the spreadsheets operators already use.
const (
	True  = "True"
	False = "False"
)

// FormatBool renders b the way boolean columns are stored.
func FormatBool(b bool) string {
	if b {
		return True
	}
	return False
}

// Record is one lead row. A missing field and an empty cell are both "".
type Record map[string]string

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Bool reports whether the field holds the serialized true value.
func (r Record) Bool(col string) bool {
	return r[col] == True
}

// Table is an ordered set of columns and rows. Stages treat a Table as
// immutable and build a new one for their output.
type Table struct {
	Columns []string
	Rows    []Record
}

// NewTable builds a table from a header row and positional data rows.
// Short rows are padded with empty values; extra cells are ignored.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Columns: slices.Clone(header), Rows: make([]Record, 0, len(rows))}
	for _, row := range rows {
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether col is part of the table's layout.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := &Table{Columns: slices.Clone(t.Columns), Rows: make([]Record, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// WithColumns returns a copy of the table whose layout also contains cols
// (appended in order when missing). New fields are set to "".
func (t *Table) WithColumns(cols ...string) *Table {
	out := t.Clone()
	for _, c := range cols {
		if out.HasColumn(c) {
			continue
		}
		out.Columns = append(out.Columns, c)
		for _, r := range out.Rows {
			if _, ok := r[c]; !ok {
				r[c] = ""
			}
		}
	}
	return out
}

// Rename returns a copy with columns renamed through m. Columns absent from
// m keep their name. When a rename targets a name that already exists the
// renamed column takes its place and the original one is dropped.
func (t *Table) Rename(m map[string]string) *Table {
	target := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		if n, ok := m[c]; ok {
			target[i] = n
		} else {
			target[i] = c
		}
	}

	owner := make(map[string]int, len(target))
	for i, n := range target {
		prev, seen := owner[n]
		if !seen {
			owner[n] = i
			continue
		}
		if _, renamed := m[t.Columns[prev]]; !renamed {
			owner[n] = i
		}
	}

	out := &Table{Rows: make([]Record, len(t.Rows))}
	for i, n := range target {
		if owner[n] == i {
			out.Columns = append(out.Columns, n)
		}
	}
	for ri, r := range t.Rows {
		rec := make(Record, len(out.Columns))
		for i, src := range t.Columns {
			n := target[i]
			if owner[n] == i {
				rec[n] = r[src]
			}
		}
		out.Rows[ri] = rec
	}
	return out
}

// Drop returns a copy without the columns for which drop returns true.
func (t *Table) Drop(drop func(col string) bool) *Table {
	out := &Table{Rows: make([]Record, len(t.Rows))}
	var removed []string
	for _, c := range t.Columns {
		if drop(c) {
			removed = append(removed, c)
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	for i, r := range t.Rows {
		rec := r.Clone()
		for _, c := range removed {
			delete(rec, c)
		}
		out.Rows[i] = rec
	}
	return out
}

// Filter returns a copy holding only the rows for which keep returns true,
// in their original order.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := &Table{Columns: slices.Clone(t.Columns)}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r.Clone())
		}
	}
	return out
}

// Map returns a copy where every row has been passed through fn. fn
// receives a private copy and may modify it freely.
func (t *Table) Map(fn func(i int, r Record)) *Table {
	out := t.Clone()
	for i, r := range out.Rows {
		fn(i, r)
	}
	return out
}

// Column returns the values of col in row order.
func (t *Table) Column(col string) []string {
	vals := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		vals[i] = r[col]
	}
	return vals
}

// Matrix returns the rows as positional string slices following Columns.
func (t *Table) Matrix() [][]string {
	out := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = r[c]
		}
		out[i] = row
	}
	return out
}

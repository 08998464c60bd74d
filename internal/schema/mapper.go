// Package schema maps the two known lead-export layouts onto the canonical
// column set.
package schema

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/saldang/grezzi/internal/fetcher"
	"github.com/saldang/grezzi/internal/model"
)

// Scheme identifies an export layout.
type Scheme string

const (
	// SchemeA is the English export, recognised by its "Value" column.
	SchemeA Scheme = "A"
	// SchemeB is the Italian export.
	SchemeB Scheme = "B"
)

// Sentinel is the column whose presence selects SchemeA.
const Sentinel = "Value"

// DefaultCountry is the country rows are filtered to.
const DefaultCountry = "italy"

// Error reports a required column missing after mapping. It aborts the
// processing of the whole file.
type Error struct {
	Column string
	Scheme Scheme
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: missing required column %q (scheme %s)", e.Column, e.Scheme)
}

var renamesA = map[string]string{
	"Value":            model.ColEmail,
	"Phone2":           model.ColPhone,
	"Name":             model.ColNameOrEmail,
	"Source":           model.ColWebsite,
	"Keywords":         model.ColDescription,
	"Title":            model.ColName,
	"META Description": model.ColMetaDescription,
	"META Keywords":    model.ColMetaKeywords,
	"Domain":           model.ColDomain1,
	"Country":          model.ColDomain,
	"City":             model.ColCountry,
	"Address":          model.ColCity,
	"Category":         model.ColAddress,
	"Unnamed: 14":      model.ColCategoryI,
	"Unnamed: 15":      model.ColCategoryII,
}

var renamesB = map[string]string{
	"Valore":           model.ColEmail,
	"Telefono2":        model.ColCell,
	"Nome":             model.ColNameOrEmail,
	"Fonte":            model.ColWebsite,
	"Parole chiave":    model.ColDescription,
	"Titolo":           model.ColName,
	"META Description": model.ColMetaDescription,
	"META Keywords":    model.ColMetaKeywords,
	"Dominio":          model.ColDomain1,
	"Paese":            model.ColDomain,
	"Città":            model.ColCountry,
	"Cittа":            model.ColCountry, // Cyrillic "а", seen in real exports
	"Indirizzo":        model.ColCity,
	"Categoria":        model.ColAddress,
	"Unnamed: 14":      model.ColCategoryI,
	"Unnamed: 15":      model.ColCategoryII,
}

// Renames returns the rename table of a scheme.
func Renames(s Scheme) map[string]string {
	if s == SchemeA {
		return renamesA
	}
	return renamesB
}

// Detect picks the scheme of a header.
func Detect(t *model.Table) Scheme {
	for _, c := range t.Columns {
		if canonicalHeader(c) == Sentinel {
			return SchemeA
		}
	}
	return SchemeB
}

// Result is the outcome of mapping one table.
type Result struct {
	Table  *model.Table
	Scheme Scheme
	// InputRows is the row count before the country filter.
	InputRows int
}

// Map renames the columns of t to the canonical layout, drops positional
// "Unnamed:" columns, and keeps only rows whose Country equals country
// (case-insensitive; empty means DefaultCountry). It fails with *Error when
// the mapped table has no Email or Country column.
func Map(t *model.Table, country string) (*Result, error) {
	if country == "" {
		country = DefaultCountry
	}
	scheme := Detect(t)
	renames := Renames(scheme)

	// Headers are matched in NFC form so decomposed accents still hit.
	m := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		if n, ok := renames[canonicalHeader(c)]; ok {
			m[c] = n
		}
	}

	mapped := t.Rename(m).Drop(func(col string) bool {
		return strings.HasPrefix(col, fetcher.UnnamedPrefix)
	})

	for _, required := range []string{model.ColEmail, model.ColCountry} {
		if !mapped.HasColumn(required) {
			return nil, &Error{Column: required, Scheme: scheme}
		}
	}

	kept := mapped.Filter(func(r model.Record) bool {
		return strings.EqualFold(strings.TrimSpace(r[model.ColCountry]), country)
	})

	return &Result{Table: kept, Scheme: scheme, InputRows: t.Len()}, nil
}

func canonicalHeader(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

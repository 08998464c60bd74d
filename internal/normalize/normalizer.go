// Package normalize turns a raw lead export into the annotated canonical
// table: schema mapping, locality splitting, email repair and validity
// flags.
package normalize

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/heuristics"
	"github.com/saldang/grezzi/internal/model"
	"github.com/saldang/grezzi/internal/reach"
	"github.com/saldang/grezzi/internal/schema"
)

// Result is the annotated table plus the row counts around the country
// filter.
type Result struct {
	Table      *model.Table
	Scheme     schema.Scheme
	InputRows  int
	OutputRows int
}

// Normalizer runs the per-file normalization sequence.
type Normalizer struct {
	checker reach.Checker
	country string
}

// New builds a Normalizer that filters rows to country.
func New(checker reach.Checker, country string) *Normalizer {
	return &Normalizer{checker: checker, country: country}
}

// Normalize maps t to the canonical schema and annotates every row with
// CAP, Province, Domain-1, Email Corretta, Email Valida and Dominio
// Raggiungibile. Only rows whose original email is valid are DNS-checked;
// repaired addresses are never checked.
func (n *Normalizer) Normalize(ctx context.Context, t *model.Table) (*Result, error) {
	mapped, err := schema.Map(t, n.country)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("scheme", string(mapped.Scheme)))
	log.Info("normalize: schema mapped",
		zap.Int("input_rows", mapped.InputRows),
		zap.Int("country_rows", mapped.Table.Len()),
	)

	tbl := mapped.Table.WithColumns(
		model.ColCity, model.ColDomain, model.ColCAP, model.ColProvince, model.ColDomain1,
		model.ColEmailCorrected, model.ColEmailValid, model.ColDomainReachable,
	)

	tbl = tbl.Map(func(_ int, r model.Record) {
		parts := heuristics.SplitCity(r[model.ColCity])
		r[model.ColCity] = parts.City
		r[model.ColCAP] = parts.CAP
		r[model.ColProvince] = parts.Province

		r[model.ColEmail] = strings.ToLower(strings.TrimSpace(r[model.ColEmail]))
		r[model.ColDomain1] = heuristics.ExtractDomain(r[model.ColDomain])
	})

	// The repair pool is every Domain-1 of this file, in row order.
	pool := tbl.Column(model.ColDomain1)

	checkable := make([]string, tbl.Len())
	var repaired int
	tbl = tbl.Map(func(i int, r model.Record) {
		email := r[model.ColEmail]
		corrected := email
		if heuristics.IsValidEmail(email) {
			checkable[i] = email
		} else {
			corrected, _ = heuristics.SuggestEmailFix(email, pool)
			if corrected != "" {
				repaired++
			}
		}
		r[model.ColEmailCorrected] = corrected
		r[model.ColEmailValid] = model.FormatBool(heuristics.IsValidEmail(corrected))
	})

	reachable := n.checker.CheckAll(ctx, checkable)
	// A cancelled lookup reads as unreachable; do not pass that off as a verdict.
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "normalize: reachability checks")
	}
	tbl = tbl.Map(func(i int, r model.Record) {
		r[model.ColDomainReachable] = model.FormatBool(checkable[i] != "" && reachable[i])
	})

	log.Info("normalize: emails annotated",
		zap.Int("rows", tbl.Len()),
		zap.Int("repaired", repaired),
	)

	return &Result{
		Table:      tbl,
		Scheme:     mapped.Scheme,
		InputRows:  mapped.InputRows,
		OutputRows: tbl.Len(),
	}, nil
}

// IsClean reports whether a record belongs to the clean set.
func IsClean(r model.Record) bool {
	return r.Bool(model.ColEmailValid) && r.Bool(model.ColDomainReachable)
}

// CleanSubset returns the rows of t that are clean, in order.
func CleanSubset(t *model.Table) *model.Table {
	return t.Filter(IsClean)
}

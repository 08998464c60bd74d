package reconcile

import (
	"strings"

	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/fetcher"
	"github.com/saldang/grezzi/internal/heuristics"
	"github.com/saldang/grezzi/internal/model"
)

// Reconciler applies the registry corrections to a clean table.
type Reconciler struct {
	reg *Registry
}

// NewReconciler returns a Reconciler backed by reg.
func NewReconciler(reg *Registry) *Reconciler {
	return &Reconciler{reg: reg}
}

// Apply returns the reconciled copy of t. For every row it replaces City
// with the registry name of its CAP, fills an empty CAP from Address,
// strips postal codes out of Address, upper-cases Province and capitalizes
// City. Category-I and Category-II are merged into Category and every
// positional "Unnamed:" column is dropped.
func (rc *Reconciler) Apply(t *model.Table) *model.Table {
	var corrected, filled int

	out := t.WithColumns(model.ColCity, model.ColCAP, model.ColAddress, model.ColProvince,
		model.ColCategoryI, model.ColCategoryII, model.ColCategory)

	out = out.Map(func(_ int, r model.Record) {
		if name, ok := rc.reg.Lookup(r[model.ColCAP]); ok && name != "" && name != r[model.ColCity] {
			r[model.ColCity] = name
			corrected++
		}
		if r[model.ColCAP] == "" {
			if c := heuristics.CAPFromAddress(r[model.ColAddress]); c != "" {
				r[model.ColCAP] = c
				filled++
			}
		}
		r[model.ColAddress] = heuristics.StripCAP(r[model.ColAddress])
		r[model.ColProvince] = strings.ToUpper(r[model.ColProvince])
		r[model.ColCity] = heuristics.Capitalize(r[model.ColCity])
		r[model.ColCategory] = r[model.ColCategoryI] + r[model.ColCategoryII]
	})

	out = out.Drop(func(col string) bool {
		return col == model.ColCategoryI || col == model.ColCategoryII ||
			strings.HasPrefix(col, fetcher.UnnamedPrefix)
	})

	zap.L().Info("reconcile: table reconciled",
		zap.Int("rows", out.Len()),
		zap.Int("cities_corrected", corrected),
		zap.Int("caps_filled", filled),
	)
	return out
}

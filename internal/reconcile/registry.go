// Package reconcile corrects city names and postal codes against the
// municipality registry and gives the clean table its final layout.
package reconcile

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/saldang/grezzi/internal/fetcher"
)

// ErrReferenceDataMissing is returned when the registry file cannot be read
// or lacks the cap / denominazione_ita columns.
var ErrReferenceDataMissing = errors.New("reconcile: reference data missing")

const (
	colCAP  = "cap"
	colName = "denominazione_ita"
)

// Registry maps a postal code to the canonical municipality name. It is
// read-only once loaded and safe for concurrent use.
type Registry struct {
	names map[string]string
}

// NewRegistry builds a registry from an in-memory mapping.
func NewRegistry(m map[string]string) *Registry {
	names := make(map[string]string, len(m))
	for k, v := range m {
		names[k] = v
	}
	return &Registry{names: names}
}

// Lookup returns the municipality registered for cap.
func (r *Registry) Lookup(cap string) (string, bool) {
	if r == nil {
		return "", false
	}
	name, ok := r.names[cap]
	return name, ok
}

// Len returns the number of postal codes in the registry.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// LoadRegistry reads a ';'-delimited municipality file. When a postal code
// appears more than once the last row wins.
func LoadRegistry(ctx context.Context, path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrReferenceDataMissing, "open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		Delimiter:  ';',
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	capIdx, nameIdx := -1, -1
	names := make(map[string]string)
	for row := range rowCh {
		if capIdx < 0 {
			capIdx, nameIdx = headerIndexes(<-headerCh)
			if capIdx < 0 || nameIdx < 0 {
				drain(rowCh)
				return nil, eris.Wrapf(ErrReferenceDataMissing, "%s: need %q and %q columns", path, colCAP, colName)
			}
		}
		if capIdx >= len(row) || nameIdx >= len(row) || row[capIdx] == "" {
			continue
		}
		names[row[capIdx]] = row[nameIdx]
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrapf(ErrReferenceDataMissing, "read %s: %v", path, err)
		}
	}

	if capIdx < 0 {
		// Header only (or empty file): still validate the layout.
		select {
		case h := <-headerCh:
			capIdx, nameIdx = headerIndexes(h)
		default:
		}
		if capIdx < 0 || nameIdx < 0 {
			return nil, eris.Wrapf(ErrReferenceDataMissing, "%s: need %q and %q columns", path, colCAP, colName)
		}
	}

	zap.L().Info("reconcile: registry loaded",
		zap.String("path", path),
		zap.Int("caps", len(names)),
	)
	return &Registry{names: names}, nil
}

func headerIndexes(header []string) (capIdx, nameIdx int) {
	capIdx, nameIdx = -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimPrefix(h, "\ufeff")) {
		case colCAP:
			capIdx = i
		case colName:
			nameIdx = i
		}
	}
	return capIdx, nameIdx
}

func drain(ch <-chan []string) {
	for range ch { //nolint:revive
	}
}

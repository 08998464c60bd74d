package fetcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/saldang/grezzi/internal/model"
)

// UnnamedPrefix marks header cells that were empty in the source file.
const UnnamedPrefix = "Unnamed:"

// ReadTable loads a lead export (.xlsx or .csv) into a Table. The first row
// is the header; empty header cells become "Unnamed: <index>" and repeated
// names get ".1", ".2" suffixes so every column stays addressable.
func ReadTable(ctx context.Context, path string) (*model.Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = ReadXLSX(ctx, path, XLSXOptions{})
	case ".csv":
		rows, err = ReadCSV(ctx, path, CSVOptions{LazyQuotes: true})
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", filepath.Base(path))
	}
	if len(rows) == 0 {
		return &model.Table{}, nil
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}

	return model.NewTable(HeaderNames(rows[0], width), rows[1:]), nil
}

// HeaderNames turns a raw header row into unique column names of the given
// width (at least len(raw)).
func HeaderNames(raw []string, width int) []string {
	width = max(width, len(raw))
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := range width {
		name := ""
		if i < len(raw) {
			name = strings.TrimSpace(raw[i])
		}
		if name == "" {
			name = fmt.Sprintf("%s %d", UnnamedPrefix, i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

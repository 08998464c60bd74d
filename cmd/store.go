package main

import (
	"context"

	"github.com/saldang/grezzi/internal/store"
)

// initStore opens the configured job store and applies its migration.
// Callers should defer st.Close().
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

package memory

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise a local
// file store.
func NewStore(ctx context.Context, databaseURL, path, storageKey string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileStore(path, storageKey), nil
	}
	return NewPostgresStore(ctx, databaseURL, storageKey)
}

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the memory document as a single JSONB row per
// storage key.
type PostgresStore struct {
	pool *pgxpool.Pool
	key  string
}

func NewPostgresStore(ctx context.Context, databaseURL, storageKey string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, key: storageKey}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_documents (
			storage_key TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM memory_documents WHERE storage_key=$1`,
		s.key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load memory document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode memory document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode memory document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO memory_documents (storage_key, document, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (storage_key) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		s.key,
		raw,
	)
	if err != nil {
		return fmt.Errorf("save memory document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

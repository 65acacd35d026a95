// Package postgres provides a PostgreSQL + pgvector vector store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

//go:embed scripts/bootstrap.sql
var bootstrapFS embed.FS

// schemaVersion is the version row written by bootstrap.sql.
const schemaVersion = 2

var (
	_ driven.VectorStore = (*Store)(nil)
	_ driven.IDLister    = (*Store)(nil)
)

// Store is a pgvector-backed vector store.
type Store struct {
	db *sql.DB
}

// NewStore connects to databaseURL and creates the schema if missing.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres: database URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := ensureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &Store{db: db}, nil
}

func ensureBootstrapped(ctx context.Context, db *sql.DB) error {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables WHERE table_name = 'ingest_meta'
		)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if exists {
		var hasVersion bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM ingest_meta WHERE version = $1)`, schemaVersion).Scan(&hasVersion); err != nil {
			return fmt.Errorf("meta version check failed: %w", err)
		}
		if hasVersion {
			return nil
		}
	}

	script, err := bootstrapFS.ReadFile("scripts/bootstrap.sql")
	if err != nil {
		return fmt.Errorf("read bootstrap.sql: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	return tx.Commit()
}

// Name returns the store name.
func (s *Store) Name() string {
	return string(domain.StorePostgres)
}

// Upsert inserts or replaces records in one transaction.
func (s *Store) Upsert(ctx context.Context, collection string, records []domain.StoreRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ingest_records (collection, id, text, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (collection, id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
		meta, err := json.Marshal(domain.CopyMetadata(r.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata of %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.Text,
			pgvector.NewVector(r.Embedding), string(meta)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Exists reports whether a record with the id is stored.
func (s *Store) Exists(ctx context.Context, collection, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingest_records WHERE collection = $1 AND id = $2)`,
		collection, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check record %s: %w", id, err)
	}
	return exists, nil
}

// DeleteSourceExcept deletes the records of sourceID that keep rejects.
func (s *Store) DeleteSourceExcept(ctx context.Context, collection string, origin domain.Origin, sourceID string, keep func(string) bool) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM ingest_records
		WHERE collection = $1 AND metadata->>'source_id' = $2 AND metadata->>'origin' = $3
		ORDER BY id
		FOR UPDATE`, collection, sourceID, string(origin))
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", sourceID, err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		if !keep(id) {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records of %s: %w", sourceID, err)
	}
	if len(stale) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ingest_records WHERE collection = $1 AND id = ANY($2)`, collection, stale); err != nil {
		return nil, fmt.Errorf("delete stale records of %s: %w", sourceID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return stale, nil
}

// ListIDs returns every record id of the collection.
func (s *Store) ListIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM ingest_records WHERE collection = $1 ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get returns a stored record.
func (s *Store) Get(ctx context.Context, collection, id string) (*domain.StoreRecord, error) {
	var (
		r    domain.StoreRecord
		emb  pgvector.Vector
		meta []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, text, embedding, metadata FROM ingest_records WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&r.ID, &r.Text, &emb, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	r.Embedding = emb.Slice()
	if err := json.Unmarshal(meta, &r.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata of %s: %w", id, err)
	}
	return &r, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

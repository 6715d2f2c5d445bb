package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tasuke/internal/models"
)

// SQLiteStorage implements Store using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Use ":memory:" for a throwaway store.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		reviewed INTEGER NOT NULL DEFAULT 0,
		dirty INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_resources_namespace ON resources(namespace);
	CREATE INDEX IF NOT EXISTS idx_resources_dirty ON resources(dirty);
	`
	_, err := db.Exec(schema)
	return err
}

const resourceColumns = `id, namespace, text, metadata, reviewed, dirty, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*models.Resource, error) {
	var r models.Resource
	var metadataJSON sql.NullString
	if err := row.Scan(&r.ID, &r.Namespace, &r.Text, &metadataJSON, &r.Reviewed, &r.Dirty, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", r.ID, err)
		}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return &r, nil
}

// UpsertResource inserts r or replaces the stored row with the same ID.
func (s *SQLiteStorage) UpsertResource(ctx context.Context, r *models.Resource) error {
	if r.ID == "" {
		return errors.New("resource id is required")
	}
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	r.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resources (id, namespace, text, metadata, reviewed, dirty, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   namespace = excluded.namespace,
		   text = excluded.text,
		   metadata = excluded.metadata,
		   reviewed = excluded.reviewed,
		   dirty = excluded.dirty,
		   updated_at = excluded.updated_at`,
		r.ID, r.Namespace, r.Text, string(metadataJSON), r.Reviewed, r.Dirty, r.UpdatedAt,
	)
	return err
}

// GetResource returns a resource by ID.
func (s *SQLiteStorage) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetResources returns the resources for ids keyed by ID. Missing ids are absent from the map.
func (s *SQLiteStorage) GetResources(ctx context.Context, ids []string) (map[string]*models.Resource, error) {
	out := make(map[string]*models.Resource, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

// DeleteResource removes a resource by ID.
func (s *SQLiteStorage) DeleteResource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	return err
}

// ListResources returns resources ordered by ID with offset and limit.
func (s *SQLiteStorage) ListResources(ctx context.Context, offset, limit int) ([]*models.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// ListIDs returns every resource ID in ascending order.
func (s *SQLiteStorage) ListIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM resources ORDER BY id`)
}

// SetReviewed sets the reviewed flag of a resource.
func (s *SQLiteStorage) SetReviewed(ctx context.Context, id string, reviewed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE resources SET reviewed = ? WHERE id = ?`, reviewed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MarkDirty flags resources as needing re-embedding.
func (s *SQLiteStorage) MarkDirty(ctx context.Context, ids ...string) error {
	return s.setDirty(ctx, true, ids)
}

// DirtyIDs returns the IDs of resources awaiting re-embedding.
func (s *SQLiteStorage) DirtyIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM resources WHERE dirty = 1 ORDER BY id`)
}

// ClearDirty clears the dirty flag on ids, or on every resource when ids is empty.
func (s *SQLiteStorage) ClearDirty(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		_, err := s.db.ExecContext(ctx, `UPDATE resources SET dirty = 0 WHERE dirty = 1`)
		return err
	}
	return s.setDirty(ctx, false, ids)
}

func (s *SQLiteStorage) setDirty(ctx context.Context, dirty bool, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE resources SET dirty = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, dirty, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStorage) queryIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
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

// Stats returns the total, reviewed and dirty resource counts.
func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(reviewed), 0), COALESCE(SUM(dirty), 0) FROM resources`,
	).Scan(&st.Total, &st.Reviewed, &st.Dirty)
	return st, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/invkeeper/internal/common"
	"github.com/dmitrijs2005/invkeeper/internal/dbx"
	"github.com/dmitrijs2005/invkeeper/internal/logging"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in a local SQLite database. Change
// notifications are in-process, so live queries only observe writes made
// through the same store.
type SQLiteStore struct {
	db    *sql.DB
	now   func() time.Time
	hub   *hub
	close sync.Once
}

// OpenSQLite opens dsn with the modernc driver and applies migrations.
func OpenSQLite(ctx context.Context, dsn string, logger logging.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	// One writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return NewSQLiteStore(db, logger), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB, logger logging.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now, hub: newHub(logger)}
}

func (s *SQLiteStore) Set(ctx context.Context, collection, key string, data json.RawMessage) (*Document, error) {
	if err := validData(data); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}

	doc := &Document{Key: key, Data: append(json.RawMessage(nil), data...)}
	now := s.now().UTC().UnixNano()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
			INSERT INTO records (collection, key, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (collection, key)
			DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
		if _, err := tx.ExecContext(ctx, query, collection, key, string(data), now, now); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		var created, updated int64
		query = `SELECT created_at, updated_at FROM records WHERE collection = ? AND key = ?`
		if err := tx.QueryRowContext(ctx, query, collection, key).Scan(&created, &updated); err != nil {
			return fmt.Errorf("read back error: %w", err)
		}
		doc.CreatedAt = time.Unix(0, created).UTC()
		doc.UpdatedAt = time.Unix(0, updated).UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.hub.wake(collection)
	return doc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	query := `SELECT key, data, created_at, updated_at FROM records WHERE collection = ? AND key = ?`
	doc, err := scanSQLiteDoc(s.db.QueryRowContext(ctx, query, collection, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	s.hub.wake(collection)
	return nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error) {
	l, err := s.hub.add(ctx, q, s.query, fn)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *SQLiteStore) query(ctx context.Context, q Query) (Snapshot, error) {
	dir := "ASC"
	if q.LastN {
		dir = "DESC"
	}
	args := []any{q.Collection}
	order := "key " + dir
	if q.OrderBy != "" {
		order = "json_extract(data, ?) " + dir + ", " + order
		args = append(args, "$."+q.OrderBy)
	}

	query := `SELECT key, data, created_at, updated_at FROM records WHERE collection = ? ORDER BY ` + order
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		doc, err := scanSQLiteDoc(rows)
		if err != nil {
			return nil, err
		}
		snap = append(snap, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.LastN {
		reverse(snap)
	}
	return snap, nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.close.Do(func() {
		s.hub.close()
		err = s.db.Close()
	})
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDoc(r rowScanner) (*Document, error) {
	var (
		doc              Document
		data             string
		created, updated int64
	)
	if err := r.Scan(&doc.Key, &data, &created, &updated); err != nil {
		return nil, err
	}
	doc.Data = json.RawMessage(data)
	doc.CreatedAt = time.Unix(0, created).UTC()
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return &doc, nil
}

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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NotifyChannel is the channel the records trigger notifies with the name
// of the changed collection.
const NotifyChannel = "records_changed"

var listenRetryDelay = time.Second

// listenConn is the part of *pgx.Conn used for LISTEN/NOTIFY.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// connectListener is a seam for tests.
var connectListener = func(ctx context.Context, dsn string) (listenConn, error) {
	return pgx.Connect(ctx, dsn)
}

// PostgresStore keeps documents in PostgreSQL. A trigger publishes every
// change, so live queries observe writes from all clients of the database.
type PostgresStore struct {
	db     dbx.DBTX
	closer func() error
	dsn    string
	logger logging.Logger
	hub    *hub
	run    runFunc

	listenMu   sync.Mutex
	stopListen context.CancelFunc
	listenDone chan struct{}
	close      sync.Once
}

// OpenPostgres connects through the pgx stdlib driver and applies
// migrations.
func OpenPostgres(ctx context.Context, dsn string, logger logging.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := RunMigrations(ctx, db, "pgx"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	s := NewPostgresStore(db, dsn, logger)
	s.closer = db.Close
	return s, nil
}

// NewPostgresStore wraps an already migrated database. dsn is used for the
// dedicated LISTEN connection.
func NewPostgresStore(db dbx.DBTX, dsn string, logger logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &PostgresStore{db: db, dsn: dsn, logger: logger, hub: newHub(logger)}
	s.run = s.query
	s.hub.onEmpty = s.stopListener
	return s
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, data json.RawMessage) (*Document, error) {
	if err := validData(data); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}

	query := `
		INSERT INTO records (collection, key, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, now(), now())
		ON CONFLICT (collection, key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
		RETURNING created_at, updated_at;
	`
	doc := &Document{Key: key, Data: append(json.RawMessage(nil), data...)}
	if err := s.db.QueryRowContext(ctx, query, collection, key, string(data)).Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (*Document, error) {
	query := `SELECT key, data, created_at, updated_at FROM records WHERE collection=$1 AND key=$2`

	var doc Document
	var data []byte
	err := s.db.QueryRowContext(ctx, query, collection, key).Scan(&doc.Key, &data, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}
	doc.Data = json.RawMessage(data)
	return &doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection=$1 AND key=$2`, collection, key)
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
	return nil
}

// Subscribe starts the shared LISTEN connection on first use. It is torn
// down again when the last subscription closes.
func (s *PostgresStore) Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error) {
	l, err := s.hub.add(ctx, q, s.run, fn)
	if err != nil {
		return nil, err
	}
	s.startListener()
	return l, nil
}

func (s *PostgresStore) query(ctx context.Context, q Query) (Snapshot, error) {
	dir := "ASC"
	if q.LastN {
		dir = "DESC"
	}
	args := []any{q.Collection}
	order := "key " + dir
	if q.OrderBy != "" {
		order = `(data->>$2::text) COLLATE "C" ` + dir + " NULLS " + nullsFor(dir) + ", " + order
		args = append(args, q.OrderBy)
	}

	query := `SELECT key, data, created_at, updated_at FROM records WHERE collection=$1 ORDER BY ` + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var doc Document
		var data []byte
		if err := rows.Scan(&doc.Key, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Data = json.RawMessage(data)
		snap = append(snap, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if q.LastN {
		reverse(snap)
	}
	return snap, nil
}

// nullsFor keeps documents without the field first in ascending order.
func nullsFor(dir string) string {
	if dir == "DESC" {
		return "LAST"
	}
	return "FIRST"
}

func (s *PostgresStore) startListener() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.stopListen != nil || s.hub.len() == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopListen = cancel
	s.listenDone = make(chan struct{})
	go s.listen(ctx, s.listenDone)
}

// stopListener stops listening unless a live query was added since the hub
// reported itself empty.
func (s *PostgresStore) stopListener() {
	s.listenMu.Lock()
	if s.hub.len() > 0 {
		s.listenMu.Unlock()
		return
	}
	cancel, done := s.stopListen, s.listenDone
	s.stopListen, s.listenDone = nil, nil
	s.listenMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// listen holds a LISTEN connection open until ctx ends, reconnecting on
// failure. Every (re)connect wakes all live queries since notifications may
// have been missed.
func (s *PostgresStore) listen(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn(ctx, "record change listener stopped, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context) error {
	conn, err := connectListener(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("listener connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.hub.wake("")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.hub.wake(n.Payload)
	}
}

func (s *PostgresStore) Close() error {
	var err error
	s.close.Do(func() {
		s.hub.close()
		s.stopListener()
		if s.closer != nil {
			err = s.closer()
		}
	})
	return err
}

// Package sqlite provides a SQLite-backed session and recent-target store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/netcore-rdp/rdportal/internal/adapter/outbound/sqlite/migrations"
	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// Store persists sessions and the connect history in SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the database at path and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores a new session.
func (s *Store) Append(ctx context.Context, sess *session.Session) error {
	var gatewayURL sql.NullString
	if sess.GatewayURL != nil {
		gatewayURL = sql.NullString{String: *sess.GatewayURL, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, ip, name, username, created_at, gateway_url, uses_gateway)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TargetAddress, sess.DisplayName, sess.Principal,
		toMillis(sess.CreatedAt), gatewayURL, sess.UsesGateway,
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return session.ErrDuplicateID
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const selectSessions = `SELECT session_id, ip, name, username, created_at, gateway_url, uses_gateway FROM sessions`

// Get returns the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, selectSessions+` WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListAll returns every stored session.
func (s *Store) ListAll(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSessions)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// RemoveWhere deletes every session matched by match inside one transaction.
func (s *Store) RemoveWhere(ctx context.Context, match func(*session.Session) bool) ([]*session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectSessions)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var removed []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if match(sess) {
			removed = append(removed, sess)
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for _, sess := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sess.ID); err != nil {
			return nil, fmt.Errorf("delete session: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

// RemoveAll deletes every session.
func (s *Store) RemoveAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Record appends an entry to the connect history.
func (s *Store) Record(ctx context.Context, t session.RecentTarget) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recent_ips (user_id, ip, used_at) VALUES (?, ?, ?)`,
		t.Owner, t.Address, toMillis(t.UsedAt),
	)
	if err != nil {
		return fmt.Errorf("insert recent ip: %w", err)
	}
	return nil
}

// Recent returns up to n distinct addresses recorded by owner, newest first.
func (s *Store) Recent(ctx context.Context, owner string, n int) ([]string, error) {
	if n <= 0 {
		n = session.DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip FROM recent_ips WHERE user_id = ?
		 GROUP BY ip ORDER BY MAX(used_at) DESC, MAX(id) DESC LIMIT ?`,
		owner, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent ips: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, n)
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("scan recent ip: %w", err)
		}
		out = append(out, ip)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*session.Session, error) {
	var (
		sess       session.Session
		createdAt  int64
		gatewayURL sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.TargetAddress, &sess.DisplayName, &sess.Principal,
		&createdAt, &gatewayURL, &sess.UsesGateway); err != nil {
		return nil, err
	}
	sess.CreatedAt = fromMillis(createdAt)
	if gatewayURL.Valid {
		u := gatewayURL.String
		sess.GatewayURL = &u
	}
	return &sess, nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Compile-time interface verification.
var (
	_ session.SessionStore      = (*Store)(nil)
	_ session.RecentTargetStore = (*Store)(nil)
)

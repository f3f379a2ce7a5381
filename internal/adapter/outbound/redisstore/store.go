// Package redisstore provides a Redis-backed session and recent-target store.
//
// Keys:
//
//	<prefix>:sessions   hash, field = session id, value = JSON record
//	<prefix>:recent     list of JSON history entries, oldest first
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "rdportal"

// maxRecent bounds the history list.
const maxRecent = 500

// Store implements session.SessionStore and session.RecentTargetStore.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger that reports undecodable records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a Store using rdb. An empty prefix means DefaultPrefix.
func New(rdb redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{rdb: rdb, prefix: prefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, prefix string, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(rdb, prefix, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) sessionsKey() string { return s.prefix + ":sessions" }
func (s *Store) recentKey() string   { return s.prefix + ":recent" }

// record is the stored JSON form of a session.
type record struct {
	SessionID   string    `json:"session_id"`
	IP          string    `json:"ip"`
	Name        string    `json:"name"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
	GatewayURL  *string   `json:"guacamole_url"`
	UsesGateway bool      `json:"use_guacamole"`
}

func encodeSession(sess *session.Session) ([]byte, error) {
	return json.Marshal(record{
		SessionID:   sess.ID,
		IP:          sess.TargetAddress,
		Name:        sess.DisplayName,
		Username:    sess.Principal,
		CreatedAt:   sess.CreatedAt.UTC(),
		GatewayURL:  sess.GatewayURL,
		UsesGateway: sess.UsesGateway,
	})
}

func decodeSession(data string) (*session.Session, error) {
	var r record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session.Session{
		ID:            r.SessionID,
		TargetAddress: r.IP,
		DisplayName:   r.Name,
		Principal:     r.Username,
		CreatedAt:     r.CreatedAt,
		GatewayURL:    r.GatewayURL,
		UsesGateway:   r.UsesGateway,
	}, nil
}

// Append stores a new session.
func (s *Store) Append(ctx context.Context, sess *session.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	ok, err := s.rdb.HSetNX(ctx, s.sessionsKey(), sess.ID, data).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return session.ErrDuplicateID
	}
	return nil
}

// Get returns the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.rdb.HGet(ctx, s.sessionsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(data)
}

// ListAll returns every stored session. Records that fail to decode are
// logged and skipped so one bad field cannot hide every other session.
func (s *Store) ListAll(ctx context.Context) ([]*session.Session, error) {
	all, err := s.rdb.HGetAll(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return s.decodeAll(all), nil
}

func (s *Store) decodeAll(all map[string]string) []*session.Session {
	out := make([]*session.Session, 0, len(all))
	for id, data := range all {
		sess, err := decodeSession(data)
		if err != nil {
			s.logger.Warn("skipping undecodable session record",
				"key", s.sessionsKey(),
				"session_id", id,
				"error", err,
			)
			continue
		}
		out = append(out, sess)
	}
	return out
}

// RemoveWhere deletes every session matched by match. Each HDEL reports
// whether it actually removed the field, so a session deleted concurrently
// by another process is not reported twice.
func (s *Store) RemoveWhere(ctx context.Context, match func(*session.Session) bool) ([]*session.Session, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []*session.Session
	for _, sess := range all {
		if match(sess) {
			candidates = append(candidates, sess)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	pipe := s.rdb.TxPipeline()
	cmds := make([]*redis.IntCmd, len(candidates))
	for i, sess := range candidates {
		cmds[i] = pipe.HDel(ctx, s.sessionsKey(), sess.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("delete sessions: %w", err)
	}

	removed := candidates[:0]
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			removed = append(removed, candidates[i])
		}
	}
	return removed, nil
}

// RemoveAll deletes every session.
func (s *Store) RemoveAll(ctx context.Context) (int, error) {
	pipe := s.rdb.TxPipeline()
	n := pipe.HLen(ctx, s.sessionsKey())
	pipe.Del(ctx, s.sessionsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return int(n.Val()), nil
}

// Record appends an entry to the connect history.
func (s *Store) Record(ctx context.Context, t session.RecentTarget) error {
	t.UsedAt = t.UsedAt.UTC()
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode recent target: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.recentKey(), data)
	pipe.LTrim(ctx, s.recentKey(), -maxRecent, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record recent target: %w", err)
	}
	return nil
}

// Recent returns up to n distinct addresses recorded by owner, newest first.
func (s *Store) Recent(ctx context.Context, owner string, n int) ([]string, error) {
	raw, err := s.rdb.LRange(ctx, s.recentKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent targets: %w", err)
	}
	entries := make([]session.RecentTarget, 0, len(raw))
	for _, item := range raw {
		var t session.RecentTarget
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		entries = append(entries, t)
	}
	return session.MostRecent(entries, owner, n), nil
}

// Compile-time interface verification.
var (
	_ session.SessionStore      = (*Store)(nil)
	_ session.RecentTargetStore = (*Store)(nil)
)

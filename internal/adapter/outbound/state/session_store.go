package state

import (
	"context"
	"errors"

	"github.com/netcore-rdp/rdportal/internal/domain/session"
)

// SessionStore implements session.SessionStore and
// session.RecentTargetStore on top of a FileStateStore.
type SessionStore struct {
	file *FileStateStore
}

// NewSessionStore wraps file.
func NewSessionStore(file *FileStateStore) *SessionStore {
	return &SessionStore{file: file}
}

// Append stores a new session.
func (s *SessionStore) Append(_ context.Context, sess *session.Session) error {
	return s.file.Update(func(st *AppState) error {
		if _, ok := st.Sessions[sess.ID]; ok {
			return session.ErrDuplicateID
		}
		st.Sessions[sess.ID] = toEntry(sess)
		return nil
	})
}

// Get returns the session with the given ID.
func (s *SessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	st, err := s.file.Load()
	if err != nil {
		return nil, err
	}
	e, ok := st.Sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return fromEntry(e), nil
}

// ListAll returns every stored session.
func (s *SessionStore) ListAll(_ context.Context) ([]*session.Session, error) {
	st, err := s.file.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*session.Session, 0, len(st.Sessions))
	for _, e := range st.Sessions {
		out = append(out, fromEntry(e))
	}
	return out, nil
}

// RemoveWhere deletes every session matched by match. The file is not
// rewritten when nothing matches.
func (s *SessionStore) RemoveWhere(_ context.Context, match func(*session.Session) bool) ([]*session.Session, error) {
	var removed []*session.Session
	err := s.file.Update(func(st *AppState) error {
		for id, e := range st.Sessions {
			sess := fromEntry(e)
			if match(sess) {
				removed = append(removed, sess)
				delete(st.Sessions, id)
			}
		}
		if len(removed) == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// RemoveAll deletes every session.
func (s *SessionStore) RemoveAll(_ context.Context) (int, error) {
	var n int
	err := s.file.Update(func(st *AppState) error {
		n = len(st.Sessions)
		st.Sessions = make(map[string]SessionEntry)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Record appends an entry to the connect history.
func (s *SessionStore) Record(_ context.Context, t session.RecentTarget) error {
	return s.file.Update(func(st *AppState) error {
		st.RecentIPs = append(st.RecentIPs, RecentIPEntry{
			UserID: t.Owner,
			IP:     t.Address,
			UsedAt: t.UsedAt.UTC(),
		})
		return nil
	})
}

// Recent returns up to n distinct addresses recorded by owner, newest first.
func (s *SessionStore) Recent(_ context.Context, owner string, n int) ([]string, error) {
	st, err := s.file.Load()
	if err != nil {
		return nil, err
	}
	entries := make([]session.RecentTarget, 0, len(st.RecentIPs))
	for _, e := range st.RecentIPs {
		entries = append(entries, session.RecentTarget{Owner: e.UserID, Address: e.IP, UsedAt: e.UsedAt})
	}
	return session.MostRecent(entries, owner, n), nil
}

// errNoChange aborts an Update without writing.
var errNoChange = errors.New("no change")

func toEntry(sess *session.Session) SessionEntry {
	e := SessionEntry{
		SessionID:   sess.ID,
		IP:          sess.TargetAddress,
		Username:    sess.Principal,
		Name:        sess.DisplayName,
		CreatedAt:   sess.CreatedAt.UTC(),
		UsesGateway: sess.UsesGateway,
	}
	if sess.GatewayURL != nil {
		u := *sess.GatewayURL
		e.GatewayURL = &u
	}
	return e
}

func fromEntry(e SessionEntry) *session.Session {
	sess := &session.Session{
		ID:            e.SessionID,
		TargetAddress: e.IP,
		DisplayName:   e.Name,
		Principal:     e.Username,
		CreatedAt:     e.CreatedAt,
		UsesGateway:   e.UsesGateway,
	}
	if e.GatewayURL != nil {
		u := *e.GatewayURL
		sess.GatewayURL = &u
	}
	return sess
}

// Compile-time interface verification.
var (
	_ session.SessionStore      = (*SessionStore)(nil)
	_ session.RecentTargetStore = (*SessionStore)(nil)
)

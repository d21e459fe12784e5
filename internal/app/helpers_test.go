package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// fakeConn records every frame it accepts; flipping fail simulates a wedged
// connection.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return context.Canceled
	}
	if f.fail {
		return context.DeadlineExceeded
	}
	cp := make(core.Frame, len(fr))
	copy(cp, fr)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) envelopes(t *testing.T) []core.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Envelope, 0, len(f.frames))
	for _, fr := range f.frames {
		var env core.Envelope
		if err := json.Unmarshal(fr, &env); err != nil {
			t.Fatalf("received frame is not an envelope: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeConn) byEvent(t *testing.T, kind core.EventKind) []core.Envelope {
	t.Helper()
	var out []core.Envelope
	for _, env := range f.envelopes(t) {
		if env.Event == kind {
			out = append(out, env)
		}
	}
	return out
}

// fakeStore is an in-memory core.Store.
type fakeStore struct {
	mu       sync.Mutex
	groups   map[string]*domain.Group
	users    map[domain.UserID]*domain.User
	contacts map[domain.UserID][]domain.UserID
	messages []*domain.Message
	notifs   []*domain.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:   make(map[string]*domain.Group),
		users:    make(map[domain.UserID]*domain.User),
		contacts: make(map[domain.UserID][]domain.UserID),
	}
}

func (s *fakeStore) Group(_ context.Context, id string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[id]; ok {
		return g, nil
	}
	return nil, core.ErrNotFound
}

func (s *fakeStore) User(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

func (s *fakeStore) Contacts(_ context.Context, id domain.UserID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contacts[id], nil
}

func (s *fakeStore) SaveMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) SaveNotification(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	s.notifs = append(s.notifs, n)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) savedMessages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Message(nil), s.messages...)
}

func (s *fakeStore) savedNotifications() []*domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Notification(nil), s.notifs...)
}

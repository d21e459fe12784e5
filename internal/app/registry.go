package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// SessionHandle identifies one live connection. A user with several tabs or
// devices holds several handles at once.
type SessionHandle string

type session struct {
	handle      SessionHandle
	userID      domain.UserID
	conn        core.SignalConnection
	device      string
	connectedAt time.Time

	mu         sync.Mutex
	activeConv domain.ConversationID
}

func (s *session) setActiveConversation(conv domain.ConversationID) {
	s.mu.Lock()
	s.activeConv = conv
	s.mu.Unlock()
}

func (s *session) activeConversation() domain.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConv
}

// Registry tracks which connections currently represent each user and owns
// the send/fan-out primitives. All mutation is mutex-guarded; register and
// unregister arrive concurrently from independent connections.
type Registry struct {
	mu       sync.RWMutex
	byHandle map[SessionHandle]*session
	byUser   map[domain.UserID]map[SessionHandle]*session

	onLastDisconnect func(domain.UserID)
}

func NewRegistry() *Registry {
	return &Registry{
		byHandle: make(map[SessionHandle]*session),
		byUser:   make(map[domain.UserID]map[SessionHandle]*session),
	}
}

// OnLastDisconnect registers fn to run whenever a user's final connection is
// removed, whether by the read pump or by send-failure eviction. Must be set
// before the first Register.
func (r *Registry) OnLastDisconnect(fn func(domain.UserID)) {
	r.onLastDisconnect = fn
}

// Register adds conn under userID and reports whether it is the user's first
// live connection. It never fails.
func (r *Registry) Register(userID domain.UserID, conn core.SignalConnection, device string) (SessionHandle, bool) {
	s := &session{
		handle:      SessionHandle(uuid.NewString()),
		userID:      userID,
		conn:        conn,
		device:      device,
		connectedAt: time.Now(),
	}

	r.mu.Lock()
	r.byHandle[s.handle] = s
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[SessionHandle]*session)
		r.byUser[userID] = set
	}
	set[s.handle] = s
	first := len(set) == 1
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("user", string(userID)).Str("handle", string(s.handle)).Bool("first", first).Msg("connection registered")
	return s.handle, first
}

// Unregister removes the connection for h and closes it. It is idempotent:
// ok=false means the handle was already gone and nothing happened. last
// reports whether the user has no live connection left.
func (r *Registry) Unregister(h SessionHandle) (userID domain.UserID, last bool, ok bool) {
	r.mu.Lock()
	s, found := r.byHandle[h]
	if !found {
		r.mu.Unlock()
		return "", false, false
	}
	delete(r.byHandle, h)
	set := r.byUser[s.userID]
	delete(set, h)
	if len(set) == 0 {
		delete(r.byUser, s.userID)
		last = true
	}
	r.mu.Unlock()

	s.conn.Close()
	log.Info().Str("module", "app.registry").Str("user", string(s.userID)).Str("handle", string(h)).Bool("last", last).Msg("connection unregistered")
	if last && r.onLastDisconnect != nil {
		r.onLastDisconnect(s.userID)
	}
	return s.userID, last, true
}

// SendToUser fans frame out to every live connection of userID. It returns
// false when the user has no live connection; callers treat that as
// "recipient offline", not an error. Connections that refuse the frame are
// evicted so a wedged tab cannot hold delivery hostage.
func (r *Registry) SendToUser(userID domain.UserID, frame core.Frame) bool {
	r.mu.RLock()
	set := r.byUser[userID]
	conns := make([]*session, 0, len(set))
	for _, s := range set {
		conns = append(conns, s)
	}
	r.mu.RUnlock()

	if len(conns) == 0 {
		return false
	}

	delivered := false
	for _, s := range conns {
		if err := s.conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("user", string(userID)).Str("handle", string(s.handle)).Msg("send failed, evicting connection")
			r.Unregister(s.handle)
			continue
		}
		delivered = true
	}
	return delivered
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) OnlineUserIDs() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	return out
}

// SetActiveConversation records the client-reported open conversation for
// one connection.
func (r *Registry) SetActiveConversation(h SessionHandle, conv domain.ConversationID) {
	r.mu.RLock()
	s, ok := r.byHandle[h]
	r.mu.RUnlock()
	if !ok {
		return
	}
	s.setActiveConversation(conv)
}

// HasConversationOpen reports whether any of the user's connections has conv
// as its reported active conversation.
func (r *Registry) HasConversationOpen(userID domain.UserID, conv domain.ConversationID) bool {
	r.mu.RLock()
	set := r.byUser[userID]
	conns := make([]*session, 0, len(set))
	for _, s := range set {
		conns = append(conns, s)
	}
	r.mu.RUnlock()

	for _, s := range conns {
		if s.activeConversation() == conv {
			return true
		}
	}
	return false
}

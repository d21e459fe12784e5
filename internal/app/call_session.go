package app

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/collabquest/relay/internal/domain"
)

// callSession is the relay-side record of one two-party call. The pair key
// is the unit of mutual exclusion: everything behind mu is linearized per
// pair while different pairs proceed in parallel. Transitions gather their
// outbound frames under the lock and the manager sends them after unlock.
type callSession struct {
	key domain.PairKey

	mu           sync.Mutex
	state        domain.CallState
	initiator    domain.UserID
	kind         domain.CallKind
	pendingICE   map[domain.UserID][]webrtc.ICECandidateInit
	createdAt    time.Time
	lastActivity time.Time
	ringTimer    *time.Timer
}

func newCallSession(key domain.PairKey, initiator domain.UserID, kind domain.CallKind) *callSession {
	now := time.Now()
	return &callSession{
		key:          key,
		state:        domain.CallRinging,
		initiator:    initiator,
		kind:         kind,
		pendingICE:   make(map[domain.UserID][]webrtc.ICECandidateInit),
		createdAt:    now,
		lastActivity: now,
	}
}

// queueCandidate buffers a candidate addressed to target until the session
// connects. Called with mu held.
func (s *callSession) queueCandidate(target domain.UserID, c webrtc.ICECandidateInit) {
	s.pendingICE[target] = append(s.pendingICE[target], c)
}

// drainCandidates returns the buffered candidates for target in arrival
// order and clears the queue, so a flush happens exactly once. Called with
// mu held.
func (s *callSession) drainCandidates(target domain.UserID) []webrtc.ICECandidateInit {
	queued := s.pendingICE[target]
	delete(s.pendingICE, target)
	return queued
}

// stopRingTimer cancels the pending ring deadline, if any. Called with mu
// held.
func (s *callSession) stopRingTimer() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// CallInfo is a read-only snapshot for inspection endpoints.
type CallInfo struct {
	Users        [2]domain.UserID `json:"users"`
	State        string           `json:"state"`
	Kind         domain.CallKind  `json:"kind"`
	InitiatorID  domain.UserID    `json:"initiator_id"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
}

func (s *callSession) snapshot() CallInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CallInfo{
		Users:        [2]domain.UserID{s.key.A, s.key.B},
		State:        s.state.String(),
		Kind:         s.kind,
		InitiatorID:  s.initiator,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

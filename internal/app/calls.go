package app

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// Calls owns the call-signaling state machine. At most one session exists
// per unordered user pair; invalid or late events are dropped as benign
// races, never surfaced as transport errors.
type Calls struct {
	reg         *Registry
	ringTimeout time.Duration

	mu       sync.Mutex
	sessions map[domain.PairKey]*callSession
}

// outbound is a frame decided under a session lock and sent after unlock.
type outbound struct {
	to    domain.UserID
	frame core.Frame
}

func NewCalls(reg *Registry, ringTimeout time.Duration) *Calls {
	return &Calls{
		reg:         reg,
		ringTimeout: ringTimeout,
		sessions:    make(map[domain.PairKey]*callSession),
	}
}

func (c *Calls) lookup(key domain.PairKey) *callSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[key]
}

// remove deletes the session only if it is still the one we ended, so a
// pair that re-dialed in the meantime is untouched.
func (c *Calls) remove(key domain.PairKey, s *callSession) {
	c.mu.Lock()
	if c.sessions[key] == s {
		delete(c.sessions, key)
	}
	c.mu.Unlock()
}

func (c *Calls) sendAll(outs []outbound) {
	for _, o := range outs {
		c.reg.SendToUser(o.to, o.frame)
	}
}

func (c *Calls) relay(kind core.EventKind, from, to domain.UserID, payload any) []outbound {
	frame, err := core.EncodeEvent(kind, from, to, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.calls").Str("event", string(kind)).Msg("encode relay frame")
		return nil
	}
	return []outbound{{to: to, frame: frame}}
}

// HandleOffer processes an initiate or renegotiation offer from sender for
// the sender/recipient pair.
func (c *Calls) HandleOffer(sender, recipient domain.UserID, p core.OfferPayload) {
	key := domain.NewPairKey(sender, recipient)

	c.mu.Lock()
	s, exists := c.sessions[key]
	if !exists {
		if !c.reg.IsOnline(recipient) {
			c.mu.Unlock()
			// The would-be session goes straight to ended; only the caller
			// hears about it.
			c.sendAll(c.relay(core.EventHangUp, recipient, sender, core.HangUpPayload{Reason: core.ReasonUnreachable}))
			log.Info().Str("module", "app.calls").Str("pair", key.String()).Msg("callee unreachable")
			return
		}
		s = newCallSession(key, sender, p.CallType)
		s.ringTimer = time.AfterFunc(c.ringTimeout, func() { c.expire(key, s) })
		c.sessions[key] = s
		c.mu.Unlock()

		c.sendAll(c.relay(core.EventOffer, sender, recipient, p))
		log.Info().Str("module", "app.calls").Str("pair", key.String()).Str("initiator", string(sender)).Str("kind", string(p.CallType)).Msg("call ringing")
		return
	}
	c.mu.Unlock()

	var outs []outbound
	s.mu.Lock()
	s.lastActivity = time.Now()
	switch s.state {
	case domain.CallRinging:
		if sender != s.initiator {
			outs = c.resolveGlare(s, sender, p)
		}
		// A repeated offer from the current initiator is a duplicate; drop.
	case domain.CallConnected:
		s.state = domain.CallRenegotiating
		outs = c.relay(core.EventOffer, sender, key.Other(sender), p)
	case domain.CallRenegotiating:
		// Updated sub-exchange over the same session; keep relaying.
		outs = c.relay(core.EventOffer, sender, key.Other(sender), p)
	case domain.CallEnded:
	}
	s.mu.Unlock()
	c.sendAll(outs)
}

// resolveGlare handles both sides dialing at once. The lexicographically
// smaller user id always wins, so the outcome is the same regardless of
// arrival order: the loser's offer is discarded and the loser receives the
// winner's offer as a plain incoming call. Called with s.mu held.
func (c *Calls) resolveGlare(s *callSession, sender domain.UserID, p core.OfferPayload) []outbound {
	canonical := s.key.CanonicalInitiator()
	if s.initiator == canonical {
		// The stored offer already has the canonical initiator; the
		// concurrent one from the other side is discarded.
		log.Info().Str("module", "app.calls").Str("pair", s.key.String()).Str("discarded", string(sender)).Msg("glare: kept canonical initiator")
		return nil
	}

	// The stored session was created by the non-canonical side. Adopt the
	// canonical offer and drop candidates queued for the discarded one.
	loser := s.initiator
	s.initiator = sender
	s.kind = p.CallType
	delete(s.pendingICE, sender)

	log.Info().Str("module", "app.calls").Str("pair", s.key.String()).Str("initiator", string(sender)).Str("discarded", string(loser)).Msg("glare: adopted canonical initiator")
	return c.relay(core.EventOffer, sender, loser, p)
}

// HandleAnswer connects a ringing session or completes a renegotiation.
// Buffered ICE candidates flush in arrival order exactly once, right after
// the answer.
func (c *Calls) HandleAnswer(sender, recipient domain.UserID, sd webrtc.SessionDescription) {
	key := domain.NewPairKey(sender, recipient)
	s := c.lookup(key)
	if s == nil {
		return
	}

	var outs []outbound
	s.mu.Lock()
	s.lastActivity = time.Now()
	switch s.state {
	case domain.CallRinging:
		if sender == s.initiator {
			// An answer can only come from the callee; benign race.
			break
		}
		s.state = domain.CallConnected
		s.stopRingTimer()
		outs = c.relay(core.EventAnswer, sender, s.initiator, sd)
		outs = append(outs, c.flushCandidates(s, s.initiator)...)
		outs = append(outs, c.flushCandidates(s, sender)...)
		log.Info().Str("module", "app.calls").Str("pair", key.String()).Msg("call connected")
	case domain.CallRenegotiating:
		s.state = domain.CallConnected
		outs = c.relay(core.EventAnswer, sender, key.Other(sender), sd)
	default:
	}
	s.mu.Unlock()
	c.sendAll(outs)
}

// flushCandidates drains the queue addressed to target. Called with s.mu
// held; frames go out after unlock like every other relay.
func (c *Calls) flushCandidates(s *callSession, target domain.UserID) []outbound {
	queued := s.drainCandidates(target)
	if len(queued) == 0 {
		return nil
	}
	from := s.key.Other(target)
	outs := make([]outbound, 0, len(queued))
	for _, cand := range queued {
		outs = append(outs, c.relay(core.EventICECandidate, from, target, cand)...)
	}
	log.Debug().Str("module", "app.calls").Str("pair", s.key.String()).Str("to", string(target)).Int("count", len(queued)).Msg("flushed ice candidates")
	return outs
}

// HandleCandidate relays or buffers an ICE candidate. Candidates for absent
// or ended sessions are dropped silently; they are benign races.
func (c *Calls) HandleCandidate(sender, recipient domain.UserID, cand webrtc.ICECandidateInit) {
	key := domain.NewPairKey(sender, recipient)
	s := c.lookup(key)
	if s == nil {
		return
	}

	var outs []outbound
	s.mu.Lock()
	s.lastActivity = time.Now()
	switch s.state {
	case domain.CallRinging:
		s.queueCandidate(recipient, cand)
	case domain.CallConnected, domain.CallRenegotiating:
		outs = c.relay(core.EventICECandidate, sender, recipient, cand)
	case domain.CallEnded:
	}
	s.mu.Unlock()
	c.sendAll(outs)
}

// HangUp ends the pair's session from either side, in any state. It is
// idempotent: hanging up an already-ended or absent session is a no-op, and
// the peer is never told twice.
func (c *Calls) HangUp(sender, recipient domain.UserID) {
	key := domain.NewPairKey(sender, recipient)
	s := c.lookup(key)
	if s == nil {
		return
	}
	c.end(key, s, sender, core.HangUpPayload{}, []domain.UserID{key.Other(sender)})
}

// expire fires when a session rang past its deadline. Both parties hear
// about the timeout.
func (c *Calls) expire(key domain.PairKey, s *callSession) {
	payload := core.HangUpPayload{Reason: core.ReasonTimeout}
	s.mu.Lock()
	if s.state != domain.CallRinging {
		s.mu.Unlock()
		return
	}
	s.state = domain.CallEnded
	s.stopRingTimer()
	s.mu.Unlock()
	c.remove(key, s)

	log.Info().Str("module", "app.calls").Str("pair", key.String()).Msg("call timed out")
	c.sendAll(append(
		c.relay(core.EventHangUp, key.B, key.A, payload),
		c.relay(core.EventHangUp, key.A, key.B, payload)...,
	))
}

// EndAllFor treats a user's disconnect as an implicit hang-up on every
// session the user is part of; each surviving peer is notified once.
func (c *Calls) EndAllFor(user domain.UserID, reason string) {
	c.mu.Lock()
	affected := make([]*callSession, 0)
	for key, s := range c.sessions {
		if key.Has(user) {
			affected = append(affected, s)
		}
	}
	c.mu.Unlock()

	for _, s := range affected {
		c.end(s.key, s, user, core.HangUpPayload{Reason: reason}, []domain.UserID{s.key.Other(user)})
	}
}

// end moves a session to its terminal state exactly once and notifies the
// given targets. Concurrent end attempts race on the state check; one wins.
func (c *Calls) end(key domain.PairKey, s *callSession, from domain.UserID, payload core.HangUpPayload, notify []domain.UserID) {
	s.mu.Lock()
	if s.state == domain.CallEnded {
		s.mu.Unlock()
		return
	}
	s.state = domain.CallEnded
	s.stopRingTimer()
	s.mu.Unlock()
	c.remove(key, s)

	log.Info().Str("module", "app.calls").Str("pair", key.String()).Str("by", string(from)).Str("reason", payload.Reason).Msg("call ended")
	var outs []outbound
	for _, t := range notify {
		outs = append(outs, c.relay(core.EventHangUp, from, t, payload)...)
	}
	c.sendAll(outs)
}

// Snapshot lists the live sessions for inspection endpoints.
func (c *Calls) Snapshot() []CallInfo {
	c.mu.Lock()
	sessions := make([]*callSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	out := make([]CallInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot())
	}
	return out
}

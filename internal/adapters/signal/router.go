package signal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/app"
	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// dispatcher is the envelope router for one connection. Each event kind gets
// its own lane (a buffered channel with a worker goroutine), so a slow call
// negotiation can never stall chat delivery on the same connection, while
// frames of the same kind keep their arrival order.
type dispatcher struct {
	ctl        *Controller
	handle     app.SessionHandle
	userID     domain.UserID
	senderName string

	mu     sync.Mutex
	lanes  map[core.EventKind]chan *core.Envelope
	closed bool
	wg     sync.WaitGroup
}

func newDispatcher(ctl *Controller, handle app.SessionHandle, userID domain.UserID, senderName string) *dispatcher {
	return &dispatcher{
		ctl:        ctl,
		handle:     handle,
		userID:     userID,
		senderName: senderName,
		lanes:      make(map[core.EventKind]chan *core.Envelope),
	}
}

// route decodes one inbound frame and hands it to its lane. Malformed or
// unknown envelopes are dropped and logged; the connection stays open.
func (d *dispatcher) route(raw core.Frame) {
	env, err := core.DecodeEnvelope(raw)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(d.userID)).Msg("dropping envelope")
		return
	}
	// Hang-up frames are exempt from the limiter: a flooded budget must not
	// strand the peer in a call that can no longer be torn down.
	if env.Event != core.EventHangUp && !d.ctl.limiter.Allow(d.userID) {
		log.Warn().Str("module", "signal").Str("user", string(d.userID)).Str("event", string(env.Event)).Msg("rate limited, dropping frame")
		return
	}
	// The sender is always the connection's user; a spoofed sender_id is
	// overwritten, never trusted.
	env.SenderID = string(d.userID)

	lane := d.lane(env.Event)
	if lane == nil {
		return
	}
	select {
	case lane <- env:
	default:
		log.Warn().Str("module", "signal").Str("user", string(d.userID)).Str("event", string(env.Event)).Msg("lane full, dropping frame")
	}
}

func (d *dispatcher) lane(kind core.EventKind) chan *core.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if ch, ok := d.lanes[kind]; ok {
		return ch
	}
	ch := make(chan *core.Envelope, 16)
	d.lanes[kind] = ch
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for env := range ch {
			d.dispatch(env)
		}
	}()
	return ch
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.lanes {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *dispatcher) dispatch(env *core.Envelope) {
	recipient := domain.UserID(env.RecipientID)

	switch env.Event {
	case core.EventMessage:
		var p core.MessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			d.drop(env, err)
			return
		}
		if p.ActiveConversation != "" {
			d.ctl.Orch.Registry.SetActiveConversation(d.handle, p.ActiveConversation)
		}
		// Persisting must outlive the connection, hence Background.
		delivered, err := d.ctl.Orch.Chat.Deliver(context.Background(), d.userID, d.senderName, env.RecipientID, p)
		if err != nil {
			d.drop(env, err)
			return
		}
		if !delivered {
			log.Debug().Str("module", "signal").Str("user", string(d.userID)).Str("recipient", env.RecipientID).Msg("recipient offline, message stored only")
		}

	case core.EventOffer:
		var p core.OfferPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			d.drop(env, err)
			return
		}
		if !p.CallType.Valid() {
			p.CallType = domain.CallVideo
		}
		d.ctl.Orch.Calls.HandleOffer(d.userID, recipient, p)

	case core.EventAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(env.Data, &sd); err != nil {
			d.drop(env, err)
			return
		}
		d.ctl.Orch.Calls.HandleAnswer(d.userID, recipient, sd)

	case core.EventICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Data, &cand); err != nil {
			d.drop(env, err)
			return
		}
		d.ctl.Orch.Calls.HandleCandidate(d.userID, recipient, cand)

	case core.EventHangUp:
		d.ctl.Orch.Calls.HangUp(d.userID, recipient)

	case core.EventNotification:
		if env.RecipientID == "" {
			log.Warn().Str("module", "signal").Str("user", string(d.userID)).Msg("notification without recipient, dropping")
			return
		}
		var p core.NotificationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			d.drop(env, err)
			return
		}
		d.ctl.Orch.Notifier.Push(context.Background(), &domain.Notification{
			RecipientID: recipient,
			Kind:        p.Kind,
			RelatedID:   p.RelatedID,
			Payload:     p.Payload,
		})
	}
}

func (d *dispatcher) drop(env *core.Envelope, err error) {
	log.Warn().Err(err).Str("module", "signal").Str("user", string(d.userID)).Str("event", string(env.Event)).Msg("bad payload, dropping")
}

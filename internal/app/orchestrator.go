package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// Orchestrator wires the registry and the per-concern services together and
// owns the connection lifecycle hooks the transport adapter calls into.
type Orchestrator struct {
	Registry *Registry
	Presence *Presence
	Chat     *Chat
	Calls    *Calls
	Notifier *Notifier
	Store    core.Store
}

func NewOrchestrator(store core.Store, ringTimeout time.Duration) *Orchestrator {
	reg := NewRegistry()
	o := &Orchestrator{
		Registry: reg,
		Presence: NewPresence(reg),
		Chat:     NewChat(reg, store),
		Calls:    NewCalls(reg, ringTimeout),
		Notifier: NewNotifier(reg, store),
		Store:    store,
	}
	reg.OnLastDisconnect(o.userGone)
	return o
}

// OnConnect registers a new connection. The user's first connection pushes a
// presence delta to their online contacts so nobody has to poll.
func (o *Orchestrator) OnConnect(userID domain.UserID, conn core.SignalConnection, device string) SessionHandle {
	h, first := o.Registry.Register(userID, conn, device)
	if first {
		go o.pushPresence(userID, true)
	}
	return h
}

// OnDisconnect tears a connection down. The registry's last-disconnect hook
// covers both this path and send-failure eviction, so a connection removed by
// either one triggers the teardown below exactly once.
func (o *Orchestrator) OnDisconnect(h SessionHandle) {
	o.Registry.Unregister(h)
}

// userGone runs when a user's final connection is removed by any path.
// Losing the last connection is an implicit hang-up on every call the user
// was part of; there is no grace period and no resume.
func (o *Orchestrator) userGone(userID domain.UserID) {
	o.Calls.EndAllFor(userID, core.ReasonPeerDisconnected)
	go o.pushPresence(userID, false)
}

// pushPresence tells the user's contacts about an online/offline edge.
// Contact resolution is a collaborator call and runs outside every lock.
func (o *Orchestrator) pushPresence(userID domain.UserID, online bool) {
	contacts, err := o.Store.Contacts(context.Background(), userID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orchestrator").Str("user", string(userID)).Msg("contact lookup failed, skipping presence push")
		return
	}

	kind := core.KindPresenceOffline
	if online {
		kind = core.KindPresenceOnline
	}
	payload := core.NotificationPayload{Kind: kind, RelatedID: string(userID)}
	for _, contact := range contacts {
		frame, err := core.EncodeEvent(core.EventNotification, userID, contact, payload)
		if err != nil {
			return
		}
		o.Registry.SendToUser(contact, frame)
	}
}

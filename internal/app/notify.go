package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// Notifier pushes out-of-band events to a recipient's live connections and
// always hands them to the collaborator store, which owns read state and
// outcomes. The relay is a transport here, not a workflow engine.
type Notifier struct {
	reg   *Registry
	store core.Store
}

func NewNotifier(reg *Registry, store core.Store) *Notifier {
	return &Notifier{reg: reg, store: store}
}

// Push delivers n live when possible and records it either way. The returned
// flag reports live delivery only.
func (n *Notifier) Push(ctx context.Context, notif *domain.Notification) bool {
	payload := core.NotificationPayload{
		Kind:      notif.Kind,
		RelatedID: notif.RelatedID,
		Payload:   notif.Payload,
	}
	frame, err := core.EncodeEvent(core.EventNotification, "", notif.RecipientID, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notify").Msg("encode notification")
		return false
	}

	notif.Delivered = n.reg.SendToUser(notif.RecipientID, frame)
	if err := n.store.SaveNotification(ctx, notif); err != nil {
		log.Warn().Err(err).Str("module", "app.notify").Str("user", string(notif.RecipientID)).Msg("store handoff failed")
	}
	return notif.Delivered
}

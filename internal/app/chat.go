package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

// Chat routes message envelopes to recipient connections and hands every
// message to the collaborator store for durable history and unread counts.
// The relay itself never retries an offline recipient.
type Chat struct {
	reg   *Registry
	store core.Store
}

func NewChat(reg *Registry, store core.Store) *Chat {
	return &Chat{reg: reg, store: store}
}

// Deliver fans a message out to its direct recipient or group members and
// reports whether at least one live connection took it. false means everyone
// relevant was offline, which is a normal outcome.
func (c *Chat) Deliver(ctx context.Context, sender domain.UserID, senderName string, recipientID string, p core.MessagePayload) (bool, error) {
	msg, err := domain.NewMessage(sender, recipientID, p.Content, p.Attachments)
	if err != nil {
		return false, err
	}
	msg.SenderName = senderName

	// Group lookup happens before any fan-out and outside every lock.
	group, err := c.store.Group(ctx, recipientID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		log.Warn().Err(err).Str("module", "app.chat").Str("conversation", recipientID).Msg("group lookup failed, treating as direct")
	}

	recipient := domain.UserID(recipientID)
	var open bool
	if group == nil {
		// The read flag rides the wire frame too, so it must be final before
		// encoding. The message counts as read only when the recipient
		// currently has this conversation open, per the client-reported hint.
		open = c.reg.HasConversationOpen(recipient, domain.ConversationID(sender))
		msg.Read = open
	}

	frame, err := core.EncodeEvent(core.EventMessage, sender, recipient, msg)
	if err != nil {
		return false, err
	}

	delivered := false
	if group != nil {
		for _, member := range group.Recipients(sender) {
			if c.reg.SendToUser(member, frame) {
				delivered = true
			}
		}
	} else {
		delivered = c.reg.SendToUser(recipient, frame)
		msg.Read = delivered && open
	}

	if err := c.store.SaveMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("module", "app.chat").Str("message", string(msg.ID)).Msg("store handoff failed")
	}

	c.touch(group, sender, domain.UserID(recipientID))
	return delivered, nil
}

// touch emits a lightweight conversation.touched hint to every participant
// so list views can refresh without re-fetching history. Each side of a
// direct chat keys the conversation by its peer.
func (c *Chat) touch(group *domain.Group, sender domain.UserID, recipient domain.UserID) {
	send := func(to domain.UserID, conv string) {
		payload := core.NotificationPayload{
			Kind:      core.KindConversationTouched,
			RelatedID: conv,
		}
		frame, err := core.EncodeEvent(core.EventNotification, sender, to, payload)
		if err != nil {
			return
		}
		c.reg.SendToUser(to, frame)
	}

	if group != nil {
		send(sender, group.ID)
		for _, member := range group.Recipients(sender) {
			send(member, group.ID)
		}
		return
	}
	send(sender, string(recipient))
	send(recipient, string(sender))
}

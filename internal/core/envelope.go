package core

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/collabquest/relay/internal/domain"
)

type EventKind string

const (
	EventMessage      EventKind = "message"
	EventOffer        EventKind = "offer"
	EventAnswer       EventKind = "answer"
	EventICECandidate EventKind = "ice-candidate"
	EventHangUp       EventKind = "hang-up"
	EventNotification EventKind = "notification"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrMissingRecipient  = errors.New("missing recipient")
)

// Envelope is the single tagged frame shape shared by every event kind.
// Data stays opaque here; handlers decode it per kind.
type Envelope struct {
	Event       EventKind       `json:"event"`
	RecipientID string          `json:"recipient_id,omitempty"`
	SenderID    string          `json:"sender_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses and validates the tagged union. recipient_id is
// required for every kind except notification.
func DecodeEnvelope(raw Frame) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformedEnvelope
	}
	switch env.Event {
	case EventMessage, EventOffer, EventAnswer, EventICECandidate, EventHangUp:
		if env.RecipientID == "" {
			return nil, ErrMissingRecipient
		}
	case EventNotification:
	default:
		return nil, ErrUnknownEvent
	}
	return &env, nil
}

func (e *Envelope) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	return Frame(b), err
}

// EncodeEvent builds an outbound frame in one step.
func EncodeEvent(kind EventKind, sender domain.UserID, recipient domain.UserID, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Event:       kind,
		SenderID:    string(sender),
		RecipientID: string(recipient),
		Data:        data,
	}
	return env.Encode()
}

// MessagePayload is the data body of an inbound message event. The optional
// active_conversation field is the client-reported hint for unread-count
// suppression; the relay never infers it.
type MessagePayload struct {
	Content            string                `json:"content"`
	Attachments        []domain.Attachment   `json:"attachments,omitempty"`
	ActiveConversation domain.ConversationID `json:"active_conversation,omitempty"`
}

// OfferPayload carries a session description the relay forwards untouched.
type OfferPayload struct {
	Offer    webrtc.SessionDescription `json:"offer"`
	CallType domain.CallKind           `json:"callType"`
}

type HangUpPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Hang-up reasons pushed by the relay itself.
const (
	ReasonUnreachable      = "unreachable"
	ReasonTimeout          = "timeout"
	ReasonPeerDisconnected = "peer-disconnected"
)

// NotificationPayload is the data body of a notification envelope.
type NotificationPayload struct {
	Kind      string          `json:"kind"`
	RelatedID string          `json:"related_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Hint kinds the relay emits on its own.
const (
	KindConversationTouched = "conversation.touched"
	KindPresenceOnline      = "presence.online"
	KindPresenceOffline     = "presence.offline"
)

package domain

import "encoding/json"

// Notification is an out-of-band event (invite, vote request, ...). The
// relay only handles live delivery; read state and outcomes live with the
// collaborator.
type Notification struct {
	RecipientID UserID          `json:"recipient_id"`
	Kind        string          `json:"kind"`
	RelatedID   string          `json:"related_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Delivered   bool            `json:"delivered"`
}

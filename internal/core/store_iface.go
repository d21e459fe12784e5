package core

import (
	"context"
	"errors"

	"github.com/collabquest/relay/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the collaborator REST surface the relay depends on.
// Implementations must be safe for concurrent use; the relay always calls
// them outside its registry and session locks.
type Store interface {
	// Group resolves a chat-group record, or ErrNotFound when id does not
	// name a group (the conversation is then a direct pair).
	Group(ctx context.Context, id string) (*domain.Group, error)
	// User resolves a user profile for display-name enrichment.
	User(ctx context.Context, id domain.UserID) (*domain.User, error)
	// Contacts lists the users who should see presence changes for id.
	Contacts(ctx context.Context, id domain.UserID) ([]domain.UserID, error)
	// SaveMessage hands a message off for durable history and unread counts.
	SaveMessage(ctx context.Context, msg *domain.Message) error
	// SaveNotification records a notification with its delivered flag.
	SaveNotification(ctx context.Context, n *domain.Notification) error
}

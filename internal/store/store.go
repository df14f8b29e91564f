// Package store holds the durable state behind the chat gateway: users
// (read-mostly, owned elsewhere), ephemeral sessions, conversations with
// their participant read pointers, and the append-only message log.
//
// All ids cross this boundary as hex strings; malformed ids surface as
// apperr.ErrValidation so the gateway can reject them without a round trip.
package store

import (
	"context"
	"time"

	"github.com/helpdeskhq/chat-service/internal/models"
)

// ListFlags narrows a conversation listing. Flags combine with logical AND.
type ListFlags struct {
	Unread bool
	All    bool
	Group  bool
}

// ConversationView is one row of a conversation listing: the conversation,
// its most recent message, the hydrated member list and the caller's
// unread count.
type ConversationView struct {
	Conversation  *models.Conversation  `json:"conversation"`
	LatestMessage *models.Message       `json:"latest_message,omitempty"`
	Members       []*models.Participant `json:"members"`
	UnreadCount   int64                 `json:"unread_count"`
}

type Users interface {
	// FindActive returns the user only when it exists, is active and is
	// not soft-deleted.
	FindActive(ctx context.Context, id string) (*models.User, error)
	SetStatus(ctx context.Context, id, status string, at time.Time) error
	// AllExist reports whether every id resolves to a live user.
	AllExist(ctx context.Context, ids []string) (bool, error)
}

type Sessions interface {
	Insert(ctx context.Context, s *models.Session) error
	// DeleteBySocket removes the session for the socket and returns the
	// removed row, or apperr.ErrNotFound if no such session exists.
	DeleteBySocket(ctx context.Context, socketID string) (*models.Session, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

type Conversations interface {
	// Create inserts one Participant per member plus the Conversation
	// itself. is_group_chat is derived once here from the participant
	// count and never recomputed afterwards.
	Create(ctx context.Context, participantIDs []string, name, creatorID string) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// SetLastMessage overwrites the denormalized snapshot with a single
	// $set; no read-modify-write.
	SetLastMessage(ctx context.Context, id string, snap *models.LastMessage) error
	// AdvanceReadPointer moves the member's last-read pointer with one
	// targeted document update. A non-member caller is a silent no-op.
	AdvanceReadPointer(ctx context.Context, conversationID, userID, messageID string) error
	// MemberIDs returns the user ids behind the conversation's
	// participant list, in insertion order.
	MemberIDs(ctx context.Context, conversationID string) ([]string, error)
	List(ctx context.Context, userID string, page, limit int64, flags ListFlags) ([]*ConversationView, error)
}

type Messages interface {
	Append(ctx context.Context, conversationID, senderID, content string, attachments []string) (*models.Message, error)
	// History returns messages newest-first, optionally filtered by a
	// case-insensitive literal substring match on content. The search
	// term is escaped before it reaches the regex engine.
	History(ctx context.Context, conversationID string, page, limit int64, search string) ([]*models.Message, error)
}

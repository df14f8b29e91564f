package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User status values broadcast through user_status_changed.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusBusy    = "busy"
	StatusAway    = "away"
)

// User is owned by the account service; the chat subsystem only reads it
// for identity/authorization and mutates status/last_active on presence
// transitions.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Avatar     string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Role       string             `bson:"role" json:"role"`
	Status     string             `bson:"status" json:"status"`
	LastActive time.Time          `bson:"last_active" json:"last_active"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
	IsDeleted  bool               `bson:"is_deleted" json:"-"`
}

// Session is one live socket connection. Its lifetime is exactly the
// connection's lifetime; it is not a login record.
type Session struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	SocketID   string             `bson:"socket_id" json:"socket_id"`
	DeviceInfo string             `bson:"device_info,omitempty" json:"device_info,omitempty"`
	IP         string             `bson:"ip,omitempty" json:"ip,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// LastMessage is the denormalized snapshot kept on a Conversation so list
// views avoid a per-row message lookup.
type LastMessage struct {
	Content  string             `bson:"content" json:"content"`
	SenderID primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	Type     string             `bson:"type" json:"type"`
	SentAt   time.Time          `bson:"sent_at" json:"sent_at"`
}

// Participant carries per-member mutable state (the read pointer). It is
// stored as its own document so advancing one member's pointer never
// rewrites the conversation, but it has no lifecycle outside the owning
// conversation's participant list.
type Participant struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID  primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	LastReadMessage primitive.ObjectID `bson:"last_read_message,omitempty" json:"last_read_message,omitempty"`

	// populated by the list projection, never persisted here
	User *User `bson:"user,omitempty" json:"user,omitempty"`
}

type Conversation struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string               `bson:"name,omitempty" json:"name,omitempty"`
	IsGroupChat  bool                 `bson:"is_group_chat" json:"is_group_chat"`
	CreatorID    primitive.ObjectID   `bson:"creator_id" json:"creator_id"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`
	LastMessage  *LastMessage         `bson:"last_message,omitempty" json:"last_message,omitempty"`
	IsActive     bool                 `bson:"is_active" json:"is_active"`
	IsDeleted    bool                 `bson:"is_deleted" json:"-"`
	CreatedAt    time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at" json:"updated_at"`
}

// Message is append-only. ConversationID and SenderID never change after
// insert; only the deleted/edited/favorite flags are mutable.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	SenderID       primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	Content        string             `bson:"content" json:"content"`
	Attachments    []string           `bson:"attachments,omitempty" json:"attachments,omitempty"`
	IsDeleted      bool               `bson:"is_deleted" json:"-"`
	IsEdited       bool               `bson:"is_edited" json:"is_edited"`
	IsFavorite     bool               `bson:"is_favorite" json:"is_favorite"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`

	// populated by the history projection
	Sender *User `bson:"sender,omitempty" json:"sender,omitempty"`
}

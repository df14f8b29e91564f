package ws

import "encoding/json"

// Client→server event names. These are a wire contract shared with the
// existing frontend, misspellings included.
const (
	EvAuthenticate       = "authenticate"
	EvSendPrivateMessage = "send-private-message"
	EvTyping             = "typing"
	EvStopTyping         = "stop_typing"
	EvReceiveMessage     = "recieve_message"
	EvHistory            = "history"
	EvFilterConversation = "filter_conversation"
)

// Server→client event names.
const (
	EvAuthSuccess            = "auth_success"
	EvAuthError              = "auth_error"
	EvError                  = "error"
	EvConversationNotFound   = "conversation_not_found"
	EvMsgReceive             = "msg_recieve"
	EvNewMessageNotification = "new_message_notification"
	EvMsgSent                = "msg_sent"
	EvReadReceiptUpdated     = "read_receipt_updated"
	EvMsgDelivered           = "msg_delivered"
	EvMsgList                = "msg_list"
	EvFilteredConversation   = "filtered_conversation"
	EvUserStatusChanged      = "user_status_changed"
)

// ClientFrame is one decoded inbound websocket message.
type ClientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerFrame is the outbound envelope. Status carries an HTTP-style code
// so clients can pattern-match failures without parsing messages.
type ServerFrame struct {
	Event   string `json:"event"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Success bool   `json:"success"`
}

func okFrame(event, message string, data any) ServerFrame {
	return ServerFrame{Event: event, Status: 200, Message: message, Data: data, Success: true}
}

func errFrame(event string, status int, message string) ServerFrame {
	return ServerFrame{Event: event, Status: status, Message: message, Success: false}
}

// Inbound payloads.

type authenticatePayload struct {
	UserID     string `json:"user_id"`
	DeviceInfo string `json:"device_info"`
}

type sendMessagePayload struct {
	Content        string   `json:"content"`
	Participants   []string `json:"participants"`
	ConversationID string   `json:"conversation_id"`
	Name           string   `json:"name"`
	Attachments    []string `json:"attachments"`
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type receiveMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type historyPayload struct {
	ConversationID string `json:"conversation_id"`
	Page           int64  `json:"page"`
	Limit          int64  `json:"limit"`
	Search         string `json:"search"`
}

type filterConversationPayload struct {
	Page   int64 `json:"page"`
	Limit  int64 `json:"limit"`
	Unread bool  `json:"unread"`
	All    bool  `json:"all"`
	Group  bool  `json:"group"`
	// Accepted for wire compatibility with existing clients; has no
	// effect on the result set.
	Favourites bool `json:"favourites"`
}

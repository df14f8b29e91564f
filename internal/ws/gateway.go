// Package ws is the real-time edge of the service: the socket hub, the
// per-connection client pumps, and the gateway that routes named client
// events to their handlers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/auth"
	"github.com/helpdeskhq/chat-service/internal/events"
	"github.com/helpdeskhq/chat-service/internal/metrics"
	"github.com/helpdeskhq/chat-service/internal/models"
	"github.com/helpdeskhq/chat-service/internal/presence"
	"github.com/helpdeskhq/chat-service/internal/store"
)

// IdentityVerifier gates the handshake. Satisfied by auth.Verifier.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

func (o *Options) defaults() {
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBufferSize == 0 {
		o.SendBufferSize = 256
	}
}

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage)

// Gateway owns the event dispatch for every connection. It holds no
// per-connection state of its own; everything per-socket lives on the
// Client, everything shared lives in the Hub or behind the stores.
type Gateway struct {
	hub      *Hub
	verifier IdentityVerifier
	tracker  *presence.Tracker
	convs    store.Conversations
	msgs     store.Messages
	producer *events.Producer
	log      *zap.SugaredLogger
	opts     Options

	handlers map[string]handlerFunc
}

func NewGateway(hub *Hub, verifier IdentityVerifier, tracker *presence.Tracker, convs store.Conversations, msgs store.Messages, producer *events.Producer, log *zap.SugaredLogger, opts Options) *Gateway {
	opts.defaults()
	g := &Gateway{
		hub:      hub,
		verifier: verifier,
		tracker:  tracker,
		convs:    convs,
		msgs:     msgs,
		producer: producer,
		log:      log,
		opts:     opts,
	}
	// Static dispatch table; one entry per client event.
	g.handlers = map[string]handlerFunc{
		EvAuthenticate:       g.handleAuthenticate,
		EvSendPrivateMessage: g.handleSendPrivateMessage,
		EvTyping:             g.handleTyping,
		EvStopTyping:         g.handleStopTyping,
		EvReceiveMessage:     g.handleReceiveMessage,
		EvHistory:            g.handleHistory,
		EvFilterConversation: g.handleFilterConversation,
	}
	return g
}

// Handle returns the connection handler to mount behind the fiber
// websocket upgrade. The bearer token is the hard gate: no identity, no
// event loop.
func (g *Gateway) Handle() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Headers("Authorization")
		if token == "" {
			token = conn.Query("token")
		}
		ctx := context.Background()
		ident, err := g.verifier.Verify(ctx, token)
		if err != nil {
			b, _ := json.Marshal(errFrame(EvAuthError, 401, "Authentication failed"))
			_ = conn.WriteMessage(websocket.TextMessage, b)
			_ = conn.Close()
			return
		}

		client := NewClient(uuid.New().String(), ident.User, g.opts.SendBufferSize)
		if addr := conn.RemoteAddr(); addr != nil {
			client.IP = addr.String()
		}
		g.hub.Register(client)
		metrics.ConnectionsTotal.Inc()
		metrics.LiveSockets.Inc()

		go client.writePump(conn, g.opts.PingInterval, g.opts.WriteTimeout)

		conn.SetReadLimit(g.opts.MaxMessageSize)
		for {
			mt, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if mt != websocket.TextMessage {
				continue
			}
			g.dispatch(ctx, client, raw)
		}

		g.disconnect(ctx, client)
		_ = conn.Close()
	}
}

// dispatch decodes one inbound frame and runs its handler. No error, and
// no panic, escapes back into the read loop.
func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorw("handler panic", "socket", c.SocketID, "panic", r,
				"stack", string(debug.Stack()))
			metrics.HandlerErrors.WithLabelValues("panic").Inc()
			g.hub.ToSocket(c.SocketID, errFrame(EvError, 500, "internal error"))
		}
	}()

	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "malformed frame"))
		return
	}
	if len(frame.Data) == 0 {
		frame.Data = json.RawMessage("{}")
	}
	h, ok := g.handlers[frame.Event]
	if !ok {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "unknown event: "+frame.Event))
		return
	}
	metrics.EventsReceived.WithLabelValues(frame.Event).Inc()
	h(ctx, c, frame.Data)
}

// disconnect runs the presence teardown and deregisters the socket. Every
// sub-step is fault-tolerant; this path must never throw.
func (g *Gateway) disconnect(ctx context.Context, c *Client) {
	if tr := g.tracker.MarkOffline(ctx, c.SocketID); tr != nil && tr.Broadcast {
		g.hub.ToAllExcept(c.SocketID, okFrame(EvUserStatusChanged, "user status changed", map[string]any{
			"user_id": tr.UserID,
			"status":  tr.Status,
		}))
	}
	g.hub.Unregister(c.SocketID)
	// The send channel is left open: a fan-out racing this teardown may
	// still hold the client, and a send on a closed channel would panic.
	// The write pump exits on its next failed write against the closed
	// connection.
	metrics.LiveSockets.Dec()
}

func (g *Gateway) handleAuthenticate(ctx context.Context, c *Client, data json.RawMessage) {
	var p authenticatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvAuthError, 422, "malformed authenticate payload"))
		return
	}
	// The handshake identity is authoritative; a mismatched user_id in
	// the payload is rejected rather than trusted.
	if p.UserID != "" && p.UserID != c.UserID() {
		g.hub.ToSocket(c.SocketID, errFrame(EvAuthError, 401, "user_id does not match connection identity"))
		return
	}
	c.DeviceInfo = p.DeviceInfo

	tr, err := g.tracker.MarkOnline(ctx, c.User, presence.SocketMeta{
		SocketID:   c.SocketID,
		DeviceInfo: p.DeviceInfo,
		IP:         c.IP,
	})
	if err != nil {
		g.emitError(c, EvAuthError, err)
		return
	}

	c.User.Status = tr.Status
	g.hub.JoinPersonal(c.SocketID, c.UserID())
	g.hub.ToSocket(c.SocketID, okFrame(EvAuthSuccess, "authenticated", c.User))
	if tr.Broadcast {
		g.hub.ToAllExcept(c.SocketID, okFrame(EvUserStatusChanged, "user status changed", map[string]any{
			"user_id": tr.UserID,
			"status":  tr.Status,
		}))
	}
}

func (g *Gateway) handleSendPrivateMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "malformed message payload"))
		return
	}
	senderID := c.UserID()

	// Resolve or lazily create the conversation. The create path does
	// not look for an existing thread between the same members.
	var (
		conversationID = p.ConversationID
		recipients     []string
	)
	if conversationID == "" {
		conv, err := g.convs.Create(ctx, p.Participants, p.Name, senderID)
		if err != nil {
			g.emitError(c, EvError, err)
			return
		}
		conversationID = conv.ID.Hex()
		recipients = p.Participants
	} else {
		members, err := g.convs.MemberIDs(ctx, conversationID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				g.hub.ToSocket(c.SocketID, errFrame(EvConversationNotFound, 404, "conversation not found"))
				return
			}
			g.emitError(c, EvError, err)
			return
		}
		recipients = members
	}

	// The sender is actively viewing this conversation now.
	g.hub.JoinConversation(c.SocketID, conversationID)

	msg, err := g.msgs.Append(ctx, conversationID, senderID, p.Content, p.Attachments)
	if err != nil {
		g.emitError(c, EvError, err)
		return
	}
	metrics.MessagesSent.Inc()

	// Sequential, not transactional: the message above is durable even
	// if the snapshot update or a notification below fails.
	snap := &models.LastMessage{
		Content:  msg.Content,
		SenderID: msg.SenderID,
		Type:     "text",
		SentAt:   msg.CreatedAt,
	}
	if err := g.convs.SetLastMessage(ctx, conversationID, snap); err != nil {
		g.log.Errorw("last message update", "conversation", conversationID, "err", err)
	}
	g.producer.MessageSent(ctx, conversationID, msg.ID.Hex(), senderID)

	g.hub.ToConversation(conversationID, okFrame(EvMsgReceive, "new message", msg))
	notif := okFrame(EvNewMessageNotification, "new message", map[string]any{
		"conversation_id": conversationID,
		"message":         msg,
	})
	for _, uid := range recipients {
		if uid == senderID {
			continue
		}
		g.hub.ToUser(uid, notif)
	}
	g.hub.ToSocket(c.SocketID, okFrame(EvMsgSent, "message sent", msg))
}

func (g *Gateway) handleTyping(ctx context.Context, c *Client, data json.RawMessage) {
	g.relayTyping(c, data, EvTyping)
}

func (g *Gateway) handleStopTyping(ctx context.Context, c *Client, data json.RawMessage) {
	g.relayTyping(c, data, EvStopTyping)
}

// relayTyping is a pure ephemeral broadcast; nothing is persisted and no
// ordering relative to messages is promised.
func (g *Gateway) relayTyping(c *Client, data json.RawMessage, event string) {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "malformed typing payload"))
		return
	}
	if p.ConversationID == "" {
		g.hub.ToSocket(c.SocketID, errFrame(EvConversationNotFound, 404, "conversation id is required"))
		return
	}
	if p.UserID == "" {
		p.UserID = c.UserID()
	}
	g.hub.ToConversationExcept(p.ConversationID, c.SocketID, okFrame(event, event, map[string]any{
		"conversation_id": p.ConversationID,
		"user_id":         p.UserID,
	}))
}

func (g *Gateway) handleReceiveMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var p receiveMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "malformed read receipt payload"))
		return
	}
	if p.ConversationID == "" || p.MessageID == "" {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "conversation_id and message_id are required"))
		return
	}
	if _, err := g.convs.Get(ctx, p.ConversationID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			g.hub.ToSocket(c.SocketID, errFrame(EvConversationNotFound, 404, "conversation not found"))
			return
		}
		g.emitError(c, EvError, err)
		return
	}
	if err := g.convs.AdvanceReadPointer(ctx, p.ConversationID, c.UserID(), p.MessageID); err != nil {
		g.emitError(c, EvError, err)
		return
	}
	g.hub.ToConversationExcept(p.ConversationID, c.SocketID, okFrame(EvReadReceiptUpdated, "read receipt updated", map[string]any{
		"conversation_id": p.ConversationID,
		"message_id":      p.MessageID,
		"user_id":         c.UserID(),
	}))
	g.hub.ToSocket(c.SocketID, okFrame(EvMsgDelivered, "read receipt recorded", map[string]any{
		"conversation_id": p.ConversationID,
		"message_id":      p.MessageID,
	}))
}

func (g *Gateway) handleHistory(ctx context.Context, c *Client, data json.RawMessage) {
	var p historyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "malformed history payload"))
		return
	}
	if p.ConversationID == "" {
		g.hub.ToSocket(c.SocketID, errFrame(EvConversationNotFound, 404, "conversation id is required"))
		return
	}
	// The socket is viewing this conversation; join its room so it gets
	// subsequent broadcasts.
	g.hub.JoinConversation(c.SocketID, p.ConversationID)

	msgs, err := g.msgs.History(ctx, p.ConversationID, p.Page, p.Limit, p.Search)
	if err != nil {
		g.emitError(c, EvError, err)
		return
	}
	g.hub.ToSocket(c.SocketID, okFrame(EvMsgList, "message history", msgs))
}

func (g *Gateway) handleFilterConversation(ctx context.Context, c *Client, data json.RawMessage) {
	var p filterConversationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 422, "malformed filter payload"))
		return
	}
	views, err := g.convs.List(ctx, c.UserID(), p.Page, p.Limit, store.ListFlags{
		Unread: p.Unread,
		All:    p.All,
		Group:  p.Group,
	})
	if err != nil {
		g.emitError(c, EvError, err)
		return
	}
	g.hub.ToSocket(c.SocketID, okFrame(EvFilteredConversation, "conversations", views))
}

// emitError translates a failure into the client-visible event: domain
// errors keep their message, infrastructure errors are logged with the
// stack context and collapsed to a generic internal error.
func (g *Gateway) emitError(c *Client, event string, err error) {
	code := apperr.Code(err)
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrAuthentication):
		metrics.HandlerErrors.WithLabelValues("domain").Inc()
		g.hub.ToSocket(c.SocketID, errFrame(event, code, err.Error()))
	default:
		metrics.HandlerErrors.WithLabelValues("persistence").Inc()
		g.log.Errorw("handler failure", "socket", c.SocketID, "err", err)
		g.hub.ToSocket(c.SocketID, errFrame(EvError, 500, "internal error"))
	}
}

package store

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
)

// Memory is an in-process implementation of the repository interfaces
// with the same semantics as the Mongo-backed ones. It backs tests and
// single-binary development runs.
type Memory struct {
	mu            sync.Mutex
	users         map[primitive.ObjectID]*models.User
	sessions      map[string]*models.Session // socket id -> session
	conversations map[primitive.ObjectID]*models.Conversation
	participants  map[primitive.ObjectID]*models.Participant
	messages      []*models.Message
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[primitive.ObjectID]*models.User),
		sessions:      make(map[string]*models.Session),
		conversations: make(map[primitive.ObjectID]*models.Conversation),
		participants:  make(map[primitive.ObjectID]*models.Participant),
	}
}

// SeedUser registers a user and returns its id. Test helper.
func (m *Memory) SeedUser(u *models.User) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.users[u.ID] = u
	return u.ID.Hex()
}

// --- Users ---

func (m *Memory) FindActive(ctx context.Context, id string) (*models.User, error) {
	oid, err := parseID("user", id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[oid]
	if !ok || !u.IsActive || u.IsDeleted {
		return nil, apperr.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) SetStatus(ctx context.Context, id, status string, at time.Time) error {
	oid, err := parseID("user", id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[oid]; ok {
		u.Status = status
		u.LastActive = at
	}
	return nil
}

func (m *Memory) AllExist(ctx context.Context, ids []string) (bool, error) {
	oids, err := parseIDs("user", ids)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, oid := range oids {
		u, ok := m.users[oid]
		if !ok || u.IsDeleted {
			return false, nil
		}
	}
	return true, nil
}

// --- Sessions ---

func (m *Memory) Insert(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.sessions[s.SocketID] = s
	return nil
}

func (m *Memory) DeleteBySocket(ctx context.Context, socketID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[socketID]
	if !ok {
		return nil, apperr.NotFound("session", socketID)
	}
	delete(m.sessions, socketID)
	return s, nil
}

func (m *Memory) CountByUser(ctx context.Context, userID string) (int64, error) {
	oid, err := parseID("user", userID)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.UserID == oid {
			n++
		}
	}
	return n, nil
}

// --- Conversations ---

func (m *Memory) Create(ctx context.Context, participantIDs []string, name, creatorID string) (*models.Conversation, error) {
	if len(participantIDs) < 2 {
		return nil, apperr.Validation("a conversation needs at least two participants")
	}
	memberOIDs, err := parseIDs("participant", participantIDs)
	if err != nil {
		return nil, err
	}
	creatorOID, err := parseID("creator", creatorID)
	if err != nil {
		return nil, err
	}
	ok, err := m.AllExist(ctx, participantIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation("one or more participants do not exist")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	convID := primitive.NewObjectID()
	refs := make([]primitive.ObjectID, 0, len(memberOIDs))
	for _, uid := range memberOIDs {
		p := &models.Participant{
			ID:             primitive.NewObjectID(),
			ConversationID: convID,
			UserID:         uid,
		}
		m.participants[p.ID] = p
		refs = append(refs, p.ID)
	}
	conv := &models.Conversation{
		ID:           convID,
		Name:         name,
		IsGroupChat:  len(memberOIDs) > 2,
		CreatorID:    creatorOID,
		Participants: refs,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.conversations[convID] = conv
	cp := *conv
	return &cp, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := parseID("conversation", id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[oid]
	if !ok || c.IsDeleted {
		return nil, apperr.NotFound("conversation", id)
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) SetLastMessage(ctx context.Context, id string, snap *models.LastMessage) error {
	oid, err := parseID("conversation", id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[oid]
	if !ok {
		return apperr.NotFound("conversation", id)
	}
	c.LastMessage = snap
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) AdvanceReadPointer(ctx context.Context, conversationID, userID, messageID string) error {
	convOID, err := parseID("conversation", conversationID)
	if err != nil {
		return err
	}
	userOID, err := parseID("user", userID)
	if err != nil {
		return err
	}
	msgOID, err := parseID("message", messageID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.ConversationID == convOID && p.UserID == userOID {
			p.LastReadMessage = msgOID
			return nil
		}
	}
	// non-member: silent no-op
	return nil
}

// ReadPointer returns the member's current pointer. Test helper.
func (m *Memory) ReadPointer(conversationID, userID string) (string, bool) {
	convOID, err1 := parseID("conversation", conversationID)
	userOID, err2 := parseID("user", userID)
	if err1 != nil || err2 != nil {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.ConversationID == convOID && p.UserID == userOID {
			return p.LastReadMessage.Hex(), true
		}
	}
	return "", false
}

func (m *Memory) MemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(conv.Participants))
	for _, ref := range conv.Participants {
		if p, ok := m.participants[ref]; ok {
			out = append(out, p.UserID.Hex())
		}
	}
	return out, nil
}

func (m *Memory) List(ctx context.Context, userID string, page, limit int64, flags ListFlags) ([]*ConversationView, error) {
	userOID, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}
	page, limit = clampPage(page, limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	pointer := make(map[primitive.ObjectID]primitive.ObjectID)
	memberOf := make(map[primitive.ObjectID]bool)
	for _, p := range m.participants {
		if p.UserID == userOID {
			memberOf[p.ConversationID] = true
			pointer[p.ConversationID] = p.LastReadMessage
		}
	}

	var views []*ConversationView
	for _, c := range m.conversations {
		if !memberOf[c.ID] || c.IsDeleted {
			continue
		}
		if flags.All && !c.IsActive {
			continue
		}
		if flags.Group && !c.IsGroupChat {
			continue
		}
		var unread int64
		ptr := pointer[c.ID]
		for _, msg := range m.messages {
			if msg.ConversationID != c.ID || msg.IsDeleted || msg.SenderID == userOID {
				continue
			}
			if ptr.IsZero() || msg.ID.Hex() > ptr.Hex() {
				unread++
			}
		}
		if flags.Unread && unread == 0 {
			continue
		}
		cp := *c
		v := &ConversationView{Conversation: &cp, UnreadCount: unread}
		for _, msg := range m.messages {
			if msg.ConversationID == c.ID && !msg.IsDeleted {
				if v.LatestMessage == nil || msg.CreatedAt.After(v.LatestMessage.CreatedAt) {
					mc := *msg
					v.LatestMessage = &mc
				}
			}
		}
		for _, ref := range c.Participants {
			if p, ok := m.participants[ref]; ok {
				pc := *p
				if u, ok := m.users[p.UserID]; ok {
					uc := *u
					pc.User = &uc
				}
				v.Members = append(v.Members, &pc)
			}
		}
		views = append(views, v)
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].Conversation.CreatedAt.After(views[j].Conversation.CreatedAt)
	})

	start := (page - 1) * limit
	if start >= int64(len(views)) {
		return []*ConversationView{}, nil
	}
	end := start + limit
	if end > int64(len(views)) {
		end = int64(len(views))
	}
	return views[start:end], nil
}

// --- Messages ---

func (m *Memory) Append(ctx context.Context, conversationID, senderID, content string, attachments []string) (*models.Message, error) {
	convOID, err := parseID("conversation", conversationID)
	if err != nil {
		return nil, err
	}
	senderOID, err := parseID("sender", senderID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := &models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: convOID,
		SenderID:       senderOID,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	cp := *msg
	return &cp, nil
}

func (m *Memory) History(ctx context.Context, conversationID string, page, limit int64, search string) ([]*models.Message, error) {
	convOID, err := parseID("conversation", conversationID)
	if err != nil {
		return nil, err
	}
	page, limit = clampPage(page, limit)

	var re *regexp.Regexp
	if s := strings.TrimSpace(search); s != "" {
		re, err = regexp.Compile("(?i)" + escapeSearchTerm(s))
		if err != nil {
			return nil, apperr.Validation("bad search term")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.ConversationID != convOID || msg.IsDeleted {
			continue
		}
		if re != nil && !re.MatchString(msg.Content) {
			continue
		}
		cp := *msg
		if u, ok := m.users[msg.SenderID]; ok {
			cp.Sender = &models.User{ID: u.ID, Name: u.Name, Phone: u.Phone, Avatar: u.Avatar}
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	start := (page - 1) * limit
	if start >= int64(len(out)) {
		return []*models.Message{}, nil
	}
	end := start + limit
	if end > int64(len(out)) {
		end = int64(len(out))
	}
	return out[start:end], nil
}

var (
	_ Users         = (*Memory)(nil)
	_ Sessions      = (*Memory)(nil)
	_ Conversations = (*Memory)(nil)
	_ Messages      = (*Memory)(nil)
)

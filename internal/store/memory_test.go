package store

import (
	"context"
	"errors"
	"testing"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
)

func seedUsers(t *testing.T, m *Memory, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = m.SeedUser(&models.User{
			Name:     "user",
			IsActive: true,
			Status:   models.StatusOffline,
		})
	}
	return ids
}

func TestCreateConversationDerivesGroupFlag(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	two := seedUsers(t, m, 2)
	conv, err := m.Create(ctx, two, "", two[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.IsGroupChat {
		t.Error("two participants must not be a group chat")
	}
	if len(conv.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(conv.Participants))
	}

	three := seedUsers(t, m, 3)
	conv, err = m.Create(ctx, three, "triage", three[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !conv.IsGroupChat {
		t.Error("three participants must be a group chat")
	}
}

func TestCreateConversationRejectsUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := seedUsers(t, m, 1)

	_, err := m.Create(ctx, []string{ids[0], "64b000000000000000000000"}, "", ids[0])
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCreateConversationDoesNotDedupe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := seedUsers(t, m, 2)

	a, err := m.Create(ctx, ids, "", ids[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := m.Create(ctx, ids, "", ids[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == b.ID {
		t.Error("create is a create-only path; same members must yield a second thread")
	}
}

func TestHistoryRoundTripAndSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := seedUsers(t, m, 2)
	conv, err := m.Create(ctx, ids, "", ids[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	convID := conv.ID.Hex()

	if _, err := m.Append(ctx, convID, ids[0], "ticket a.b is stuck", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.Append(ctx, convID, ids[1], "checked axb already", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := m.History(ctx, convID, 1, 50, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("history returned %d messages, want 2", len(all))
	}
	if all[0].CreatedAt.Before(all[1].CreatedAt) {
		t.Error("history must be newest-first")
	}

	found, err := m.History(ctx, convID, 1, 50, "a.b")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(found) != 1 || found[0].Content != "ticket a.b is stuck" {
		t.Errorf("search %q matched %d messages; the dot must not act as a wildcard", "a.b", len(found))
	}
}

func TestAdvanceReadPointerIsIdempotentAndMemberScoped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := seedUsers(t, m, 2)
	outsider := seedUsers(t, m, 1)[0]

	conv, err := m.Create(ctx, ids, "", ids[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	convID := conv.ID.Hex()
	msg, err := m.Append(ctx, convID, ids[0], "hello", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := m.AdvanceReadPointer(ctx, convID, ids[1], msg.ID.Hex()); err != nil {
		t.Fatalf("advance: %v", err)
	}
	first, _ := m.ReadPointer(convID, ids[1])
	if err := m.AdvanceReadPointer(ctx, convID, ids[1], msg.ID.Hex()); err != nil {
		t.Fatalf("advance again: %v", err)
	}
	second, _ := m.ReadPointer(convID, ids[1])
	if first != second || first != msg.ID.Hex() {
		t.Errorf("pointer moved on duplicate receipt: %q -> %q", first, second)
	}

	// non-member must be a silent no-op
	if err := m.AdvanceReadPointer(ctx, convID, outsider, msg.ID.Hex()); err != nil {
		t.Fatalf("non-member advance must not error: %v", err)
	}
	if _, ok := m.ReadPointer(convID, outsider); ok {
		t.Error("non-member must not gain a read pointer")
	}
}

func TestListFlags(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ids := seedUsers(t, m, 3)

	direct, err := m.Create(ctx, ids[:2], "", ids[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	group, err := m.Create(ctx, ids, "ops", ids[0])
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// ids[1] sends into the direct thread; ids[0] has not read it
	if _, err := m.Append(ctx, direct.ID.Hex(), ids[1], "ping", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := m.List(ctx, ids[0], 1, 50, ListFlags{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %d conversations, want 2", len(all))
	}
	if !all[0].Conversation.CreatedAt.After(all[1].Conversation.CreatedAt) &&
		!all[0].Conversation.CreatedAt.Equal(all[1].Conversation.CreatedAt) {
		t.Error("list must sort by descending creation time")
	}

	groups, err := m.List(ctx, ids[0], 1, 50, ListFlags{Group: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 1 || groups[0].Conversation.ID != group.ID {
		t.Errorf("group flag returned %d rows", len(groups))
	}

	unread, err := m.List(ctx, ids[0], 1, 50, ListFlags{Unread: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(unread) != 1 || unread[0].Conversation.ID != direct.ID {
		t.Fatalf("unread flag returned %d rows", len(unread))
	}
	if unread[0].UnreadCount == 0 {
		t.Error("unread conversation must carry a counter greater than zero")
	}

	// flags AND together
	both, err := m.List(ctx, ids[0], 1, 50, ListFlags{Unread: true, Group: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(both) != 0 {
		t.Errorf("unread AND group returned %d rows, want 0", len(both))
	}
}

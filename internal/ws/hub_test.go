package ws

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/helpdeskhq/chat-service/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	u := &models.User{ID: primitive.NewObjectID(), Name: "t", IsActive: true}
	return NewClient(primitive.NewObjectID().Hex(), u, 16)
}

func drain(t *testing.T, c *Client) []ServerFrame {
	t.Helper()
	var out []ServerFrame
	for {
		select {
		case b := <-c.Outbox():
			var f ServerFrame
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestRoomNamePrefixes(t *testing.T) {
	if got := UserRoom("42"); got != "user:42" {
		t.Errorf("UserRoom = %q", got)
	}
	if got := ConversationRoom("7"); got != "conversation:7" {
		t.Errorf("ConversationRoom = %q", got)
	}
}

func TestConversationFanOutExceptSender(t *testing.T) {
	h := NewHub()
	a, b, c := newTestClient(t), newTestClient(t), newTestClient(t)
	for _, cl := range []*Client{a, b, c} {
		h.Register(cl)
	}
	h.JoinConversation(a.SocketID, "conv1")
	h.JoinConversation(b.SocketID, "conv1")
	// c stays out of the room

	h.ToConversationExcept("conv1", a.SocketID, okFrame(EvTyping, "typing", nil))

	if got := drain(t, a); len(got) != 0 {
		t.Errorf("sender received its own broadcast: %v", got)
	}
	if got := drain(t, b); len(got) != 1 || got[0].Event != EvTyping {
		t.Errorf("room member frames = %v", got)
	}
	if got := drain(t, c); len(got) != 0 {
		t.Errorf("non-member received broadcast: %v", got)
	}
}

func TestPersonalRoomReachesAllDevices(t *testing.T) {
	h := NewHub()
	d1, d2 := newTestClient(t), newTestClient(t)
	h.Register(d1)
	h.Register(d2)
	h.JoinPersonal(d1.SocketID, "u1")
	h.JoinPersonal(d2.SocketID, "u1")

	h.ToUser("u1", okFrame(EvNewMessageNotification, "new message", nil))

	for _, cl := range []*Client{d1, d2} {
		if got := drain(t, cl); len(got) != 1 {
			t.Errorf("device got %d frames, want 1", len(got))
		}
	}
}

func TestUnregisterLeavesAllRooms(t *testing.T) {
	h := NewHub()
	a := newTestClient(t)
	h.Register(a)
	h.JoinPersonal(a.SocketID, "u1")
	h.JoinConversation(a.SocketID, "conv1")

	h.Unregister(a.SocketID)

	if h.InRoom(a.SocketID, UserRoom("u1")) || h.InRoom(a.SocketID, ConversationRoom("conv1")) {
		t.Error("unregistered socket still holds room membership")
	}
	if h.Size() != 0 {
		t.Errorf("hub size = %d, want 0", h.Size())
	}
}

func TestJoinUnknownSocketIsIgnored(t *testing.T) {
	h := NewHub()
	h.JoinConversation("ghost", "conv1")
	if h.InRoom("ghost", ConversationRoom("conv1")) {
		t.Error("unknown socket must not join rooms")
	}
}

func TestSlowConsumerDoesNotBlockFanOut(t *testing.T) {
	h := NewHub()
	slow := newTestClient(t)
	// fill the buffer
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("{}")
	}
	h.Register(slow)
	h.JoinConversation(slow.SocketID, "conv1")

	// must return immediately, dropping the frame for the full buffer
	h.ToConversation("conv1", okFrame(EvMsgReceive, "m", nil))

	if len(slow.send) != cap(slow.send) {
		t.Error("frame was queued past a full buffer")
	}
}

package presence

import (
	"context"
	"testing"

	"github.com/helpdeskhq/chat-service/internal/logger"
	"github.com/helpdeskhq/chat-service/internal/models"
	"github.com/helpdeskhq/chat-service/internal/store"
)

func newTracker(t *testing.T) (*Tracker, *store.Memory, *models.User) {
	t.Helper()
	mem := store.NewMemory()
	u := &models.User{Name: "alice", IsActive: true, Status: models.StatusOffline}
	mem.SeedUser(u)
	return NewTracker(mem, mem, nil, nil, logger.Nop()), mem, u
}

func TestMarkOnlineCreatesSessionAndFlipsStatus(t *testing.T) {
	ctx := context.Background()
	tr, mem, u := newTracker(t)

	out, err := tr.MarkOnline(ctx, u, SocketMeta{SocketID: "s1", DeviceInfo: "web", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if !out.Broadcast || out.Status != models.StatusOnline {
		t.Errorf("transition = %+v", out)
	}
	if n, _ := mem.CountByUser(ctx, u.ID.Hex()); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}
	cur, _ := mem.FindActive(ctx, u.ID.Hex())
	if cur.Status != models.StatusOnline {
		t.Errorf("status = %q", cur.Status)
	}
	if cur.LastActive.IsZero() {
		t.Error("last_active not stamped")
	}
}

func TestMarkOfflineOnlyAfterLastSession(t *testing.T) {
	ctx := context.Background()
	tr, mem, u := newTracker(t)

	if _, err := tr.MarkOnline(ctx, u, SocketMeta{SocketID: "s1"}); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if _, err := tr.MarkOnline(ctx, u, SocketMeta{SocketID: "s2"}); err != nil {
		t.Fatalf("mark online: %v", err)
	}

	if out := tr.MarkOffline(ctx, "s1"); out != nil {
		t.Errorf("transition on non-final disconnect: %+v", out)
	}
	cur, _ := mem.FindActive(ctx, u.ID.Hex())
	if cur.Status != models.StatusOnline {
		t.Errorf("status = %q with one session left, want online", cur.Status)
	}

	out := tr.MarkOffline(ctx, "s2")
	if out == nil || !out.Broadcast || out.Status != models.StatusOffline {
		t.Fatalf("transition = %+v, want offline broadcast", out)
	}
	cur, _ = mem.FindActive(ctx, u.ID.Hex())
	if cur.Status != models.StatusOffline {
		t.Errorf("status = %q, want offline", cur.Status)
	}
}

func TestMarkOfflineUnknownSocketIsSilent(t *testing.T) {
	tr, _, _ := newTracker(t)
	if out := tr.MarkOffline(context.Background(), "ghost"); out != nil {
		t.Errorf("transition = %+v, want nil", out)
	}
}

func TestMarkOfflineOutOfOrderDisconnects(t *testing.T) {
	ctx := context.Background()
	tr, mem, u := newTracker(t)

	sockets := []string{"s1", "s2", "s3"}
	for _, s := range sockets {
		if _, err := tr.MarkOnline(ctx, u, SocketMeta{SocketID: s}); err != nil {
			t.Fatalf("mark online %s: %v", s, err)
		}
	}
	// disconnect in a different order than connect
	for i, s := range []string{"s2", "s3", "s1"} {
		out := tr.MarkOffline(ctx, s)
		last := i == len(sockets)-1
		if last && (out == nil || out.Status != models.StatusOffline) {
			t.Errorf("final disconnect transition = %+v", out)
		}
		if !last && out != nil {
			t.Errorf("intermediate disconnect %s produced transition %+v", s, out)
		}
	}
	if n, _ := mem.CountByUser(ctx, u.ID.Hex()); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

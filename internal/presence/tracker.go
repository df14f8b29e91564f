// Package presence tracks live sessions per user and derives the
// online/offline transitions broadcast to other clients. A user is online
// while at least one session row exists and flips offline only when the
// last one goes away.
package presence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/events"
	"github.com/helpdeskhq/chat-service/internal/models"
	"github.com/helpdeskhq/chat-service/internal/store"
)

// SocketMeta is the per-connection detail recorded on each session row.
type SocketMeta struct {
	SocketID   string
	DeviceInfo string
	IP         string
}

// Transition is the outcome of a presence change. Broadcast is false when
// the user is still present on another device.
type Transition struct {
	UserID    string
	Status    string
	Broadcast bool
}

type Tracker struct {
	sessions store.Sessions
	users    store.Users
	mirror   *Mirror
	producer *events.Producer
	log      *zap.SugaredLogger
}

func NewTracker(sessions store.Sessions, users store.Users, mirror *Mirror, producer *events.Producer, log *zap.SugaredLogger) *Tracker {
	return &Tracker{sessions: sessions, users: users, mirror: mirror, producer: producer, log: log}
}

// MarkOnline records a session for the socket and flips the user online.
// The session insert and the status save are sequential, not atomic: a
// failed status save leaves the session in place and the error is
// returned so the caller can report it.
func (t *Tracker) MarkOnline(ctx context.Context, user *models.User, meta SocketMeta) (*Transition, error) {
	s := &models.Session{
		UserID:     user.ID,
		SocketID:   meta.SocketID,
		DeviceInfo: meta.DeviceInfo,
		IP:         meta.IP,
		CreatedAt:  time.Now().UTC(),
	}
	if err := t.sessions.Insert(ctx, s); err != nil {
		return nil, err
	}
	uid := user.ID.Hex()
	if err := t.users.SetStatus(ctx, uid, models.StatusOnline, time.Now().UTC()); err != nil {
		return nil, err
	}
	if t.mirror != nil {
		if err := t.mirror.Set(ctx, uid, models.StatusOnline); err != nil {
			t.log.Warnw("presence mirror set", "user", uid, "err", err)
		}
	}
	t.producer.PresenceChanged(ctx, uid, models.StatusOnline)
	return &Transition{UserID: uid, Status: models.StatusOnline, Broadcast: true}, nil
}

// MarkOffline tears down the session for a disconnected socket. Every
// sub-step is individually fault-tolerant: a failure in one is logged and
// the rest still run, and no error escapes to the socket teardown path.
// Returns nil when no status broadcast is due.
func (t *Tracker) MarkOffline(ctx context.Context, socketID string) *Transition {
	sess, err := t.sessions.DeleteBySocket(ctx, socketID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			t.log.Errorw("session delete", "socket", socketID, "err", err)
		}
		return nil
	}
	uid := sess.UserID.Hex()

	remaining, err := t.sessions.CountByUser(ctx, uid)
	if err != nil {
		t.log.Errorw("session count", "user", uid, "err", err)
		return nil
	}
	if remaining > 0 {
		// still present on another device
		return nil
	}

	if err := t.users.SetStatus(ctx, uid, models.StatusOffline, time.Now().UTC()); err != nil {
		t.log.Errorw("status update", "user", uid, "err", err)
	}
	if t.mirror != nil {
		if err := t.mirror.Set(ctx, uid, models.StatusOffline); err != nil {
			t.log.Warnw("presence mirror set", "user", uid, "err", err)
		}
	}
	t.producer.PresenceChanged(ctx, uid, models.StatusOffline)
	return &Transition{UserID: uid, Status: models.StatusOffline, Broadcast: true}
}

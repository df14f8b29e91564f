package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror keeps a copy of each user's presence in Redis under
// <prefix>:presence:<userID> so sibling services can read online state
// without touching Mongo. It is an observability mirror, not the source
// of truth; every write is best-effort.
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewMirror returns nil for a nil client; a nil Mirror is a no-op.
func NewMirror(client *redis.Client, prefix string) *Mirror {
	if client == nil {
		return nil
	}
	return &Mirror{client: client, prefix: prefix, ttl: 24 * time.Hour}
}

func (m *Mirror) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, userID)
}

func (m *Mirror) Set(ctx context.Context, userID, status string) error {
	if m == nil {
		return nil
	}
	b, _ := json.Marshal(map[string]any{
		"status":    status,
		"last_seen": time.Now().Unix(),
	})
	return m.client.Set(ctx, m.key(userID), b, m.ttl).Err()
}

// Get reads the mirrored presence record. Missing key decodes as offline.
func (m *Mirror) Get(ctx context.Context, userID string) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return map[string]any{"status": "offline"}, nil
		}
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

package store

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
)

type messageRepo struct {
	msgColl  *mongo.Collection
	userColl *mongo.Collection
}

func (r *messageRepo) Append(ctx context.Context, conversationID, senderID, content string, attachments []string) (*models.Message, error) {
	convOID, err := parseID("conversation", conversationID)
	if err != nil {
		return nil, err
	}
	senderOID, err := parseID("sender", senderID)
	if err != nil {
		return nil, err
	}
	m := &models.Message{
		ConversationID: convOID,
		SenderID:       senderOID,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}
	res, err := r.msgColl.InsertOne(ctx, m)
	if err != nil {
		return nil, apperr.Persistence("messages.insert", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid
	}
	return m, nil
}

func (r *messageRepo) History(ctx context.Context, conversationID string, page, limit int64, search string) ([]*models.Message, error) {
	convOID, err := parseID("conversation", conversationID)
	if err != nil {
		return nil, err
	}
	page, limit = clampPage(page, limit)

	filter := bson.M{"conversation_id": convOID, "is_deleted": false}
	if s := strings.TrimSpace(search); s != "" {
		filter["content"] = primitive.Regex{Pattern: escapeSearchTerm(s), Options: "i"}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cur, err := r.msgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Persistence("messages.find", err)
	}
	var out []*models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Persistence("messages.decode", err)
	}
	if err := r.attachSenders(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// escapeSearchTerm backslash-prefixes every regex metacharacter so a
// user-supplied search term is always matched as a literal substring.
func escapeSearchTerm(s string) string {
	return regexp.QuoteMeta(s)
}

func (r *messageRepo) attachSenders(ctx context.Context, msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]primitive.ObjectID, 0, len(msgs))
	seen := make(map[primitive.ObjectID]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	cur, err := r.userColl.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1, "phone": 1, "avatar": 1}),
	)
	if err != nil {
		return apperr.Persistence("users.find", err)
	}
	var users []*models.User
	if err := cur.All(ctx, &users); err != nil {
		return apperr.Persistence("users.decode", err)
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, m := range msgs {
		m.Sender = byID[m.SenderID]
	}
	return nil
}

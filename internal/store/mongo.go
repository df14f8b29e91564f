package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/helpdeskhq/chat-service/internal/apperr"
)

const (
	collUsers         = "users"
	collSessions      = "sessions"
	collConversations = "conversations"
	collParticipants  = "participants"
	collMessages      = "messages"
)

// NewMongoClient connects and pings the deployment before returning.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}
	return client, nil
}

// Mongo bundles the collection-backed repository implementations.
type Mongo struct {
	Users         Users
	Sessions      Sessions
	Conversations Conversations
	Messages      Messages

	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		Users:    &userRepo{coll: db.Collection(collUsers)},
		Sessions: &sessionRepo{coll: db.Collection(collSessions)},
		Conversations: &conversationRepo{
			convColl: db.Collection(collConversations),
			partColl: db.Collection(collParticipants),
			msgColl:  db.Collection(collMessages),
			userColl: db.Collection(collUsers),
		},
		Messages: &messageRepo{
			msgColl:  db.Collection(collMessages),
			userColl: db.Collection(collUsers),
		},
		db: db,
	}
}

// EnsureIndexes creates the indexes the repositories rely on. Safe to call
// on every start.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	sessions := m.db.Collection(collSessions)
	if _, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "socket_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_socket_idx"),
		},
		{
			Keys:    bson.D{{Key: "socket_id", Value: 1}},
			Options: options.Index().SetName("socket_idx"),
		},
	}); err != nil {
		return err
	}

	participants := m.db.Collection(collParticipants)
	if _, err := participants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("conversation_user_idx"),
	}); err != nil {
		return err
	}

	messages := m.db.Collection(collMessages)
	if _, err := messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conversation_created_idx"),
	}); err != nil {
		return err
	}

	conversations := m.db.Collection(collConversations)
	_, err := conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: -1}},
		Options: options.Index().SetName("created_idx"),
	})
	return err
}

func parseID(entity, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid " + entity + " id")
	}
	return oid, nil
}

func parseIDs(entity string, ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := parseID(entity, id)
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}

func clampPage(page, limit int64) (int64, int64) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
)

type sessionRepo struct {
	coll *mongo.Collection
}

func (r *sessionRepo) Insert(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res, err := r.coll.InsertOne(ctx, s)
	if err != nil {
		return apperr.Persistence("sessions.insert", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		s.ID = oid
	}
	return nil
}

func (r *sessionRepo) DeleteBySocket(ctx context.Context, socketID string) (*models.Session, error) {
	var s models.Session
	err := r.coll.FindOneAndDelete(ctx, bson.M{"socket_id": socketID}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("session", socketID)
		}
		return nil, apperr.Persistence("sessions.delete", err)
	}
	return &s, nil
}

func (r *sessionRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	oid, err := parseID("user", userID)
	if err != nil {
		return 0, err
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"user_id": oid})
	if err != nil {
		return 0, apperr.Persistence("sessions.count", err)
	}
	return n, nil
}

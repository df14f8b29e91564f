package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
)

type userRepo struct {
	coll *mongo.Collection
}

func (r *userRepo) FindActive(ctx context.Context, id string) (*models.User, error) {
	oid, err := parseID("user", id)
	if err != nil {
		return nil, err
	}
	var u models.User
	filter := bson.M{"_id": oid, "is_active": true, "is_deleted": false}
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, apperr.Persistence("users.find", err)
	}
	return &u, nil
}

func (r *userRepo) SetStatus(ctx context.Context, id, status string, at time.Time) error {
	oid, err := parseID("user", id)
	if err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{"status": status, "last_active": at}}
	if _, err := r.coll.UpdateByID(ctx, oid, update); err != nil {
		return apperr.Persistence("users.set_status", err)
	}
	return nil
}

func (r *userRepo) AllExist(ctx context.Context, ids []string) (bool, error) {
	oids, err := parseIDs("user", ids)
	if err != nil {
		return false, err
	}
	filter := bson.M{"_id": bson.M{"$in": oids}, "is_deleted": false}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return false, apperr.Persistence("users.count", err)
	}
	return n == int64(len(oids)), nil
}

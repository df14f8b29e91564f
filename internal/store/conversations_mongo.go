package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
)

type conversationRepo struct {
	convColl *mongo.Collection
	partColl *mongo.Collection
	msgColl  *mongo.Collection
	userColl *mongo.Collection
}

func (r *conversationRepo) Create(ctx context.Context, participantIDs []string, name, creatorID string) (*models.Conversation, error) {
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

	ok, err := (&userRepo{coll: r.userColl}).AllExist(ctx, participantIDs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation("one or more participants do not exist")
	}

	now := time.Now().UTC()
	convID := primitive.NewObjectID()

	// Participant docs are inserted first so the conversation's reference
	// array is complete on its very first read. Insertion order of the
	// refs follows the caller-supplied member order.
	partRefs := make([]primitive.ObjectID, 0, len(memberOIDs))
	partDocs := make([]interface{}, 0, len(memberOIDs))
	for _, uid := range memberOIDs {
		p := models.Participant{
			ID:             primitive.NewObjectID(),
			ConversationID: convID,
			UserID:         uid,
		}
		partRefs = append(partRefs, p.ID)
		partDocs = append(partDocs, p)
	}
	if _, err := r.partColl.InsertMany(ctx, partDocs); err != nil {
		return nil, apperr.Persistence("participants.insert", err)
	}

	conv := &models.Conversation{
		ID:           convID,
		Name:         name,
		IsGroupChat:  len(memberOIDs) > 2,
		CreatorID:    creatorOID,
		Participants: partRefs,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.convColl.InsertOne(ctx, conv); err != nil {
		return nil, apperr.Persistence("conversations.insert", err)
	}
	return conv, nil
}

func (r *conversationRepo) Get(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := parseID("conversation", id)
	if err != nil {
		return nil, err
	}
	var c models.Conversation
	filter := bson.M{"_id": oid, "is_deleted": false}
	if err := r.convColl.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("conversation", id)
		}
		return nil, apperr.Persistence("conversations.find", err)
	}
	return &c, nil
}

func (r *conversationRepo) SetLastMessage(ctx context.Context, id string, snap *models.LastMessage) error {
	oid, err := parseID("conversation", id)
	if err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{"last_message": snap, "updated_at": time.Now().UTC()}}
	res, err := r.convColl.UpdateByID(ctx, oid, update)
	if err != nil {
		return apperr.Persistence("conversations.set_last_message", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("conversation", id)
	}
	return nil
}

func (r *conversationRepo) AdvanceReadPointer(ctx context.Context, conversationID, userID, messageID string) error {
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
	// One targeted update on the participant doc; a caller who is not a
	// member simply matches nothing.
	filter := bson.M{"conversation_id": convOID, "user_id": userOID}
	update := bson.M{"$set": bson.M{"last_read_message": msgOID}}
	if _, err := r.partColl.UpdateOne(ctx, filter, update); err != nil {
		return apperr.Persistence("participants.advance_read", err)
	}
	return nil
}

func (r *conversationRepo) MemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := r.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	cur, err := r.partColl.Find(ctx, bson.M{"_id": bson.M{"$in": conv.Participants}})
	if err != nil {
		return nil, apperr.Persistence("participants.find", err)
	}
	var parts []models.Participant
	if err := cur.All(ctx, &parts); err != nil {
		return nil, apperr.Persistence("participants.decode", err)
	}
	// restore the conversation's insertion order
	byID := make(map[primitive.ObjectID]models.Participant, len(parts))
	for _, p := range parts {
		byID[p.ID] = p
	}
	out := make([]string, 0, len(parts))
	for _, ref := range conv.Participants {
		if p, ok := byID[ref]; ok {
			out = append(out, p.UserID.Hex())
		}
	}
	return out, nil
}

func (r *conversationRepo) List(ctx context.Context, userID string, page, limit int64, flags ListFlags) ([]*ConversationView, error) {
	userOID, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}
	page, limit = clampPage(page, limit)

	// Membership first: the caller's participant docs give both the
	// conversation set and the read pointers for the unread computation.
	cur, err := r.partColl.Find(ctx, bson.M{"user_id": userOID})
	if err != nil {
		return nil, apperr.Persistence("participants.find", err)
	}
	var myParts []models.Participant
	if err := cur.All(ctx, &myParts); err != nil {
		return nil, apperr.Persistence("participants.decode", err)
	}
	if len(myParts) == 0 {
		return []*ConversationView{}, nil
	}
	convIDs := make([]primitive.ObjectID, 0, len(myParts))
	readPointer := make(map[primitive.ObjectID]primitive.ObjectID, len(myParts))
	for _, p := range myParts {
		convIDs = append(convIDs, p.ConversationID)
		readPointer[p.ConversationID] = p.LastReadMessage
	}

	filter := bson.M{"_id": bson.M{"$in": convIDs}, "is_deleted": false}
	if flags.All {
		filter["is_active"] = true
	}
	if flags.Group {
		filter["is_group_chat"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	ccur, err := r.convColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Persistence("conversations.find", err)
	}
	var convs []*models.Conversation
	if err := ccur.All(ctx, &convs); err != nil {
		return nil, apperr.Persistence("conversations.decode", err)
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, c := range convs {
		unread, err := r.unreadCount(ctx, c.ID, userOID, readPointer[c.ID])
		if err != nil {
			return nil, err
		}
		if flags.Unread && unread == 0 {
			continue
		}
		views = append(views, &ConversationView{Conversation: c, UnreadCount: unread})
	}

	// Paginate after the unread filter so page boundaries stay stable
	// for the flag combination the caller asked for.
	start := (page - 1) * limit
	if start >= int64(len(views)) {
		return []*ConversationView{}, nil
	}
	end := start + limit
	if end > int64(len(views)) {
		end = int64(len(views))
	}
	views = views[start:end]

	if err := r.hydrate(ctx, views); err != nil {
		return nil, err
	}
	return views, nil
}

// unreadCount counts messages from other senders past the caller's read
// pointer. ObjectIDs are creation-time ordered, which makes the pointer a
// usable threshold without a second lookup.
func (r *conversationRepo) unreadCount(ctx context.Context, convID, userOID, pointer primitive.ObjectID) (int64, error) {
	filter := bson.M{
		"conversation_id": convID,
		"is_deleted":      false,
		"sender_id":       bson.M{"$ne": userOID},
	}
	if !pointer.IsZero() {
		filter["_id"] = bson.M{"$gt": pointer}
	}
	n, err := r.msgColl.CountDocuments(ctx, filter)
	if err != nil {
		return 0, apperr.Persistence("messages.count_unread", err)
	}
	return n, nil
}

// hydrate attaches the newest message, the participant docs and a minimal
// user projection to each view on the returned page.
func (r *conversationRepo) hydrate(ctx context.Context, views []*ConversationView) error {
	for _, v := range views {
		var latest models.Message
		err := r.msgColl.FindOne(ctx,
			bson.M{"conversation_id": v.Conversation.ID, "is_deleted": false},
			options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
		).Decode(&latest)
		switch {
		case err == nil:
			v.LatestMessage = &latest
		case errors.Is(err, mongo.ErrNoDocuments):
			// conversation created but nothing persisted yet
		default:
			return apperr.Persistence("messages.find_latest", err)
		}

		pcur, err := r.partColl.Find(ctx, bson.M{"_id": bson.M{"$in": v.Conversation.Participants}})
		if err != nil {
			return apperr.Persistence("participants.find", err)
		}
		var parts []*models.Participant
		if err := pcur.All(ctx, &parts); err != nil {
			return apperr.Persistence("participants.decode", err)
		}
		v.Members = parts
	}

	userIDs := make([]primitive.ObjectID, 0)
	seen := make(map[primitive.ObjectID]struct{})
	for _, v := range views {
		for _, p := range v.Members {
			if _, ok := seen[p.UserID]; !ok {
				seen[p.UserID] = struct{}{}
				userIDs = append(userIDs, p.UserID)
			}
		}
	}
	if len(userIDs) == 0 {
		return nil
	}
	ucur, err := r.userColl.Find(ctx,
		bson.M{"_id": bson.M{"$in": userIDs}},
		options.Find().SetProjection(bson.M{
			"name": 1, "email": 1, "avatar": 1, "status": 1, "last_active": 1,
		}),
	)
	if err != nil {
		return apperr.Persistence("users.find", err)
	}
	var users []*models.User
	if err := ucur.All(ctx, &users); err != nil {
		return apperr.Persistence("users.decode", err)
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, v := range views {
		for _, p := range v.Members {
			p.User = byID[p.UserID]
		}
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chat-credential-engine/internal/invite/domain"
)

// MongoCollection is the collection holding invite documents.
const MongoCollection = "invites"

type inviteDocument struct {
	Token     string     `bson:"token"`
	InviterID string     `bson:"inviter_id"`
	CreatedAt time.Time  `bson:"created_at"`
	ExpiresAt time.Time  `bson:"expires_at"`
	Used      bool       `bson:"used"`
	UsedBy    *string    `bson:"used_by"`
	UsedAt    *time.Time `bson:"used_at"`
}

// MongoRepository stores invites as documents; redemption uses UpdateOne with a filter.
type MongoRepository struct {
	coll *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

// NewMongoRepository returns an invite repository on db's invites collection.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(MongoCollection)}
}

// EnsureIndexes creates the unique token index. Safe to call on every start.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *MongoRepository) Create(ctx context.Context, inv *domain.Invite) error {
	_, err := r.coll.InsertOne(ctx, inviteDocument{
		Token:     inv.Token,
		InviterID: inv.InviterID,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateToken
	}
	return err
}

func (r *MongoRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	var doc inviteDocument
	err := r.coll.FindOne(ctx, bson.M{"token": token}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv := &domain.Invite{
		Token:     doc.Token,
		InviterID: doc.InviterID,
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
		Used:      doc.Used,
		UsedBy:    doc.UsedBy,
	}
	if doc.UsedAt != nil {
		at := doc.UsedAt.UTC()
		inv.UsedAt = &at
	}
	return inv, nil
}

func (r *MongoRepository) MarkUsed(ctx context.Context, token, userID string, now time.Time) (int64, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"token": token, "used": false, "expires_at": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"used": true, "used_by": userID, "used_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoRepository) ResetUsed(ctx context.Context, token, userID string) (int64, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"token": token, "used": true, "used_by": userID},
		bson.M{"$set": bson.M{"used": false, "used_by": nil, "used_at": nil}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

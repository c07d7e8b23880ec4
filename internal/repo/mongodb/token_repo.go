package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type tokenDoc struct {
	ID        string    `bson:"_id"`
	AdminID   string    `bson:"adminId"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expiresAt"`
	IPAddress string    `bson:"ipAddress"`
	UserAgent string    `bson:"userAgent"`
	CreatedAt time.Time `bson:"createdAt"`
}

type TokenRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (r *TokenRepo) Create(ctx context.Context, t *domain.AuthToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, tokenDoc{
		ID:        t.ID,
		AdminID:   t.AdminID,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt.UTC(),
		IPAddress: t.IPAddress,
		UserAgent: t.UserAgent,
		CreatedAt: t.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	return err
}

// FindLive filters on expiresAt because the TTL monitor only runs about once
// a minute.
func (r *TokenRepo) FindLive(ctx context.Context, token string, now time.Time) (*domain.AuthToken, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var doc tokenDoc
	err := r.coll.FindOne(ctx, bson.M{"token": token, "expiresAt": bson.M{"$gt": now.UTC()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.AuthToken{
		ID:        doc.ID,
		AdminID:   doc.AdminID,
		Token:     doc.Token,
		ExpiresAt: doc.ExpiresAt,
		IPAddress: doc.IPAddress,
		UserAgent: doc.UserAgent,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (r *TokenRepo) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.DeleteOne(ctx, bson.M{"token": token})
	return err
}

func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

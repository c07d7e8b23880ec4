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

type adminDoc struct {
	ID           string     `bson:"_id"`
	Username     string     `bson:"username"`
	PasswordHash string     `bson:"password"`
	Email        string     `bson:"email"`
	Role         string     `bson:"role"`
	IsActive     bool       `bson:"isActive"`
	LastLogin    *time.Time `bson:"lastLogin"`
	CreatedAt    time.Time  `bson:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt"`
}

func (d *adminDoc) toDomain() *domain.Admin {
	return &domain.Admin{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Email:        d.Email,
		Role:         d.Role,
		IsActive:     d.IsActive,
		LastLogin:    d.LastLogin,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type AdminRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (r *AdminRepo) findOne(ctx context.Context, filter bson.M) (*domain.Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var doc adminDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *AdminRepo) FindActiveByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	return r.findOne(ctx, bson.M{"username": username, "isActive": true})
}

func (r *AdminRepo) FindByID(ctx context.Context, id string) (*domain.Admin, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AdminRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	at = at.UTC().Truncate(time.Millisecond)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"lastLogin": at, "updatedAt": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrAdminNotFound
	}
	return nil
}

func (r *AdminRepo) Create(ctx context.Context, a *domain.Admin) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	a.CreatedAt, a.UpdatedAt = now, now

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, adminDoc{
		ID:           a.ID,
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		Email:        a.Email,
		Role:         a.Role,
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *AdminRepo) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	return int(n), err
}

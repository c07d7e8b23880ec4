// Package mongodb stores bookings, admins, sessions and audit entries in
// MongoDB. Session and audit expiry is delegated to TTL indexes.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/diagnosis/hanguk-bookings/internal/repo"
)

const (
	defaultTimeout = 3 * time.Second

	bookingsColl  = "bookings"
	adminsColl    = "admins"
	tokensColl    = "authtokens"
	auditColl     = "auditlogs"
	slotLocksColl = "slotlocks"
)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	bookings *BookingRepo
	admins   *AdminRepo
	tokens   *TokenRepo
	audit    *AuditRepo
}

var _ repo.Store = (*Store)(nil)

// New uses database dbName on an already connected client.
func New(client *mongo.Client, dbName string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	db := client.Database(dbName)
	return &Store{
		client: client,
		db:     db,
		bookings: &BookingRepo{
			coll:    db.Collection(bookingsColl),
			locks:   db.Collection(slotLocksColl),
			timeout: timeout,
			lockTTL: 10 * time.Second,
		},
		admins: &AdminRepo{coll: db.Collection(adminsColl), timeout: timeout},
		tokens: &TokenRepo{coll: db.Collection(tokensColl), timeout: timeout},
		audit:  &AuditRepo{coll: db.Collection(auditColl), timeout: timeout},
	}
}

// EnsureIndexes creates uniqueness and TTL indexes. auditRetention is the
// age at which audit entries are removed by the server.
func (s *Store) EnsureIndexes(ctx context.Context, auditRetention time.Duration) error {
	specs := map[string][]mongo.IndexModel{
		bookingsColl: {
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		adminsColl: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		tokensColl: {
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		auditColl: {
			{Keys: bson.D{{Key: "resourceType", Value: 1}, {Key: "resourceId", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(auditRetention.Seconds()))},
		},
		slotLocksColl: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for coll, models := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Bookings() repo.BookingStore { return s.bookings }
func (s *Store) Admins() repo.AdminStore     { return s.admins }
func (s *Store) Tokens() repo.TokenStore     { return s.tokens }
func (s *Store) Audit() repo.AuditStore      { return s.audit }
func (s *Store) Backend() string             { return "mongodb" }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

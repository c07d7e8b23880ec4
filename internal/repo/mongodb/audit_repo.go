package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type auditDoc struct {
	ID           string         `bson:"_id"`
	AdminID      *string        `bson:"adminId"`
	Action       string         `bson:"action"`
	ResourceType string         `bson:"resourceType"`
	ResourceID   *string        `bson:"resourceId"`
	OldValues    map[string]any `bson:"oldValues"`
	NewValues    map[string]any `bson:"newValues"`
	IPAddress    string         `bson:"ipAddress"`
	UserAgent    string         `bson:"userAgent"`
	CreatedAt    time.Time      `bson:"createdAt"`
}

type AuditRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, auditDoc{
		ID:           e.ID,
		AdminID:      e.AdminID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		OldValues:    e.OldValues,
		NewValues:    e.NewValues,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
	})
	return err
}

func (r *AuditRepo) ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	cur, err := r.coll.Find(ctx,
		bson.M{"resourceType": resourceType, "resourceId": resourceID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.AuditLog, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.AuditLog{
			ID:           d.ID,
			AdminID:      d.AdminID,
			Action:       d.Action,
			ResourceType: d.ResourceType,
			ResourceID:   d.ResourceID,
			OldValues:    d.OldValues,
			NewValues:    d.NewValues,
			IPAddress:    d.IPAddress,
			UserAgent:    d.UserAgent,
			CreatedAt:    d.CreatedAt,
		})
	}
	return out, nil
}

func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

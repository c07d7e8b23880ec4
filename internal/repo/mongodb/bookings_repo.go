package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type bookingDoc struct {
	ID              string    `bson:"_id"`
	Name            string    `bson:"name"`
	Email           string    `bson:"email"`
	Phone           string    `bson:"phone"`
	Date            string    `bson:"date"`
	Time            string    `bson:"time"`
	Guests          int       `bson:"guests"`
	SpecialRequests string    `bson:"specialRequests"`
	Status          string    `bson:"status"`
	Notes           string    `bson:"notes"`
	ConfirmedBy     *string   `bson:"confirmedBy"`
	CreatedAt       time.Time `bson:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

func (d *bookingDoc) toDomain() *domain.Booking {
	return &domain.Booking{
		ID:              d.ID,
		Name:            d.Name,
		Email:           d.Email,
		Phone:           d.Phone,
		Date:            d.Date,
		Time:            d.Time,
		Guests:          d.Guests,
		SpecialRequests: d.SpecialRequests,
		Status:          domain.BookingStatus(d.Status),
		Notes:           d.Notes,
		ConfirmedBy:     d.ConfirmedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// slotLock is held while a reservation counts and inserts. The owner field
// keeps a process from releasing a lock it no longer holds; expired locks
// are reclaimed by the next contender and by the TTL index.
type slotLock struct {
	ID        string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

type BookingRepo struct {
	coll    *mongo.Collection
	locks   *mongo.Collection
	timeout time.Duration
	lockTTL time.Duration
}

func activeStatuses() bson.A {
	out := bson.A{}
	for _, s := range domain.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *BookingRepo) Reserve(ctx context.Context, in domain.NewBooking, capacity int) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	slot := in.Slot()
	release, err := r.lockSlot(ctx, slot)
	if err != nil {
		return nil, err
	}
	defer release()

	n, err := r.coll.CountDocuments(ctx, bson.M{
		"date": slot.Date, "time": slot.Time, "status": bson.M{"$in": activeStatuses()},
	})
	if err != nil {
		return nil, fmt.Errorf("count slot: %w", err)
	}
	if int(n) >= capacity {
		return nil, &domain.CapacityError{Slot: slot, Capacity: capacity}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := bookingDoc{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Date:            in.Date,
		Time:            in.Time,
		Guests:          in.Guests,
		SpecialRequests: in.SpecialRequests,
		Status:          string(domain.BookingPending),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *BookingRepo) lockSlot(ctx context.Context, slot domain.Slot) (func(), error) {
	owner := uuid.NewString()
	id := "slot:" + slot.Key()
	backoff := 5 * time.Millisecond

	for {
		now := time.Now().UTC()
		_, err := r.locks.InsertOne(ctx, slotLock{ID: id, Owner: owner, ExpiresAt: now.Add(r.lockTTL), CreatedAt: now})
		if err == nil {
			break
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("lock slot: %w", err)
		}
		// Reclaim a lock abandoned by a crashed holder.
		if _, err := r.locks.DeleteOne(ctx, bson.M{"_id": id, "expiresAt": bson.M{"$lte": now}}); err != nil {
			return nil, fmt.Errorf("reclaim slot lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock slot: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 100*time.Millisecond)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		_, _ = r.locks.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	}, nil
}

func (r *BookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc bookingDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *BookingRepo) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, int, error) {
	filter := bson.M{}
	if f.Status != nil {
		filter["status"] = string(*f.Status)
	}
	if f.Date != nil {
		filter["date"] = *f.Date
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "time", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetSkip(int64(max(f.Offset, 0))).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Booking, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toDomain())
	}
	return out, int(total), nil
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus, notes *string, actorID string) (*domain.Booking, error) {
	set := bson.M{
		"status":      string(status),
		"confirmedBy": actorID,
		"updatedAt":   time.Now().UTC().Truncate(time.Millisecond),
	}
	if notes != nil {
		set["notes"] = *notes
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc bookingDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *BookingRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *BookingRepo) CountActive(ctx context.Context, slot domain.Slot) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"date": slot.Date, "time": slot.Time, "status": bson.M{"$in": activeStatuses()},
	})
	return int(n), err
}

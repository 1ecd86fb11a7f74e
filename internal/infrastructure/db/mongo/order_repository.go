package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

const (
	collectionOrders = "orders"
	collectionScans  = "scan_events"
)

// OrderRepository implements ports.OrderRepository using MongoDB.
type OrderRepository struct {
	orders *mongo.Collection
	scans  *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		orders: db.Collection(collectionOrders),
		scans:  db.Collection(collectionScans),
	}
}

// FindByToken retrieves an order by its public tracking token.
func (r *OrderRepository) FindByToken(ctx context.Context, token string) (*track.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var o track.Order
	err := r.orders.FindOne(ctx, bson.M{"tracking_token": token}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, track.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// ApplyTransition atomically sets the order's status and appends the
// status event to the history in one update. The filter pins the source
// status, so a transition validated against a stale read fails instead
// of overwriting a concurrent one.
func (r *OrderRepository) ApplyTransition(ctx context.Context, token string, from track.OrderStatus, event track.StatusEvent, codCollected *float64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"status": string(event.Status)}
	if codCollected != nil {
		set["cod_collected_amount"] = *codCollected
	}

	entry := bson.M{
		"status":    string(event.Status),
		"timestamp": event.Timestamp.UTC(),
	}
	if event.Note != "" {
		entry["note"] = event.Note
	}
	if event.Location != nil {
		entry["location"] = bson.M{"lat": event.Location.Lat, "lng": event.Location.Lng}
	}

	res, err := r.orders.UpdateOne(ctx,
		bson.M{"tracking_token": token, "status": string(from)},
		bson.M{"$set": set, "$push": bson.M{"status_history": entry}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either the token is unknown or the order moved on concurrently.
		// The caller resolved the order moments ago, so a lost race is
		// the realistic cause.
		return track.ErrInvalidTransition
	}
	return nil
}

// InsertScan persists a scan record to the scan_events audit collection.
func (r *OrderRepository) InsertScan(ctx context.Context, scan *ports.ScanRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"tracking_token": scan.TrackingToken,
		"scan_type":      scan.ScanType,
		"scanned_at":     scan.ScannedAt.UTC(),
	}
	if scan.Location != nil {
		doc["location"] = bson.M{"lat": scan.Location.Lat, "lng": scan.Location.Lng}
	}

	_, err := r.scans.InsertOne(ctx, doc)
	return err
}

// FindActiveByAgent returns the agent's current in-motion order, if any.
// The newest pick wins when data drift leaves an agent on two orders.
func (r *OrderRepository) FindActiveByAgent(ctx context.Context, agentID string) (*track.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"agent_id": agentID,
		"status":   bson.M{"$in": []string{string(track.StatusPickedUp), string(track.StatusInTransit)}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var o track.Order
	err := r.orders.FindOne(ctx, filter, opts).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, track.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// EnsureIndexes creates the indexes the tracking queries depend on.
func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tracking_token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = r.scans.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tracking_token", Value: 1}, {Key: "scanned_at", Value: -1}}},
	})
	return err
}

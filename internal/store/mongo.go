package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

const reportsCollection = "reports"

// MongoStore keeps reports in a MongoDB collection with a unique index on id
// and a partial unique index on dedupKey.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

// OpenMongo connects, pings and ensures indexes.
func OpenMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo store: uri is required")
	}
	if dbName == "" {
		dbName = "gptr"
	}

	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	c, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := c.Ping(dctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoStore{client: c, col: c.Database(dbName).Collection(reportsCollection)}
	if err := s.ensureIndexes(dctx); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, err
	}
	slog.Default().With("component", "MongoStore").Info("connected", "db", dbName)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_id")},
		{
			Keys: bson.D{{Key: "dedupKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_dedup").
				SetPartialFilterExpression(bson.M{"dedupKey": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}, Options: options.Index().SetName("by_timestamp")},
		{Keys: bson.D{{Key: "parentReportId", Value: 1}}, Options: options.Index().SetName("by_parent")},
	}
	if _, err := s.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongo create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, r models.Report) error {
	if err := validateForAppend(r); err != nil {
		return err
	}
	if _, err := s.col.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "dedupKey") {
				return ErrDuplicateRepair
			}
			return ErrDuplicateID
		}
		return fmt.Errorf("mongo insert report: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, f Filter) ([]models.Report, error) {
	q := bson.M{}
	if f.ID != "" {
		q["id"] = f.ID
	}
	if f.Kind != "" {
		q["kind"] = f.Kind
	}
	if f.DeviceID != "" {
		q["deviceId"] = f.DeviceID
	}
	if f.ParentReportID != "" {
		q["parentReportId"] = f.ParentReportID
	}
	if f.BBox != nil {
		q["location.lng"] = bson.M{"$gte": f.BBox.MinLng, "$lte": f.BBox.MaxLng}
		q["location.lat"] = bson.M{"$gte": f.BBox.MinLat, "$lte": f.BBox.MaxLat}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.col.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find reports: %w: %w", ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []models.Report
	for cur.Next(ctx) {
		var r models.Report
		if err := cur.Decode(&r); err != nil {
			// skip the malformed document, keep the rest of the history
			continue
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo iterate reports: %w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

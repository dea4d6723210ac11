package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/savingscode/license-server/internal/config"
	"github.com/savingscode/license-server/internal/license"
)

// MongoStore persists license records in a MongoDB collection. Every
// conditional device operation is a single filtered update, so the one-device
// invariant holds under concurrent validations without any in-process locking.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to MongoDB and ensures the unique license key index
func NewMongoStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)

	// licenseKey is the record identity; creation of a duplicate must fail
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "licenseKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(connectCtx, indexModel); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create license key index: %w", err)
	}

	logger.InfoContext(ctx, "connected to mongo record store",
		slog.String("database", cfg.Database),
		slog.String("collection", cfg.Collection))

	return &MongoStore{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// Insert creates a new record, failing on a duplicate license key
func (s *MongoStore) Insert(ctx context.Context, rec *license.Record) error {
	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return license.ErrAlreadyExists
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

// Get returns the record for the key
func (s *MongoStore) Get(ctx context.Context, key string) (*license.Record, error) {
	var rec license.Record
	err := s.collection.FindOne(ctx, bson.M{"licenseKey": key}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, license.ErrNotFound
		}
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &rec, nil
}

// TouchDevice refreshes lastUsedAt for a valid record already bound to the device
func (s *MongoStore) TouchDevice(ctx context.Context, key, deviceID string, at time.Time) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"licenseKey": key, "valid": true, "boundDevices": deviceID},
		bson.M{"$set": bson.M{"lastUsedAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("touch device: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// BindDevice appends the device to a valid record with spare capacity. The
// $size filter makes the capacity check and the append one atomic step.
func (s *MongoStore) BindDevice(ctx context.Context, key, deviceID string, at time.Time) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{
			"licenseKey":   key,
			"valid":        true,
			"boundDevices": bson.M{"$size": 0},
		},
		bson.M{
			"$push": bson.M{"boundDevices": deviceID},
			"$set":  bson.M{"lastUsedAt": at},
		},
	)
	if err != nil {
		return false, fmt.Errorf("bind device: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// RevokeIfBoundElsewhere invalidates a valid record whose capacity is held by
// a different device
func (s *MongoStore) RevokeIfBoundElsewhere(ctx context.Context, key, deviceID string) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{
			"licenseKey":     key,
			"valid":          true,
			"boundDevices.0": bson.M{"$exists": true},
			"boundDevices":   bson.M{"$ne": deviceID},
		},
		bson.M{"$set": bson.M{"valid": false}},
	)
	if err != nil {
		return false, fmt.Errorf("revoke license: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// Revoke invalidates a currently valid record
func (s *MongoStore) Revoke(ctx context.Context, key string) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"licenseKey": key, "valid": true},
		bson.M{"$set": bson.M{"valid": false}},
	)
	if err != nil {
		return false, fmt.Errorf("revoke license: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// Reactivate marks the record valid, optionally clearing bound devices
func (s *MongoStore) Reactivate(ctx context.Context, key string, clearDevices bool) error {
	update := bson.M{"valid": true}
	if clearDevices {
		update["boundDevices"] = []string{}
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"licenseKey": key},
		bson.M{"$set": update},
	)
	if err != nil {
		return fmt.Errorf("reactivate license: %w", err)
	}
	if res.MatchedCount == 0 {
		return license.ErrNotFound
	}
	return nil
}

// Delete removes the record permanently
func (s *MongoStore) Delete(ctx context.Context, key string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"licenseKey": key})
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	if res.DeletedCount == 0 {
		return license.ErrNotFound
	}
	return nil
}

// List returns records sorted by lastUsedAt descending. BSON collates missing
// fields lowest, so never-used records come last in descending order; the
// license key is a deterministic tie-break.
func (s *MongoStore) List(ctx context.Context, licenseType string) ([]license.Record, error) {
	filter := bson.M{}
	if licenseType != "" {
		filter["licenseType"] = licenseType
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "lastUsedAt", Value: -1},
		{Key: "licenseKey", Value: 1},
	})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer cursor.Close(ctx)

	records := []license.Record{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode licenses: %w", err)
	}
	return records, nil
}

// Summary returns aggregate counts over all records
func (s *MongoStore) Summary(ctx context.Context) (*license.Summary, error) {
	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("count licenses: %w", err)
	}

	valid, err := s.collection.CountDocuments(ctx, bson.M{"valid": true})
	if err != nil {
		return nil, fmt.Errorf("count valid licenses: %w", err)
	}

	return &license.Summary{
		Total:   total,
		Valid:   valid,
		Revoked: total - valid,
	}, nil
}

// Ping reports whether the store is reachable
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

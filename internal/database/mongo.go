package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore caches one client per connection string, so a proxy can serve
// requests naming different deployments.
type MongoStore struct {
	mu         sync.Mutex
	clients    map[string]*mongo.Client
	defaultURI string
}

// NewMongoStore connects to defaultURI and verifies it with a ping.
func NewMongoStore(ctx context.Context, defaultURI string) (*MongoStore, error) {
	s := &MongoStore{clients: make(map[string]*mongo.Client), defaultURI: defaultURI}
	if defaultURI == "" {
		return s, nil
	}
	if _, err := s.client(ctx, defaultURI); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) client(ctx context.Context, uri string) (*mongo.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[uri]; ok {
		return c, nil
	}

	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		c.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	slog.Info("connected to MongoDB", "clients", len(s.clients)+1)
	s.clients[uri] = c
	return c, nil
}

func (s *MongoStore) collection(ctx context.Context, t Target) (*mongo.Collection, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	c, err := s.client(ctx, t.URI)
	if err != nil {
		return nil, err
	}
	return c.Database(t.Database).Collection(t.Collection), nil
}

func (s *MongoStore) ReplaceOne(ctx context.Context, t Target, filter, doc bson.M) (*ReplaceResult, error) {
	coll, err := s.collection(ctx, t)
	if err != nil {
		return nil, err
	}
	res, err := coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("failed to replace document: %w", err)
	}
	return &ReplaceResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

func (s *MongoStore) FindOne(ctx context.Context, t Target, filter bson.M) (bson.M, error) {
	coll, err := s.collection(ctx, t)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	err = coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, t Target, filter bson.M) (*DeleteResult, error) {
	coll, err := s.collection(ctx, t)
	if err != nil {
		return nil, err
	}
	res, err := coll.DeleteOne(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	return &DeleteResult{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}

// Ping checks the default deployment. It succeeds trivially without one.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.defaultURI == "" {
		return nil
	}
	c, err := s.client(ctx, s.defaultURI)
	if err != nil {
		return err
	}
	return c.Ping(ctx, nil)
}

// Close disconnects every cached client.
func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for uri, c := range s.clients {
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(s.clients, uri)
	}
	return errors.Join(errs...)
}

package database

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process DocumentStore for local development and tests.
// Documents are copied through BSON on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]bson.M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]bson.M)}
}

func memoryKey(t Target) string {
	return t.URI + "|" + t.Database + "." + t.Collection
}

func (s *MemoryStore) ReplaceOne(_ context.Context, t Target, filter, doc bson.M) (*ReplaceResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	f, err := copyDoc(filter)
	if err != nil {
		return nil, err
	}
	d, err := copyDoc(doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(t)
	docs := s.collections[key]
	for i, existing := range docs {
		if matches(existing, f) {
			d["_id"] = existing["_id"]
			docs[i] = d
			return &ReplaceResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
		}
	}

	id, ok := d["_id"]
	if !ok {
		id = primitive.NewObjectID()
		d["_id"] = id
	}
	s.collections[key] = append(docs, d)
	return &ReplaceResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: id}, nil
}

func (s *MemoryStore) FindOne(_ context.Context, t Target, filter bson.M) (bson.M, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	f, err := copyDoc(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, existing := range s.collections[memoryKey(t)] {
		if matches(existing, f) {
			return copyDoc(existing)
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteOne(_ context.Context, t Target, filter bson.M) (*DeleteResult, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	f, err := copyDoc(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(t)
	docs := s.collections[key]
	for i, existing := range docs {
		if matches(existing, f) {
			s.collections[key] = append(docs[:i:i], docs[i+1:]...)
			return &DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
		}
	}
	return &DeleteResult{Acknowledged: true}, nil
}

// Count returns the number of documents held for t.
func (s *MemoryStore) Count(t Target) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[memoryKey(t)])
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

// matches applies top-level equality on every filter key.
func matches(doc, filter bson.M) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func copyDoc(in bson.M) (bson.M, error) {
	if in == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

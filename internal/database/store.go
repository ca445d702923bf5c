// Package database holds the document stores behind the proxy.
package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrMissingTarget is returned when a target lacks a connection, database or collection.
var ErrMissingTarget = errors.New("connection string, database and collection are required")

// Target addresses one collection on one deployment.
type Target struct {
	URI        string
	Database   string
	Collection string
}

// Validate reports ErrMissingTarget when any part is empty.
func (t Target) Validate() error {
	if t.URI == "" || t.Database == "" || t.Collection == "" {
		return ErrMissingTarget
	}
	return nil
}

// ReplaceResult mirrors the driver's replace result with its wire names.
type ReplaceResult struct {
	Acknowledged  bool        `json:"acknowledged"`
	MatchedCount  int64       `json:"matchedCount"`
	ModifiedCount int64       `json:"modifiedCount"`
	UpsertedCount int64       `json:"upsertedCount"`
	UpsertedID    interface{} `json:"upsertedId"`
}

type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// DocumentStore performs single-document operations on a target collection.
type DocumentStore interface {
	// ReplaceOne replaces the first document matching filter, inserting doc if none matches.
	ReplaceOne(ctx context.Context, t Target, filter, doc bson.M) (*ReplaceResult, error)
	// FindOne returns the first matching document, or nil if none matches.
	FindOne(ctx context.Context, t Target, filter bson.M) (bson.M, error)
	DeleteOne(ctx context.Context, t Target, filter bson.M) (*DeleteResult, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

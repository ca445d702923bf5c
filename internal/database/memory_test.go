package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testTarget = Target{URI: "memory://", Database: "tracker", Collection: "userdata"}

func TestMemoryStore_ReplaceOneUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	filter := bson.M{"userId": "user_1"}

	res, err := s.ReplaceOne(ctx, testTarget, filter, bson.M{"userId": "user_1", "expenses": []interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.UpsertedCount)
	id, ok := res.UpsertedID.(primitive.ObjectID)
	require.True(t, ok)

	res, err = s.ReplaceOne(ctx, testTarget, filter, bson.M{"userId": "user_1", "note": "second"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, 1, s.Count(testTarget))

	doc, err := s.FindOne(ctx, testTarget, filter)
	require.NoError(t, err)
	assert.Equal(t, "second", doc["note"])
	assert.Equal(t, id, doc["_id"])
	_, hasExpenses := doc["expenses"]
	assert.False(t, hasExpenses, "replace drops fields not in the new document")
}

func TestMemoryStore_FindOneMissing(t *testing.T) {
	s := NewMemoryStore()
	doc, err := s.FindOne(context.Background(), testTarget, bson.M{"userId": "nobody"})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	filter := bson.M{"userId": "user_1"}
	_, err := s.ReplaceOne(ctx, testTarget, filter, bson.M{"userId": "user_1", "n": 1.0})
	require.NoError(t, err)

	doc, err := s.FindOne(ctx, testTarget, filter)
	require.NoError(t, err)
	doc["n"] = 2.0

	again, err := s.FindOne(ctx, testTarget, filter)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again["n"])
}

func TestMemoryStore_DeleteOne(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	filter := bson.M{"userId": "user_1"}
	_, err := s.ReplaceOne(ctx, testTarget, filter, bson.M{"userId": "user_1"})
	require.NoError(t, err)
	_, err = s.ReplaceOne(ctx, testTarget, bson.M{"userId": "user_2"}, bson.M{"userId": "user_2"})
	require.NoError(t, err)

	res, err := s.DeleteOne(ctx, testTarget, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedCount)

	res, err = s.DeleteOne(ctx, testTarget, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.DeletedCount)

	other, err := s.FindOne(ctx, testTarget, bson.M{"userId": "user_2"})
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestMemoryStore_TargetsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	other := Target{URI: "memory://", Database: "tracker", Collection: "archive"}
	_, err := s.ReplaceOne(ctx, testTarget, bson.M{"userId": "u"}, bson.M{"userId": "u"})
	require.NoError(t, err)

	doc, err := s.FindOne(ctx, other, bson.M{"userId": "u"})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMemoryStore_MissingTarget(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FindOne(context.Background(), Target{Database: "x", Collection: "y"}, bson.M{})
	assert.True(t, errors.Is(err, ErrMissingTarget))
}

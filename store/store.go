// Package store is the document-store boundary used by the node services.
// Implementations must support equality-conjunction queries with paging and
// bounded batched updates.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultMaxBatchSize matches the per-batch write ceiling of the hosted
// document store the data originally lived in.
const DefaultMaxBatchSize = 500

var ErrNotFound = errors.New("document not found")

type Query struct {
	Collection string
	Filter     bson.M
	Sort       bson.D
	Limit      int64
	Skip       int64
}

type DocumentStore interface {
	InsertOne(ctx context.Context, collection string, doc interface{}) error
	// FindOne decodes the first match into out or returns ErrNotFound.
	FindOne(ctx context.Context, collection string, filter bson.M, out interface{}) error
	// Find decodes every match into out, which must point to a slice.
	Find(ctx context.Context, q Query, out interface{}) error
	UpdateOne(ctx context.Context, collection string, id primitive.ObjectID, set bson.M) error
	DeleteOne(ctx context.Context, collection string, id primitive.ObjectID) error
	NewBatch() Batch
	MaxBatchSize() int
}

// Batch stages field updates and commits them in one round trip. A failed
// commit may have applied a prefix of the staged updates.
type Batch interface {
	Update(collection string, id primitive.ObjectID, set bson.M)
	Len() int
	IDs() []primitive.ObjectID
	Commit(ctx context.Context) error
}

type stagedUpdate struct {
	collection string
	id         primitive.ObjectID
	set        bson.M
}

func stagedIDs(ops []stagedUpdate) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.id)
	}
	return ids
}

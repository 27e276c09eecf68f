package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	db       *mongo.Database
	maxBatch int
}

func NewMongoStore(db *mongo.Database, maxBatch int) *MongoStore {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &MongoStore{db: db, maxBatch: maxBatch}
}

// EnsureIndexes creates the indexes behind the listing, trash and
// propagation queries. Existing indexes are left alone.
func (s *MongoStore) EnsureIndexes(ctx context.Context, collections ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "directory", Value: 1}, {Key: "is_deleted", Value: 1}, {Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "directory", Value: 1}, {Key: "is_deleted", Value: 1}, {Key: "group_id", Value: 1}}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "is_deleted", Value: 1}, {Key: "deleted_at", Value: -1}}},
		{Keys: bson.D{{Key: "directory", Value: 1}, {Key: "tree_owner_id", Value: 1}, {Key: "_id", Value: 1}}},
	}
	for _, name := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc interface{}) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M, out interface{}) error {
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find in %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) Find(ctx context.Context, q Query, out interface{}) error {
	findOptions := options.Find()
	if len(q.Sort) > 0 {
		findOptions.SetSort(q.Sort)
	}
	if q.Limit > 0 {
		findOptions.SetLimit(q.Limit)
	}
	if q.Skip > 0 {
		findOptions.SetSkip(q.Skip)
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, q.Filter, findOptions)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", q.Collection, err)
	}
	return nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, id primitive.ObjectID, set bson.M) error {
	result, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", collection, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, id primitive.ObjectID) error {
	result, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) MaxBatchSize() int {
	return s.maxBatch
}

func (s *MongoStore) NewBatch() Batch {
	return &mongoBatch{db: s.db}
}

type mongoBatch struct {
	db  *mongo.Database
	ops []stagedUpdate
}

func (b *mongoBatch) Update(collection string, id primitive.ObjectID, set bson.M) {
	b.ops = append(b.ops, stagedUpdate{collection: collection, id: id, set: set})
}

func (b *mongoBatch) Len() int {
	return len(b.ops)
}

func (b *mongoBatch) IDs() []primitive.ObjectID {
	return stagedIDs(b.ops)
}

// Commit issues one ordered BulkWrite per collection, in the order each
// collection first appears in the batch.
func (b *mongoBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	var order []string
	grouped := make(map[string][]mongo.WriteModel)
	for _, op := range b.ops {
		if _, seen := grouped[op.collection]; !seen {
			order = append(order, op.collection)
		}
		updateModel := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": op.id}).
			SetUpdate(bson.M{"$set": op.set})
		grouped[op.collection] = append(grouped[op.collection], updateModel)
	}

	for _, collection := range order {
		if _, err := b.db.Collection(collection).BulkWrite(ctx, grouped[collection]); err != nil {
			return fmt.Errorf("bulk write on %s failed: %w", collection, err)
		}
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// InsertResult reports the outcome of an unordered bulk insert.
type InsertResult struct {
	Inserted int
	Skipped  int // duplicate keys
}

// wrapError maps driver errors onto the package sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func isDuplicateCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// classifyBulkInsert turns the error of an unordered InsertMany of n
// documents into counts.  Duplicate-key write errors are skips; any other
// failure is returned alongside whatever was inserted.
func classifyBulkInsert(n int, err error) (InsertResult, error) {
	if err == nil {
		return InsertResult{Inserted: n}, nil
	}
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return InsertResult{}, err
	}
	res := InsertResult{Inserted: n - len(bwe.WriteErrors)}
	var other int
	for _, we := range bwe.WriteErrors {
		if isDuplicateCode(we.Code) {
			res.Skipped++
			continue
		}
		other++
	}
	if other > 0 {
		return res, fmt.Errorf("bulk insert: %d documents failed: %w", other, err)
	}
	if bwe.WriteConcernError != nil {
		return res, fmt.Errorf("bulk insert: %w", err)
	}
	return res, nil
}

func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	results := []*T{}
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}
	return results, cursor.Err()
}

// vocabCollection implements storage for one vocabulary kind keyed by
// (user_id, word).
type vocabCollection[T any] struct {
	col *mongo.Collection
	key func(*T) string
}

func ownerKey(userID int64, key string) bson.D {
	return bson.D{{Key: "user_id", Value: userID}, {Key: "word", Value: key}}
}

// Get returns one record or ErrNotFound.
func (v *vocabCollection[T]) Get(ctx context.Context, userID int64, key string) (*T, error) {
	var out T
	if err := v.col.FindOne(ctx, ownerKey(userID, key)).Decode(&out); err != nil {
		return nil, wrapError(err)
	}
	return &out, nil
}

// FindByKeys returns the user's records whose key is in keys, indexed by key.
func (v *vocabCollection[T]) FindByKeys(ctx context.Context, userID int64, keys []string) (map[string]*T, error) {
	out := make(map[string]*T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	found, err := findMany[T](ctx, v.col, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "word", Value: bson.D{{Key: "$in", Value: keys}}},
	})
	if err != nil {
		return nil, err
	}
	for _, rec := range found {
		out[v.key(rec)] = rec
	}
	return out, nil
}

// List pages through the user's records in key order.
func (v *vocabCollection[T]) List(ctx context.Context, userID int64, limit, offset int64) ([]*T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "word", Value: 1}}).SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return findMany[T](ctx, v.col, bson.D{{Key: "user_id", Value: userID}}, opts)
}

// Create inserts one record; an existing key yields ErrDuplicate.
func (v *vocabCollection[T]) Create(ctx context.Context, rec *T) error {
	_, err := v.col.InsertOne(ctx, rec)
	return wrapError(err)
}

// Replace overwrites the stored record with the same owner and key.
func (v *vocabCollection[T]) Replace(ctx context.Context, userID int64, rec *T) error {
	res, err := v.col.ReplaceOne(ctx, ownerKey(userID, v.key(rec)), rec)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one record or returns ErrNotFound.
func (v *vocabCollection[T]) Delete(ctx context.Context, userID int64, key string) error {
	res, err := v.col.DeleteOne(ctx, ownerKey(userID, key))
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every record of the user and reports how many went.
func (v *vocabCollection[T]) DeleteAll(ctx context.Context, userID int64) (int, error) {
	res, err := v.col.DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return 0, wrapError(err)
	}
	return int(res.DeletedCount), nil
}

// InsertMany inserts recs without stopping at the first duplicate key.
func (v *vocabCollection[T]) InsertMany(ctx context.Context, recs []*T) (InsertResult, error) {
	if len(recs) == 0 {
		return InsertResult{}, nil
	}
	docs := make([]any, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	_, err := v.col.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return classifyBulkInsert(len(recs), err)
}

// Count returns how many records the user has.
func (v *vocabCollection[T]) Count(ctx context.Context, userID int64) (int64, error) {
	n, err := v.col.CountDocuments(ctx, bson.D{{Key: "user_id", Value: userID}})
	return n, wrapError(err)
}

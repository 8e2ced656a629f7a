package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names for vocabulary documents.
const (
	ColWords   = "words"
	ColPhrases = "phrases"
)

// Mongo wraps the client and database holding vocabulary documents.
type Mongo struct {
	client *mongo.Client
	DB     *mongo.Database
}

// OpenMongo connects, pings and makes sure the vocabulary indexes exist.
func OpenMongo(uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	m := &Mongo{client: client, DB: client.Database(dbName)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}
	indexes := []idx{
		{ColWords, bson.D{{Key: "user_id", Value: 1}, {Key: "word", Value: 1}}, true},
		{ColWords, bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}, false},
		{ColPhrases, bson.D{{Key: "user_id", Value: 1}, {Key: "word", Value: 1}}, true},
	}
	// review queues scan words by the time a stage was reached
	for stage := 0; stage <= 5; stage++ {
		indexes = append(indexes, idx{ColWords, bson.D{
			{Key: "user_id", Value: 1},
			{Key: fmt.Sprintf("state%dCreateTime", stage), Value: 1},
		}, false})
	}

	for _, i := range indexes {
		model := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			model.Options = options.Index().SetUnique(true)
		}
		if _, err := m.DB.Collection(i.col).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("mongo: create index on %s: %w", i.col, err)
		}
	}
	return nil
}

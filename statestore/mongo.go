package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConfig struct {
	URI        string `json:"uri" validate:"required"`
	Database   string `json:"database" validate:"required"`
	Collection string `json:"collection"`
}

func (c *MongoConfig) Validate() error {
	if c.Collection == "" {
		c.Collection = "syncplane_cursors"
	}
	return utils.Validate(c)
}

type mongoDoc struct {
	Table  string `bson:"table_name"`
	Client string `bson:"client_id"`
	Cursor string `bson:"cursor"`
}

// MongoStore keeps cursors in a collection keyed by (table_name, client_id);
// ReplaceOne with upsert gives the atomic per-key write the scheduler needs.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongo state config: %s", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo state store: %s", err)
	}

	collection := client.Database(config.Database).Collection(config.Collection)
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "table_name", Value: 1}, {Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ensure cursor index: %s", err)
	}

	return &MongoStore{client: client, collection: collection}, nil
}

func (m *MongoStore) filter(key Key) bson.M {
	return bson.M{"table_name": key.Table, "client_id": key.Client}
}

func (m *MongoStore) Get(ctx context.Context, key Key) (types.Cursor, error) {
	var doc mongoDoc
	err := m.collection.FindOne(ctx, m.filter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cursor for %s: %s", key, err)
	}
	return types.Cursor(doc.Cursor), nil
}

func (m *MongoStore) Put(ctx context.Context, key Key, cursor types.Cursor) error {
	doc := mongoDoc{Table: key.Table, Client: key.Client, Cursor: string(cursor)}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, m.filter(key), doc, opts); err != nil {
		return fmt.Errorf("failed to upsert cursor for %s: %s", key, err)
	}
	return nil
}

func (m *MongoStore) Snapshot(ctx context.Context) (map[Key]types.Cursor, error) {
	cursor, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %s", err)
	}
	defer cursor.Close(ctx)

	out := make(map[Key]types.Cursor)
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode cursor document: %s", err)
		}
		out[NewKey(doc.Table, doc.Client)] = types.Cursor(doc.Cursor)
	}
	return out, cursor.Err()
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

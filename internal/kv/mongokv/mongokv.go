// Package mongokv is a kv.Bridge backed by a MongoDB collection.
package mongokv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tablesync/internal/kv"
)

const (
	defaultDatabase   = "tablesync"
	defaultCollection = "state"
)

func init() {
	kv.Register("mongo", func(ctx context.Context, cfg kv.Config) (kv.Bridge, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Store keeps one document per key: {_id: key, value: <bytes>, updated_at}.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type document struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Open connects to uri. The database is taken from the URI path (default
// "tablesync") and the collection from the "collection" query parameter
// (default "state"), which is stripped before connecting.
func Open(ctx context.Context, uri string) (*Store, error) {
	dbName, collName, cleaned, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	clientOptions := options.Client().
		ApplyURI(cleaned).
		SetConnectTimeout(30 * time.Second)

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, coll: client.Database(dbName).Collection(collName)}, nil
}

// splitURI extracts database and collection names from a mongodb URI.
func splitURI(uri string) (db, coll, cleaned string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("mongokv: bad uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", "", "", fmt.Errorf("mongokv: unsupported scheme %q", u.Scheme)
	}
	db = strings.Trim(u.Path, "/")
	if db == "" {
		db = defaultDatabase
	}
	q := u.Query()
	coll = q.Get("collection")
	if coll == "" {
		coll = defaultCollection
	}
	q.Del("collection")
	u.RawQuery = q.Encode()
	return db, coll, u.String(), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": key},
		document{Key: key, Value: value, UpdatedAt: time.Now().UTC()},
		options.Replace().SetUpsert(true))
	return err
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ kv.Bridge = (*Store)(nil)

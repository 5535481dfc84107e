// Package mongo provides a MongoDB-backed persistent store that mirrors the
// in-memory semantics, snapshotting each state bucket into its own document
// after every successful transaction. The document-per-bucket shape matches
// the per-type collections of the system this store replaced.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"calcore/internal/infra/persistence/memory"
	"calcore/pkg/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "calcore"
	stateCollection = "state"
	connectTimeout  = 10 * time.Second
)

// Store persists state to MongoDB while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	client *mongo.Client
	coll   *mongo.Collection
	mu     sync.Mutex
}

type stateDocument struct {
	Bucket  string `bson:"_id"`
	Payload []byte `bson:"payload"`
}

// NewStore connects to MongoDB, hydrates the in-memory store from any
// existing snapshot documents, and returns the wrapped store.
func NewStore(uri, database string, engine *domain.RulesEngine) (*Store, error) {
	if uri == "" {
		uri = defaultURI
	}
	if database == "" {
		database = defaultDatabase
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(stateCollection)

	snapshot, err := loadSnapshot(ctx, coll)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, client: client, coll: coll}, nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots to MongoDB if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var mongoBuckets = []string{"instruments", "calibrations", "archived", "frequencies", "samples"}

func loadSnapshot(ctx context.Context, coll *mongo.Collection) (memory.Snapshot, error) {
	cursor, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("find state: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var snapshot memory.Snapshot
	for cursor.Next(ctx) {
		var doc stateDocument
		if err := cursor.Decode(&doc); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode state document: %w", err)
		}
		if len(doc.Payload) == 0 {
			continue
		}
		var target any
		switch doc.Bucket {
		case "instruments":
			target = &snapshot.Instruments
		case "calibrations":
			target = &snapshot.Calibrations
		case "archived":
			target = &snapshot.Archived
		case "frequencies":
			target = &snapshot.Frequencies
		case "samples":
			target = &snapshot.Samples
		default:
			continue
		}
		if err := json.Unmarshal(doc.Payload, target); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", doc.Bucket, err)
		}
	}
	if err := cursor.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	upsert := options.Replace().SetUpsert(true)
	for _, bucket := range mongoBuckets {
		var data []byte
		var err error
		switch bucket {
		case "instruments":
			data, err = json.Marshal(snapshot.Instruments)
		case "calibrations":
			data, err = json.Marshal(snapshot.Calibrations)
		case "archived":
			data, err = json.Marshal(snapshot.Archived)
		case "frequencies":
			data, err = json.Marshal(snapshot.Frequencies)
		case "samples":
			data, err = json.Marshal(snapshot.Samples)
		}
		if err != nil {
			return err
		}
		doc := stateDocument{Bucket: bucket, Payload: data}
		if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": bucket}, doc, upsert); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoStore implements Store against a real MongoDB deployment, grounded
// directly on the pymongo usage in the original implementation: a
// majority-write, retryable-writes client, one session/transaction per
// logical request, and find_one_and_update as the concurrency lynch-pin of
// task assignment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri and selects database dbName, verifying the
// connection with a ping before returning, matching the original's
// `client.admin.command("ping")` startup check.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	return s, nil
}

// EnsureIndexes creates every index spec.md's data model requires: a unique
// index on queues.queue_name, and lookup indexes on tasks/workers by
// queue_id, status, priority (descending), created_at, and worker_name.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	queues := s.db.Collection(CollectionQueues)
	if _, err := queues.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "queue_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	tasks := s.db.Collection(CollectionTasks)
	taskIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "queue_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}
	if _, err := tasks.Indexes().CreateMany(ctx, taskIndexes); err != nil {
		return err
	}

	workers := s.db.Collection(CollectionWorkers)
	workerIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "queue_id", Value: 1}}},
		{Keys: bson.D{{Key: "worker_name", Value: 1}}},
	}
	if _, err := workers.Indexes().CreateMany(ctx, workerIndexes); err != nil {
		return err
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc bson.M) (string, error) {
	res, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicateKey
		}
		return "", err
	}
	id, _ := res.InsertedID.(string)
	return id, nil
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	cur, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoStore) FindOneAndUpdate(ctx context.Context, collection string, filter, update bson.M) (bson.M, error) {
	after := options.After
	var doc bson.M
	err := s.db.Collection(collection).
		FindOneAndUpdate(ctx, filter, update, &options.FindOneAndUpdateOptions{ReturnDocument: &after}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	res, err := s.db.Collection(collection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := s.db.Collection(collection).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := s.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return s.db.Collection(collection).CountDocuments(ctx, filter)
}

// WithTransaction opens a session and runs fn inside session.WithTransaction,
// which retries on transient transaction errors and commits/aborts
// automatically based on fn's return value — the idiomatic Go-driver
// equivalent of the original's session.start_transaction()/commit/abort.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	return session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return fn(sessCtx)
	})
}

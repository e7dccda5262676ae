// Package store defines the narrow persistence interface the service layer
// programs against, plus a MongoDB-backed implementation of it and the
// caller-filter sanitizer that keeps untrusted query documents queue-scoped.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrDuplicateKey is returned by InsertOne when a unique index is violated.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNoDocuments is a sentinel for an empty match. FindOne does not return
// it: FindOne returns a nil document and a nil error when nothing matches.
var ErrNoDocuments = errors.New("no documents matched")

// FindOptions controls ordering and pagination for Find.
type FindOptions struct {
	Sort  bson.D
	Limit int64
	Skip  int64
}

// Store is the minimal document-store surface the service depends on. It is
// deliberately narrow: one collection-qualified method per MongoDB operation
// the original implementation uses, so it can be faked in tests without a
// live database.
type Store interface {
	InsertOne(ctx context.Context, collection string, doc bson.M) (string, error)
	FindOne(ctx context.Context, collection string, filter bson.M) (bson.M, error)
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error)
	FindOneAndUpdate(ctx context.Context, collection string, filter, update bson.M) (bson.M, error)
	UpdateOne(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error)

	// WithTransaction runs fn within a single multi-document ACID
	// transaction, committing if fn returns nil and aborting otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)

	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Collection names, the only values query_collection/update_collection may
// address.
const (
	CollectionQueues  = "queues"
	CollectionTasks   = "tasks"
	CollectionWorkers = "workers"
)

// ValidCollections reports whether name is one of the three addressable
// collections.
func ValidCollections(name string) bool {
	switch name {
	case CollectionQueues, CollectionTasks, CollectionWorkers:
		return true
	default:
		return false
	}
}

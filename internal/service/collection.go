package service

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/store"
)

// defaultQueryLimit mirrors database.py's query_collection(limit=100).
const defaultQueryLimit = 100

// QueryCollection runs a sanitized, queue-scoped query against one of the
// three addressable collections, grounded on database.py's
// query_collection. The password field is always removed from documents
// returned from the queues collection.
func (s *Service) QueryCollection(ctx context.Context, queueID, collection string, query bson.M, limit, offset int64) ([]bson.M, error) {
	if !store.ValidCollections(collection) {
		return nil, invalidInput("unknown collection %q", collection)
	}
	sanitized, err := store.SanitizeQuery(queueID, query)
	if err != nil {
		return nil, invalidInput("%v", err)
	}
	if collection == store.CollectionQueues {
		// queue documents carry no queue_id; scope them by their own _id
		delete(sanitized, "queue_id")
		sanitized = store.MergeFilter(sanitized, bson.M{"_id": queueID})
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	docs, err := s.store.Find(ctx, collection, sanitized, store.FindOptions{Limit: limit, Skip: offset})
	if err != nil {
		return nil, internal("query %s: %v", collection, err)
	}
	for _, doc := range docs {
		delete(doc, "password")
	}
	return docs, nil
}

// UpdateCollection applies a sanitized, queue-scoped update to every
// document a query matches in one of the three addressable collections,
// grounded on database.py's update_collection. last_modified is always
// overwritten with the current time regardless of what the caller supplied.
func (s *Service) UpdateCollection(ctx context.Context, queueID, collection string, query, update bson.M) (int64, error) {
	if !store.ValidCollections(collection) {
		return 0, invalidInput("unknown collection %q", collection)
	}
	sanitizedQuery, err := store.SanitizeQuery(queueID, query)
	if err != nil {
		return 0, invalidInput("%v", err)
	}
	if collection == store.CollectionQueues {
		delete(sanitizedQuery, "queue_id")
		sanitizedQuery = store.MergeFilter(sanitizedQuery, bson.M{"_id": queueID})
	}
	sanitizedUpdate, err := store.SanitizeUpdate(update, false)
	if err != nil {
		return 0, invalidInput("%v", err)
	}
	set, _ := sanitizedUpdate["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["last_modified"] = s.clock.Now()

	n, err := s.store.UpdateMany(ctx, collection, sanitizedQuery, bson.M{"$set": set})
	if err != nil {
		return 0, internal("update %s: %v", collection, err)
	}
	return n, nil
}

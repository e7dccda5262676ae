package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maumercado/labtasker-go/internal/store"
)

// memStore is a minimal in-process fake of store.Store, grounded on the
// narrow-mock-per-interface pattern used throughout the retrieval pack
// (e.g. FluxForge's scheduler_test.go MockStore) rather than a live
// MongoDB, so the service tests exercise real filter/update semantics
// without a database dependency. It supports top-level $and/$or/$not and
// the field operators $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin and $exists
// on dotted paths; it does not implement $nor or a field-level $not, which
// internal/store/filter.go also allow-lists. It does not implement MongoDB
// aggregation ($expr) either, since handleTimeouts
// evaluates elapsed time in Go instead of pushing that logic to the store.
type memStore struct {
	mu   sync.Mutex
	docs map[string][]bson.M
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]bson.M)}
}

// cloneDoc deep-copies a document without a BSON wire round trip, so
// time.Time/*time.Time fields keep their Go type instead of decoding back
// as primitive.DateTime the way a real driver round trip would.
func cloneDoc(doc bson.M) bson.M {
	return cloneValue(doc).(bson.M)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(bson.M, len(val))
		for k, sub := range val {
			out[k] = cloneValue(sub)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(val))
		for k, sub := range val {
			out[k] = cloneValue(sub)
		}
		return out
	case bson.A:
		out := make(bson.A, len(val))
		for i, sub := range val {
			out[i] = cloneValue(sub)
		}
		return out
	case []any:
		out := make(bson.A, len(val))
		for i, sub := range val {
			out[i] = cloneValue(sub)
		}
		return out
	default:
		// Documents never hold pointer types — nullable fields are
		// represented as nil or a plain value, matching pymongo's
		// dict-of-anything documents — so every remaining case is an
		// immutable scalar (string, int, float64, bool, time.Time) safe
		// to share by value.
		return v
	}
}

func (m *memStore) InsertOne(_ context.Context, collection string, doc bson.M) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if collection == store.CollectionQueues {
		for _, existing := range m.docs[collection] {
			if existing["queue_name"] == doc["queue_name"] {
				return "", store.ErrDuplicateKey
			}
		}
	}

	id, _ := doc["_id"].(string)
	m.docs[collection] = append(m.docs[collection], cloneDoc(doc))
	return id, nil
}

func (m *memStore) FindOne(_ context.Context, collection string, filter bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			return cloneDoc(doc), nil
		}
	}
	return nil, nil
}

func (m *memStore) Find(_ context.Context, collection string, filter bson.M, opts store.FindOptions) ([]bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []bson.M
	for _, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			matched = append(matched, cloneDoc(doc))
		}
	}

	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, s := range opts.Sort {
				ai, aj := getDotted(matched[i], s.Key), getDotted(matched[j], s.Key)
				c := compareValues(ai, aj)
				dir, _ := s.Value.(int)
				if c == 0 {
					continue
				}
				if dir < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Skip:]
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (m *memStore) FindOneAndUpdate(_ context.Context, collection string, filter, update bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			applyUpdate(doc, update)
			m.docs[collection][i] = doc
			return cloneDoc(doc), nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateOne(_ context.Context, collection string, filter, update bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			applyUpdate(doc, update)
			m.docs[collection][i] = doc
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memStore) UpdateMany(_ context.Context, collection string, filter, update bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for i, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			applyUpdate(doc, update)
			m.docs[collection][i] = doc
			count++
		}
	}
	return count, nil
}

func (m *memStore) DeleteOne(_ context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.docs[collection]
	for i, doc := range docs {
		if matchFilter(doc, filter) {
			m.docs[collection] = append(docs[:i], docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memStore) DeleteMany(_ context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []bson.M
	var count int64
	for _, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			count++
			continue
		}
		kept = append(kept, doc)
	}
	m.docs[collection] = kept
	return count, nil
}

func (m *memStore) CountDocuments(_ context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, doc := range m.docs[collection] {
		if matchFilter(doc, filter) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

func (m *memStore) EnsureIndexes(context.Context) error { return nil }
func (m *memStore) Ping(context.Context) error          { return nil }
func (m *memStore) Close(context.Context) error         { return nil }

// --- filter matching ---

func matchFilter(doc bson.M, filter bson.M) bool {
	for k, v := range filter {
		switch k {
		case "$and":
			for _, sub := range toSlice(v) {
				if !matchFilter(doc, toM(sub)) {
					return false
				}
			}
		case "$or":
			ok := false
			for _, sub := range toSlice(v) {
				if matchFilter(doc, toM(sub)) {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		case "$not":
			if matchFilter(doc, toM(v)) {
				return false
			}
		default:
			if !matchField(getDotted(doc, k), v) {
				return false
			}
		}
	}
	return true
}

func matchField(actual any, cond any) bool {
	condM, ok := cond.(bson.M)
	if !ok {
		if m, ok2 := cond.(map[string]any); ok2 {
			condM = bson.M(m)
			ok = true
		}
	}
	if !ok {
		return compareValues(actual, cond) == 0
	}

	for op, want := range condM {
		switch op {
		case "$eq":
			if compareValues(actual, want) != 0 {
				return false
			}
		case "$ne":
			if compareValues(actual, want) == 0 {
				return false
			}
		case "$gt":
			if compareValues(actual, want) <= 0 {
				return false
			}
		case "$gte":
			if compareValues(actual, want) < 0 {
				return false
			}
		case "$lt":
			if compareValues(actual, want) >= 0 {
				return false
			}
		case "$lte":
			if compareValues(actual, want) > 0 {
				return false
			}
		case "$in":
			found := false
			for _, item := range toSlice(want) {
				if compareValues(actual, item) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$nin":
			for _, item := range toSlice(want) {
				if compareValues(actual, item) == 0 {
					return false
				}
			}
		case "$exists":
			wantExists, _ := want.(bool)
			if (actual != nil) != wantExists {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func toSlice(v any) []any {
	switch val := v.(type) {
	case bson.A:
		return []any(val)
	case []any:
		return val
	default:
		return nil
	}
}

func toM(v any) bson.M {
	switch val := v.(type) {
	case bson.M:
		return val
	case map[string]any:
		return bson.M(val)
	default:
		return bson.M{}
	}
}

func getDotted(doc bson.M, path string) any {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		switch m := cur.(type) {
		case bson.M:
			cur = m[p]
		case map[string]any:
			cur = m[p]
		default:
			return nil
		}
	}
	return cur
}

func setDotted(doc bson.M, path string, val any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(bson.M)
		if !ok {
			next = bson.M{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}

func applyUpdate(doc bson.M, update bson.M) {
	setClause, _ := update["$set"].(bson.M)
	for k, v := range setClause {
		setDotted(doc, k, v)
	}
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}

	at, aok := asTime(a)
	bt, bok := asTime(b)
	if aok && bok {
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	}

	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	return strings.Compare(toStr(a), toStr(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}

func toStr(v any) string {
	return fmt.Sprint(v)
}

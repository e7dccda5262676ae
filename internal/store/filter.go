package store

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ImmutableFields can never be set by a caller-supplied update, on any path.
var ImmutableFields = map[string]bool{
	"_id":           true,
	"queue_id":      true,
	"created_at":    true,
	"last_modified": true,
}

// PrivilegedFields require a privileged (service-internal) update path.
var PrivilegedFields = map[string]bool{
	"status":   true,
	"retries":  true,
	"password": true,
}

// allowedOperators is the full set of MongoDB query/update operators a
// caller-supplied filter or update may use. Anything outside this set is
// rejected — in particular $where, $expr, $function, and aggregation-stage
// operators, which could let a caller escape the collection or run
// server-side script code.
var allowedOperators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$and": true, "$or": true, "$not": true, "$nor": true,
	"$exists": true, "$set": true,
}

// BadRequestError marks a filter/update rejection as caller error (as
// opposed to a store failure).
type BadRequestError struct{ Detail string }

func (e *BadRequestError) Error() string { return e.Detail }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Detail: fmt.Sprintf(format, args...)}
}

// SanitizeQuery rewrites a caller-supplied filter into a safe, queue-scoped
// filter: it conjuncts queue_id at the top level and walks the structure
// rejecting any operator key not in allowedOperators.
func SanitizeQuery(queueID string, filter bson.M) (bson.M, error) {
	if filter == nil {
		filter = bson.M{}
	}
	if err := checkOperators(filter); err != nil {
		return nil, err
	}
	safe := bson.M{}
	for k, v := range filter {
		if k == "queue_id" {
			// caller-supplied queue_id is always overridden, never trusted
			continue
		}
		safe[k] = v
	}
	safe["queue_id"] = queueID
	return safe, nil
}

// checkOperators recursively walks a query/update document rejecting any
// "$"-prefixed key outside allowedOperators. Non-operator keys (field paths)
// are left alone; their values are still walked in case they embed nested
// operator documents (e.g. {"age": {"$gt": 5}}).
func checkOperators(v any) error {
	switch val := v.(type) {
	case bson.M:
		for k, sub := range val {
			if strings.HasPrefix(k, "$") && !allowedOperators[k] {
				return badRequest("operator %q is not permitted", k)
			}
			if err := checkOperators(sub); err != nil {
				return err
			}
		}
	case map[string]any:
		for k, sub := range val {
			if strings.HasPrefix(k, "$") && !allowedOperators[k] {
				return badRequest("operator %q is not permitted", k)
			}
			if err := checkOperators(sub); err != nil {
				return err
			}
		}
	case bson.A:
		for _, sub := range val {
			if err := checkOperators(sub); err != nil {
				return err
			}
		}
	case []any:
		for _, sub := range val {
			if err := checkOperators(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// SanitizeUpdate validates a caller-supplied update document shaped as
// {"$set": {...}} (the only update form exposed to callers). It rejects
// writes to immutable fields outright and writes to privileged fields
// unless allowPrivileged is set (the service's own internal report/fetch
// paths call with allowPrivileged=true after constructing the update
// itself — caller-facing update_task/update_collection always pass false).
func SanitizeUpdate(update bson.M, allowPrivileged bool) (bson.M, error) {
	if update == nil {
		return bson.M{}, nil
	}
	if err := checkOperators(update); err != nil {
		return nil, err
	}

	setClause, _ := update["$set"].(bson.M)
	if setClause == nil {
		if raw, ok := update["$set"].(map[string]any); ok {
			setClause = bson.M(raw)
		}
	}
	// Treat a bare field:value document (no $ operators) as an implicit $set,
	// matching the "update_task(task_setting_update)" shape in the source.
	if setClause == nil && !hasOperatorKeys(update) {
		setClause = update
	}

	cleaned := bson.M{}
	for k, v := range setClause {
		root := strings.SplitN(k, ".", 2)[0]
		if ImmutableFields[root] {
			return nil, badRequest("field %q is immutable", k)
		}
		if PrivilegedFields[root] && !allowPrivileged {
			return nil, badRequest("field %q requires a privileged update path", k)
		}
		cleaned[k] = v
	}
	return bson.M{"$set": cleaned}, nil
}

func hasOperatorKeys(m bson.M) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// AddKeyPrefix rewrites {"k": v, ...} to {"prefix.k": v, ...} for partial
// sub-document updates such as metadata.<key> or summary.<key>.
func AddKeyPrefix(m map[string]any, prefix string) bson.M {
	out := bson.M{}
	for k, v := range m {
		out[prefix+k] = v
	}
	return out
}

// RequiredFieldsFilter expresses a required_fields document (exact-match
// constraints on task args) as a conservative store-side pre-filter of the
// form {"args.<path>": value, ...}. It is conservative because dotted-path
// equality at the store layer cannot fully express nested-document
// containment; arg_match performs the authoritative structural check
// in-process after retrieval.
func RequiredFieldsFilter(requiredFields map[string]any, parentKey string) bson.M {
	out := bson.M{}
	for k, v := range requiredFields {
		out[parentKey+"."+k] = v
	}
	return out
}

// MergeFilter conjuncts two optional filter documents with $and. Either may
// be nil/empty, in which case the other is returned unchanged.
func MergeFilter(a, b bson.M) bson.M {
	switch {
	case len(a) == 0 && len(b) == 0:
		return bson.M{}
	case len(a) == 0:
		return b
	case len(b) == 0:
		return a
	default:
		return bson.M{"$and": bson.A{a, b}}
	}
}

// ArgMatch performs the in-process structural match of required_fields
// against a task's args: dotted paths, exact equality for scalars. This is
// the authoritative check; the store-side filter built by
// RequiredFieldsFilter is only a conservative pre-filter.
func ArgMatch(required map[string]any, args map[string]any) bool {
	for path, want := range required {
		got, ok := lookupPath(args, path)
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func lookupPath(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func valuesEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

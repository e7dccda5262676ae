package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/maumercado/labtasker-go/internal/service"
)

type contextKey string

const queueIDContextKey contextKey = "queue_id"

// Authenticator is the subset of *service.Service the auth middleware
// depends on, narrowed so it can be faked in tests without a store.
type Authenticator interface {
	AuthenticateQueue(ctx context.Context, queueName, password string) (string, error)
	ResolveSessionToken(token string) (string, error)
}

// Auth resolves the caller's queue identity before every queue-scoped
// route, the HTTP equivalent of the original's auth_required decorator.
// Credentials arrive either as X-Queue-Name/X-Queue-Password headers or as
// an Authorization: Bearer <session-token> issued by IssueSessionToken.
func Auth(auth Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var queueID string
			var err error

			switch {
			case r.Header.Get("Authorization") != "":
				authHeader := r.Header.Get("Authorization")
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if token == authHeader {
					http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
					return
				}
				queueID, err = auth.ResolveSessionToken(token)
			case r.Header.Get("X-Queue-Name") != "":
				queueID, err = auth.AuthenticateQueue(r.Context(), r.Header.Get("X-Queue-Name"), r.Header.Get("X-Queue-Password"))
			default:
				http.Error(w, "queue credentials required", http.StatusUnauthorized)
				return
			}

			if err != nil {
				svcErr, ok := service.AsError(err)
				if ok && svcErr.Kind == service.KindUnauthorized {
					http.Error(w, svcErr.Detail, http.StatusUnauthorized)
					return
				}
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), queueIDContextKey, queueID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// QueueID retrieves the authenticated queue id stashed in the request
// context by Auth.
func QueueID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(queueIDContextKey).(string)
	return id, ok
}

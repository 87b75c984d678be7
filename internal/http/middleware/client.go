package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Where a client id may be carried on a request.
const (
	ClientHeader = "X-Client-ID"
	ClientCookie = "routebook_client"
)

type clientKey struct{}

// ClientIdentity resolves which client (browser profile) a request comes from.
// The X-Client-ID header wins, then the identity cookie; otherwise a new UUID
// is issued as a long-lived cookie so later requests carry the same id.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ClientHeader))
		if id == "" {
			if c, err := r.Cookie(ClientCookie); err == nil {
				id = strings.TrimSpace(c.Value)
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     ClientCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), id)))
	})
}

// WithClientID stores id in ctx.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientKey{}, id)
}

// ClientIDFromContext returns the id set by ClientIdentity.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientKey{}).(string)
	return id, ok && id != ""
}

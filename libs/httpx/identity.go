package httpx

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the edge gateway after it has authenticated the caller.
const (
	UserIDHeader = "X-User-Id"
	RoleHeader   = "X-Role"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Caller is the authenticated principal forwarded by the gateway.
type Caller struct {
	UserID string
	Role   Role
}

func (c Caller) IsZero() bool { return c.UserID == "" }

func CallerFromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(ctxKeyCaller).(Caller)
	return c
}

func ContextWithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKeyCaller, c)
}

// WithCaller lifts the gateway identity headers onto the request context.
// Requests without them carry a zero Caller; handlers decide whether that is allowed.
func WithCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := Caller{
			UserID: strings.TrimSpace(r.Header.Get(UserIDHeader)),
			Role:   Role(strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader)))),
		}
		next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), c)))
	})
}

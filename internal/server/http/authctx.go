package httpserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// Session is the authenticated caller of a request.
type Session struct {
	UserID    uuid.UUID
	Username  string
	SessionID string // token jti
}

type ctxKey int

const (
	sessionKey ctxKey = iota
	logSlotKey
)

// WithSession attaches the caller to ctx. If an outer Logging middleware left a
// slot in ctx, the caller is recorded there too so the access log can name it.
func WithSession(ctx context.Context, s Session) context.Context {
	if slot, ok := ctx.Value(logSlotKey).(*Session); ok {
		*slot = s
	}
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromCtx returns the caller set by RequireAuth.
func SessionFromCtx(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

func withLogSlot(ctx context.Context) (context.Context, *Session) {
	slot := new(Session)
	return context.WithValue(ctx, logSlotKey, slot), slot
}

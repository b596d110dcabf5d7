package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims" // full jwtx.Claims when needed
)

// UserIDFromContext returns the authenticated user ID set by AuthnMiddleware,
// or "" for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

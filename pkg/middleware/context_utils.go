package middleware

import (
	"context"
	"net/http"

	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/jwtutil"
)

type contextKey string

const (
	ContextUserID   contextKey = "userID"
	ContextToken    contextKey = "token"
	ContextDeviceID contextKey = "deviceID"
	ContextRole     contextKey = "role"
	ContextUserType contextKey = "userType"
)

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok && val != ""
}

// WithUserID returns ctx carrying userID the same way the auth middleware
// stores it. Used by services that authenticate callers by other means.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserID, userID)
}

func setContextValues(r *http.Request, claims *jwtutil.Claims, token string) *http.Request {
	ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
	ctx = context.WithValue(ctx, ContextToken, token)
	ctx = context.WithValue(ctx, ContextDeviceID, claims.Device)
	ctx = context.WithValue(ctx, ContextRole, claims.Role)
	ctx = context.WithValue(ctx, ContextUserType, claims.UserType)
	return r.WithContext(ctx)
}

// Package middleware provides shared middleware helpers for the ModelRelay
// gateway.
//
// This package lives in pkg/ (not internal/) so that embedding deployments
// can use GetUserID() and SetUserID() in their own middleware.
package middleware

import "context"

type contextKey string

const userIDKey contextKey = "user_id"

// GetUserID extracts the requester's user ID from the context.
// Returns "" for anonymous requests.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// SetUserID stores the requester's user ID in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

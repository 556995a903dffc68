package http

import (
	"context"
	"log/slog"

	"github.com/example/meeting-coordinator/internal/application"
	"github.com/example/meeting-coordinator/internal/logging"
)

type contextKey string

const (
	authContextKey      contextKey = "auth"
	meetingIDContextKey contextKey = "meeting_id"
)

// authResult is what the Authenticate middleware learned from the request's credentials.
type authResult struct {
	principal *application.Principal
	err       error
}

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, authContextKey, authResult{principal: &principal})
}

func contextWithAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authContextKey, authResult{err: err})
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	result, _ := ctx.Value(authContextKey).(authResult)
	if result.principal == nil {
		return application.Principal{}, false
	}
	return *result.principal, true
}

// requirePrincipal returns the caller or ErrUnauthorized when no credential was sent and
// ErrUnauthenticated when the credential did not verify.
func requirePrincipal(ctx context.Context) (*application.Principal, error) {
	result, _ := ctx.Value(authContextKey).(authResult)
	if result.principal != nil {
		return result.principal, nil
	}
	if result.err != nil {
		return nil, result.err
	}
	return nil, application.ErrUnauthorized
}

// optionalPrincipal returns the caller when a valid credential was sent and nil otherwise.
func optionalPrincipal(ctx context.Context) *application.Principal {
	result, _ := ctx.Value(authContextKey).(authResult)
	return result.principal
}

// ContextWithMeetingID injects the meeting identifier resolved from the request path.
func ContextWithMeetingID(ctx context.Context, meetingID string) context.Context {
	return context.WithValue(ctx, meetingIDContextKey, meetingID)
}

// MeetingIDFromContext extracts a meeting identifier previously associated with the context.
func MeetingIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(meetingIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, if any.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

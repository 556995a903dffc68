package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/meeting-coordinator/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	kinds := []struct {
		target error
		label  string
	}{
		{ErrUnauthorized, "unauthorized"},
		{ErrUnauthenticated, "unauthenticated"},
		{ErrForbidden, "forbidden"},
		{ErrNotFound, "not_found"},
		{ErrNoValidFields, "no_valid_fields"},
		{ErrMeetingClosed, "meeting_closed"},
		{ErrDeadlinePassed, "deadline_passed"},
		{ErrQuotaExhausted, "quota_exhausted"},
		{ErrNoParticipants, "no_participants"},
		{ErrGenerationFailed, "generation_failed"},
		{ErrConcurrentUpdate, "conflict"},
		{ErrNotConfirmed, "not_confirmed"},
		{ErrCalendarFetch, "calendar_fetch"},
		{ErrCodeExchange, "code_exchange"},
		{ErrInvalidState, "invalid_state"},
		{ErrCalendarDisabled, "calendar_disabled"},
	}
	for _, kind := range kinds {
		if errors.Is(err, kind.target) {
			return kind.label
		}
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

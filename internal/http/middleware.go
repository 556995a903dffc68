package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/meeting-coordinator/internal/application"
	"github.com/example/meeting-coordinator/internal/identity"
)

// Authenticator resolves a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (application.Principal, error)
}

// TokenVerifier is satisfied by *identity.Verifier.
type TokenVerifier interface {
	Verify(token string, now time.Time) (identity.Claims, error)
}

// TokenAuthenticator adapts a PASETO verifier to Authenticator.
type TokenAuthenticator struct {
	verifier TokenVerifier
	now      func() time.Time
}

// NewTokenAuthenticator wraps verifier. A nil now uses time.Now.
func NewTokenAuthenticator(verifier TokenVerifier, now func() time.Time) *TokenAuthenticator {
	if now == nil {
		now = time.Now
	}
	return &TokenAuthenticator{verifier: verifier, now: now}
}

// Authenticate verifies token and returns ErrUnauthenticated when it does not check out.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (application.Principal, error) {
	if a == nil || a.verifier == nil {
		return application.Principal{}, application.ErrUnauthenticated
	}
	claims, err := a.verifier.Verify(token, a.now())
	if err != nil {
		return application.Principal{}, fmt.Errorf("%w: %v", application.ErrUnauthenticated, err)
	}
	return application.Principal{UserID: claims.UserID}, nil
}

// Authenticate records the caller's identity on the request context without rejecting anything.
// Handlers decide whether a principal is required.
func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || authenticator == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			principal, err := authenticator.Authenticate(ctx, token)
			switch {
			case err == nil:
				ctx = ContextWithPrincipal(ctx, principal)
			case errors.Is(err, application.ErrUnauthenticated):
				if logger := LoggerFromContext(ctx); logger != nil {
					logger.InfoContext(ctx, "bearer token rejected", "error", err)
				}
				ctx = contextWithAuthError(ctx, application.ErrUnauthenticated)
			default:
				ctx = contextWithAuthError(ctx, err)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// RequestLogger assigns every request a ULID request_id and logs its start and completion.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", ulid.Make().String(),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			rec := newStatusRecorder(w)
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}

// CORS answers cross origin requests for the configured origins. "*" allows any origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			next.ServeHTTP(w, r)
		})
	}
}

// RequestObserver counts served requests per route.
type RequestObserver interface {
	ObserveRequest(method, route string, status int)
}

func instrument(observer RequestObserver, route string, next http.HandlerFunc) http.HandlerFunc {
	if observer == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		next(rec, r)
		observer.ObserveRequest(r.Method, route, rec.status)
	}
}

// statusRecorder remembers the response status while staying hijackable for websockets.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	s.wroteHeader = true
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

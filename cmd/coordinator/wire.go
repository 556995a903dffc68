package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/meeting-coordinator/internal/application"
	"github.com/example/meeting-coordinator/internal/calendar"
	"github.com/example/meeting-coordinator/internal/config"
	httptransport "github.com/example/meeting-coordinator/internal/http"
	"github.com/example/meeting-coordinator/internal/identity"
	"github.com/example/meeting-coordinator/internal/jobs"
	"github.com/example/meeting-coordinator/internal/metrics"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/persistence/memory"
	"github.com/example/meeting-coordinator/internal/persistence/postgres"
	"github.com/example/meeting-coordinator/internal/persistence/sqlite"
	"github.com/example/meeting-coordinator/internal/realtime"
	"github.com/example/meeting-coordinator/internal/suggestion"
)

const subscriberQueueSize = 16

type storage interface {
	persistence.MeetingRepository
	persistence.AvailabilityRepository
	Migrate(ctx context.Context) error
	Close() error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.Open(), nil
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(cfg.SQLiteDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return store, nil
	}
}

func newMeetingService(store storage, suggester application.Suggester, logger *slog.Logger) *application.MeetingService {
	return application.NewMeetingServiceWithLogger(store, store, suggester, uuid.NewString, time.Now, logger)
}

func newCalDAVPublisher(cfg config.Config, logger *slog.Logger) (*calendar.CalDAVPublisher, error) {
	return calendar.NewCalDAVPublisher(calendar.CalDAVConfig{
		Endpoint:     cfg.CalDAV.URL,
		Username:     cfg.CalDAV.Username,
		Password:     cfg.CalDAV.Password,
		CalendarPath: cfg.CalDAV.Calendar,
	}, logger)
}

// server holds the assembled HTTP handler and whatever must be released on shutdown.
type server struct {
	handler http.Handler
	closers []func() error
	logger  *slog.Logger
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("failed to release resource", "error", err)
		}
	}
}

func buildServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*server, error) {
	srv := &server{logger: logger}
	fail := func(err error) (*server, error) {
		srv.close()
		return nil, err
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, store.Close)
	if err := store.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("failed to apply migrations: %w", err))
	}

	registry := metrics.NewRegistry()

	model, err := suggestion.NewGeminiModel(ctx, cfg.GoogleAIAPIKey, cfg.Model)
	if err != nil {
		return fail(err)
	}
	engine := suggestion.NewEngine(model,
		suggestion.WithTimeout(cfg.SuggestionTimeout),
		suggestion.WithRecorder(registry),
		suggestion.WithLogger(logger),
	)

	meetings := newMeetingService(store, engine, logger)

	hub := realtime.NewHub(logger, subscriberQueueSize)
	publishers := application.EventPublishers{hub}
	if cfg.CalDAV.Enabled() {
		publisher, err := eventPublisherForCalDAV(cfg, meetings, logger)
		if err != nil {
			return fail(err)
		}
		publishers = append(publishers, publisher.publisher)
		if publisher.close != nil {
			srv.closers = append(srv.closers, publisher.close)
		}
	}
	meetings.SetEventPublisher(publishers)

	calendarService, closeStates, err := newCalendarService(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if closeStates != nil {
		srv.closers = append(srv.closers, closeStates)
	}

	verifier, err := identity.NewVerifier(cfg.TokenPublicKey, cfg.TokenIssuer)
	if err != nil {
		return fail(fmt.Errorf("invalid COORDINATOR_TOKEN_PUBLIC_KEY: %w", err))
	}

	srv.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Meetings: httptransport.NewMeetingHandler(meetings, logger),
		Calendar: httptransport.NewCalendarHandler(calendarService, logger),
		Events:   httptransport.NewEventsHandler(meetings, realtime.NewGateway(hub, logger, cfg.AllowedOrigins), logger),
		Metrics:  registry.Handler(),
		Observer: registry,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.CORS(cfg.AllowedOrigins),
			httptransport.Authenticate(httptransport.NewTokenAuthenticator(verifier, time.Now)),
		},
	})
	return srv, nil
}

type calDAVPublisher struct {
	publisher application.EventPublisher
	close     func() error
}

// eventPublisherForCalDAV queues publish jobs when Redis is configured and publishes inline otherwise.
func eventPublisherForCalDAV(cfg config.Config, meetings *application.MeetingService, logger *slog.Logger) (calDAVPublisher, error) {
	if cfg.RedisURL != "" {
		client, err := jobs.NewClient(cfg.RedisURL)
		if err != nil {
			return calDAVPublisher{}, err
		}
		return calDAVPublisher{publisher: jobs.NewQueuePublisher(client, logger), close: client.Close}, nil
	}

	caldav, err := newCalDAVPublisher(cfg, logger)
	if err != nil {
		return calDAVPublisher{}, err
	}
	return calDAVPublisher{publisher: jobs.NewInlinePublisher(meetings, caldav, logger)}, nil
}

func newCalendarService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application.CalendarService, func() error, error) {
	var (
		oauth  application.OAuthProvider
		states application.StateGuard
		closer func() error
	)

	if cfg.OAuthEnabled() {
		provider, err := calendar.NewGoogleOAuth(cfg.OAuthClientID, cfg.OAuthClientSecret)
		if err != nil {
			return nil, nil, err
		}
		oauth = provider

		var replay calendar.ReplayStore = calendar.NewMemoryReplayStore()
		if cfg.RedisURL != "" {
			redisStore, err := calendar.NewRedisReplayStore(ctx, cfg.RedisURL)
			if err != nil {
				return nil, nil, err
			}
			replay = redisStore
			closer = redisStore.Close
		}

		signer, err := calendar.NewStateSigner([]byte(cfg.StateSecret), replay, calendar.DefaultStateTTL)
		if err != nil {
			if closer != nil {
				_ = closer()
			}
			return nil, nil, err
		}
		states = signer
	}

	service := application.NewCalendarServiceWithLogger(calendar.NewGoogleBusyTimes(), oauth, states, time.Now, logger)
	service.SetDefaultRedirect(cfg.OAuthRedirectURL)
	return service, closer, nil
}

package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/meeting-coordinator/internal/application"
	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/persistence/memory"
	"github.com/example/meeting-coordinator/internal/suggestion"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("meeting"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("meeting")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// MeetingServiceDeps captures dependencies for constructing a meeting service.
// Nil repositories fall back to a shared in-memory store and a nil Suggester to
// a suggestion engine over Model.
type MeetingServiceDeps struct {
	Meetings       persistence.MeetingRepository
	Availabilities persistence.AvailabilityRepository
	Suggester      application.Suggester
	Model          suggestion.Model
	Publisher      application.EventPublisher
	IDGenerator    func() string
	Now            func() time.Time
	Logger         *slog.Logger
}

// NewMeetingService builds a meeting service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewMeetingService(deps MeetingServiceDeps) *application.MeetingService {
	if deps.Meetings == nil || deps.Availabilities == nil {
		store := memory.Open()
		if deps.Meetings == nil {
			deps.Meetings = store
		}
		if deps.Availabilities == nil {
			deps.Availabilities = store
		}
	}
	suggester := deps.Suggester
	if suggester == nil {
		model := deps.Model
		if model == nil {
			model = ReplyWith(DefaultTimeSlots()[0], "Everyone is available")
		}
		suggester = suggestion.NewEngine(model, suggestion.WithLogger(deps.Logger))
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}

	service := application.NewMeetingServiceWithLogger(
		deps.Meetings,
		deps.Availabilities,
		suggester,
		idGen,
		now,
		deps.Logger,
	)
	if deps.Publisher != nil {
		service.SetEventPublisher(deps.Publisher)
	}
	return service
}

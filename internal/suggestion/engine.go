package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Slot statuses a participant may report.
const (
	StatusAvailable   = "available"
	StatusMaybe       = "maybe"
	StatusUnavailable = "unavailable"
)

// Outcome labels reported to the Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// DefaultTimeout bounds a single model call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// ErrGeneration is returned when the model call fails or times out.
var ErrGeneration = errors.New("suggestion: generation failed")

// Model produces a raw text reply for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Recorder observes suggestion outcomes.
type Recorder interface {
	ObserveSuggestion(outcome string)
}

// Input is everything the engine needs to propose a slot.
type Input struct {
	MeetingTitle     string
	TimeSlots        []string
	Participants     []Participant
	HostInstructions string
}

// Participant is one respondent and the statuses they reported.
type Participant struct {
	Name         string
	Availability []SlotAvailability
}

// SlotAvailability is a participant's answer for a single slot.
type SlotAvailability struct {
	Time    string
	Status  string
	Comment string
}

// Result is the proposed slot and the model's explanation.
type Result struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// Engine drives a Model to produce suggestions.
type Engine struct {
	model    Model
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each model call.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithRecorder reports outcomes to recorder.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an Engine around model.
func NewEngine(model Model, opts ...Option) *Engine {
	e := &Engine{
		model:   model,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suggest proposes a slot for in. A malformed reply yields Fallback(in.TimeSlots); only a failed
// or timed out model call returns an error, wrapping ErrGeneration.
func (e *Engine) Suggest(ctx context.Context, in Input) (Result, error) {
	if e == nil || e.model == nil {
		return Result{}, fmt.Errorf("%w: no model configured", ErrGeneration)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.model.Generate(callCtx, BuildPrompt(in))
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		e.observe(OutcomeError)
		return Result{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	result, err := ParseReply(reply)
	if err != nil {
		e.logger.WarnContext(ctx, "model reply could not be parsed; using fallback",
			"error", err,
			"reply_length", len(reply),
		)
		e.observe(OutcomeFallback)
		return Fallback(in.TimeSlots), nil
	}

	e.observe(OutcomeOK)
	return result, nil
}

func (e *Engine) observe(outcome string) {
	if e.recorder != nil {
		e.recorder.ObserveSuggestion(outcome)
	}
}

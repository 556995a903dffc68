// Package jobs publishes confirmed meetings to external calendars, either through an asynq queue or
// inline when no queue is configured.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/example/meeting-coordinator/internal/application"
)

// TaskTypePublishMeeting is the queue task that pushes a confirmed meeting to CalDAV.
const TaskTypePublishMeeting = "meeting:publish"

const (
	publishTimeout = 30 * time.Second
	maxRetry       = 5
)

// PublishPayload is the JSON payload of TaskTypePublishMeeting.
type PublishPayload struct {
	MeetingID string `json:"meetingId"`
}

// MeetingLoader returns a confirmed meeting.
type MeetingLoader interface {
	ConfirmedMeeting(ctx context.Context, meetingID string) (application.Meeting, error)
}

// CalendarPublisher writes a confirmed meeting into an external calendar.
type CalendarPublisher interface {
	Publish(ctx context.Context, meeting application.Meeting) error
}

// PublishMeeting loads the meeting and publishes it. A meeting that was reopened in the meantime is skipped.
func PublishMeeting(ctx context.Context, loader MeetingLoader, publisher CalendarPublisher, meetingID string) error {
	meeting, err := loader.ConfirmedMeeting(ctx, meetingID)
	if errors.Is(err, application.ErrNotConfirmed) || errors.Is(err, application.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load meeting %s: %w", meetingID, err)
	}
	return publisher.Publish(ctx, meeting)
}

// NewPublishTask builds the queue task for meetingID.
func NewPublishTask(meetingID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PublishPayload{MeetingID: meetingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePublishMeeting, payload, asynq.MaxRetry(maxRetry), asynq.Timeout(publishTimeout)), nil
}

// PublishHandler returns the asynq handler for TaskTypePublishMeeting.
func PublishHandler(loader MeetingLoader, publisher CalendarPublisher) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p PublishPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", TaskTypePublishMeeting, err, asynq.SkipRetry)
		}
		if p.MeetingID == "" {
			return fmt.Errorf("%s payload without meetingId: %w", TaskTypePublishMeeting, asynq.SkipRetry)
		}
		return PublishMeeting(ctx, loader, publisher, p.MeetingID)
	}
}

// TaskEnqueuer is the subset of *asynq.Client used by QueuePublisher.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueuePublisher turns meeting.confirmed events into queue tasks. It implements application.EventPublisher.
type QueuePublisher struct {
	client TaskEnqueuer
	logger *slog.Logger
}

// NewQueuePublisher wraps an asynq client.
func NewQueuePublisher(client TaskEnqueuer, logger *slog.Logger) *QueuePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueuePublisher{client: client, logger: logger}
}

// Publish enqueues a publish task for confirmed meetings and ignores every other event.
func (q *QueuePublisher) Publish(ctx context.Context, event application.Event) {
	if event.Type != application.EventMeetingConfirmed {
		return
	}
	task, err := NewPublishTask(event.MeetingID)
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to build publish task", "error", err, "meeting_id", event.MeetingID)
		return
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to enqueue publish task", "error", err, "meeting_id", event.MeetingID)
		return
	}
	q.logger.InfoContext(ctx, "publish task enqueued", "meeting_id", event.MeetingID, "task_id", info.ID)
}

// InlinePublisher publishes confirmed meetings on a background goroutine. It implements
// application.EventPublisher and never blocks the caller.
type InlinePublisher struct {
	loader    MeetingLoader
	publisher CalendarPublisher
	logger    *slog.Logger
	timeout   time.Duration
	done      func(error)
}

// NewInlinePublisher builds an inline publisher.
func NewInlinePublisher(loader MeetingLoader, publisher CalendarPublisher, logger *slog.Logger) *InlinePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlinePublisher{loader: loader, publisher: publisher, logger: logger, timeout: publishTimeout}
}

// Publish starts the CalDAV write for meeting.confirmed events.
func (p *InlinePublisher) Publish(ctx context.Context, event application.Event) {
	if event.Type != application.EventMeetingConfirmed {
		return
	}
	meetingID := event.MeetingID
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		err := PublishMeeting(bg, p.loader, p.publisher, meetingID)
		if err != nil {
			p.logger.Error("failed to publish confirmed meeting", "error", err, "meeting_id", meetingID)
		}
		if p.done != nil {
			p.done(err)
		}
	}()
}

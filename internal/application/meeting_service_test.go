package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/meeting-coordinator/internal/persistence"
	"github.com/example/meeting-coordinator/internal/persistence/memory"
	"github.com/example/meeting-coordinator/internal/suggestion"
)

var referenceNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

type suggesterStub struct {
	mu     sync.Mutex
	calls  int
	inputs []suggestion.Input
	result suggestion.Result
	err    error
}

func (s *suggesterStub) Suggest(ctx context.Context, in suggestion.Input) (suggestion.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.inputs = append(s.inputs, in)
	return s.result, s.err
}

func (s *suggesterStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type publisherSpy struct {
	mu     sync.Mutex
	events []Event
}

func (p *publisherSpy) Publish(ctx context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *publisherSpy) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// staleMeetings answers the first GetMeeting with an older snapshot, as a reader racing a
// writer would see it.
type staleMeetings struct {
	*memory.Storage
	mu       sync.Mutex
	snapshot persistence.Meeting
	served   bool
}

func (s *staleMeetings) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.served && id == s.snapshot.ID {
		s.served = true
		return s.snapshot, nil
	}
	return s.Storage.GetMeeting(ctx, id)
}

func (s *staleMeetings) rewind() {
	s.mu.Lock()
	s.served = false
	s.mu.Unlock()
}

type meetingFixture struct {
	service   *MeetingService
	store     *memory.Storage
	suggester *suggesterStub
	events    *publisherSpy
	now       *time.Time
}

func newMeetingFixture(t *testing.T) *meetingFixture {
	t.Helper()

	now := referenceNow
	store := memory.Open()
	suggester := &suggesterStub{result: suggestion.Result{Date: "2024-01-15T10:00:00+09:00", Reason: "everyone is free"}}
	counter := 0
	service := NewMeetingService(store, store, suggester, func() string {
		counter++
		return fmt.Sprintf("meeting-%d", counter)
	}, func() time.Time { return now })
	events := &publisherSpy{}
	service.SetEventPublisher(events)

	return &meetingFixture{service: service, store: store, suggester: suggester, events: events, now: &now}
}

func strPtr(v string) *string { return &v }

func (f *meetingFixture) createMeeting(t *testing.T, host string) Meeting {
	t.Helper()

	meeting, err := f.service.CreateMeeting(context.Background(), CreateMeetingParams{
		Principal:   &Principal{UserID: host},
		Title:       strPtr("Quarterly planning"),
		Description: strPtr("Agenda TBD"),
		TimeSlots:   []string{"2024-01-15T10:00:00+09:00", "2024-01-15T14:00:00+09:00", "2024-01-16T10:00:00+09:00"},
		Deadline:    strPtr("2024-01-14T23:59:59+09:00"),
	})
	if err != nil {
		t.Fatalf("CreateMeeting returned error: %v", err)
	}
	return meeting
}

func (f *meetingFixture) submit(t *testing.T, meetingID, name string, schedule map[string]SlotResponse) Availability {
	t.Helper()

	availability, err := f.service.SubmitAvailability(context.Background(), SubmitAvailabilityParams{
		MeetingID: meetingID,
		UserName:  strPtr(name),
		Schedule:  schedule,
	})
	if err != nil {
		t.Fatalf("SubmitAvailability(%s) returned error: %v", name, err)
	}
	return availability
}

func TestMeetingService_CreateMeeting(t *testing.T) {
	t.Parallel()

	t.Run("starts scheduling with full quota", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		if meeting.ID != "meeting-1" {
			t.Fatalf("expected generated id, got %q", meeting.ID)
		}
		if meeting.Status != StatusScheduling || meeting.AISuggestionsRemaining != InitialSuggestionQuota {
			t.Fatalf("unexpected initial state: status=%s quota=%d", meeting.Status, meeting.AISuggestionsRemaining)
		}
		if meeting.CreatorUID != "host" || meeting.ConfirmedDateTime != nil {
			t.Fatalf("unexpected meeting: %+v", meeting)
		}

		stored, err := f.store.GetMeeting(context.Background(), meeting.ID)
		if err != nil {
			t.Fatalf("meeting not persisted: %v", err)
		}
		if len(stored.TimeSlots) != 3 || !stored.CreatedAt.Equal(referenceNow) {
			t.Fatalf("unexpected stored meeting: %+v", stored)
		}
	})

	t.Run("requires a principal", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		_, err := f.service.CreateMeeting(context.Background(), CreateMeetingParams{Title: strPtr("x")})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("reports the first missing field", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		_, err := f.service.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: &Principal{UserID: "host"},
			TimeSlots: []string{"2024-01-15T10:00:00+09:00"},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if got := vErr.FirstMessage(); got != "Missing required field: title" {
			t.Fatalf("unexpected first message %q", got)
		}
		if _, ok := vErr.FieldErrors["deadline"]; !ok {
			t.Fatalf("expected deadline to be reported too: %+v", vErr.FieldErrors)
		}
	})

	t.Run("rejects malformed timestamps", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		_, err := f.service.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: &Principal{UserID: "host"},
			Title:     strPtr("x"),
			TimeSlots: []string{"next monday"},
			Deadline:  strPtr("tomorrow"),
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["timeSlots"]; !ok {
			t.Fatalf("expected timeSlots error: %+v", vErr.FieldErrors)
		}
		if _, ok := vErr.FieldErrors["deadline"]; !ok {
			t.Fatalf("expected deadline error: %+v", vErr.FieldErrors)
		}
	})
}

func TestMeetingService_GetMeeting(t *testing.T) {
	t.Parallel()

	f := newMeetingFixture(t)
	meeting := f.createMeeting(t, "host")
	f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})

	details, err := f.service.GetMeeting(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("GetMeeting returned error: %v", err)
	}
	if details.Meeting.Title != "Quarterly planning" || len(details.Participants) != 1 {
		t.Fatalf("unexpected details: %+v", details)
	}
	if details.Participants[0].UserID != DeriveParticipantID(meeting.ID, "Alice") {
		t.Fatalf("unexpected participant id %q", details.Participants[0].UserID)
	}

	if _, err := f.service.GetMeeting(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMeetingService_UpdateMeeting(t *testing.T) {
	t.Parallel()

	t.Run("only the creator may update", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		_, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal: &Principal{UserID: "intruder"},
			MeetingID: meeting.ID,
			Title:     strPtr("hijacked"),
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if _, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{MeetingID: meeting.ID}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{Principal: &Principal{UserID: "host"}, MeetingID: "missing", Title: strPtr("x")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("requires at least one editable field", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		_, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal:       &Principal{UserID: "host"},
			MeetingID:       meeting.ID,
			ConfirmedReason: strPtr("ignored without status"),
		})
		if !errors.Is(err, ErrNoValidFields) {
			t.Fatalf("expected ErrNoValidFields, got %v", err)
		}
	})

	t.Run("merges fields and bumps updatedAt", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")
		*f.now = referenceNow.Add(time.Hour)

		updated, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal:   &Principal{UserID: "host"},
			MeetingID:   meeting.ID,
			Title:       strPtr("  Renamed  "),
			Description: strPtr(""),
			Deadline:    strPtr("2024-01-20T00:00:00Z"),
		})
		if err != nil {
			t.Fatalf("UpdateMeeting returned error: %v", err)
		}
		if updated.Title != "Renamed" || updated.Description != "" {
			t.Fatalf("fields not merged: %+v", updated)
		}
		if !updated.UpdatedAt.Equal(referenceNow.Add(time.Hour)) || !updated.CreatedAt.Equal(referenceNow) {
			t.Fatalf("unexpected timestamps: created=%v updated=%v", updated.CreatedAt, updated.UpdatedAt)
		}
		if len(f.events.types()) != 1 || f.events.types()[0] != EventMeetingUpdated {
			t.Fatalf("expected one meeting.updated event, got %v", f.events.types())
		}
	})

	t.Run("confirming requires a date and never touches the quota", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		_, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal: &Principal{UserID: "host"},
			MeetingID: meeting.ID,
			Status:    strPtr(StatusConfirmed),
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FirstMessage() != "Missing required field: confirmedDateTime" {
			t.Fatalf("expected missing confirmedDateTime, got %v", err)
		}

		updated, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal:         &Principal{UserID: "host"},
			MeetingID:         meeting.ID,
			Status:            strPtr(StatusConfirmed),
			ConfirmedDateTime: strPtr(meeting.TimeSlots[1]),
		})
		if err != nil {
			t.Fatalf("UpdateMeeting returned error: %v", err)
		}
		if updated.ConfirmedDateTime == nil || *updated.ConfirmedDateTime != meeting.TimeSlots[1] {
			t.Fatalf("unexpected confirmed date: %v", updated.ConfirmedDateTime)
		}
		if updated.ConfirmedReason == nil || *updated.ConfirmedReason != DefaultConfirmedReason {
			t.Fatalf("expected default reason, got %v", updated.ConfirmedReason)
		}
		if updated.AISuggestionsRemaining != InitialSuggestionQuota {
			t.Fatalf("quota changed by direct update: %d", updated.AISuggestionsRemaining)
		}
		if got := f.events.types(); len(got) != 2 || got[1] != EventMeetingConfirmed {
			t.Fatalf("expected updated+confirmed events, got %v", got)
		}

		reopened, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal: &Principal{UserID: "host"},
			MeetingID: meeting.ID,
			Status:    strPtr(StatusScheduling),
		})
		if err != nil {
			t.Fatalf("reopen returned error: %v", err)
		}
		if reopened.Status != StatusScheduling || reopened.ConfirmedDateTime != nil || reopened.ConfirmedReason != nil {
			t.Fatalf("reopen did not clear confirmation: %+v", reopened)
		}
	})

	t.Run("a stale read never undoes a confirmation", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		ctx := context.Background()
		meeting := f.createMeeting(t, "host")
		f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})

		snapshot, err := f.store.GetMeeting(ctx, meeting.ID)
		if err != nil {
			t.Fatalf("GetMeeting returned error: %v", err)
		}
		if _, err := f.service.ConfirmBySuggestion(ctx, ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: meeting.ID}); err != nil {
			t.Fatalf("ConfirmBySuggestion returned error: %v", err)
		}

		stale := &staleMeetings{Storage: f.store, snapshot: snapshot}
		racing := NewMeetingService(stale, f.store, f.suggester, func() string { return "unused" }, func() time.Time { return referenceNow.Add(time.Minute) })

		renamed, err := racing.UpdateMeeting(ctx, UpdateMeetingParams{
			Principal: &Principal{UserID: "host"},
			MeetingID: meeting.ID,
			Title:     strPtr("Renamed"),
		})
		if err != nil {
			t.Fatalf("title update returned error: %v", err)
		}
		if renamed.Title != "Renamed" || renamed.Status != StatusConfirmed || renamed.ConfirmedDateTime == nil {
			t.Fatalf("title update lost the confirmation: %+v", renamed)
		}

		stale.rewind()
		_, err = racing.UpdateMeeting(ctx, UpdateMeetingParams{
			Principal: &Principal{UserID: "host"},
			MeetingID: meeting.ID,
			Status:    strPtr(StatusScheduling),
		})
		if !errors.Is(err, ErrConcurrentUpdate) {
			t.Fatalf("expected ErrConcurrentUpdate for a reopen based on a stale read, got %v", err)
		}

		stored, err := f.store.GetMeeting(ctx, meeting.ID)
		if err != nil {
			t.Fatalf("GetMeeting returned error: %v", err)
		}
		if stored.Status != StatusConfirmed || stored.ConfirmedReason == nil || stored.AISuggestionsRemaining != InitialSuggestionQuota-1 {
			t.Fatalf("unexpected stored state: status=%s reason=%v quota=%d", stored.Status, stored.ConfirmedReason, stored.AISuggestionsRemaining)
		}
		if stored.Title != "Renamed" {
			t.Fatalf("title not written: %q", stored.Title)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		_, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal: &Principal{UserID: "host"},
			MeetingID: meeting.ID,
			Status:    strPtr("cancelled"),
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestMeetingService_SubmitAvailability(t *testing.T) {
	t.Parallel()

	t.Run("is idempotent per participant", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		first := f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})
		second := f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotUnavailable, Comment: "clash"}})
		if first.UserID != second.UserID {
			t.Fatalf("soft identity changed between submissions: %s vs %s", first.UserID, second.UserID)
		}

		records, err := f.store.ListAvailabilities(context.Background(), meeting.ID)
		if err != nil {
			t.Fatalf("ListAvailabilities returned error: %v", err)
		}
		if len(records) != 1 || records[0].Schedule[meeting.TimeSlots[0]].Status != SlotUnavailable {
			t.Fatalf("expected single overwritten record, got %+v", records)
		}
	})

	t.Run("authenticated callers keep their id", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		availability, err := f.service.SubmitAvailability(context.Background(), SubmitAvailabilityParams{
			Principal: &Principal{UserID: "user-42"},
			MeetingID: meeting.ID,
			UserName:  strPtr("Bob"),
			Schedule:  map[string]SlotResponse{},
		})
		if err != nil {
			t.Fatalf("SubmitAvailability returned error: %v", err)
		}
		if availability.UserID != "user-42" {
			t.Fatalf("expected principal id, got %q", availability.UserID)
		}
		if got := f.events.types(); len(got) != 1 || got[0] != EventAvailabilitySubmitted {
			t.Fatalf("expected availability event, got %v", got)
		}
	})

	t.Run("rejects closed meetings", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")
		if _, err := f.service.UpdateMeeting(context.Background(), UpdateMeetingParams{
			Principal:         &Principal{UserID: "host"},
			MeetingID:         meeting.ID,
			Status:            strPtr(StatusConfirmed),
			ConfirmedDateTime: strPtr(meeting.TimeSlots[0]),
		}); err != nil {
			t.Fatalf("UpdateMeeting returned error: %v", err)
		}

		_, err := f.service.SubmitAvailability(context.Background(), SubmitAvailabilityParams{
			MeetingID: meeting.ID,
			UserName:  strPtr("Late"),
			Schedule:  map[string]SlotResponse{},
		})
		if !errors.Is(err, ErrMeetingClosed) {
			t.Fatalf("expected ErrMeetingClosed, got %v", err)
		}
	})

	t.Run("validates the body before looking up the meeting", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		_, err := f.service.SubmitAvailability(context.Background(), SubmitAvailabilityParams{
			MeetingID: "missing",
			Schedule:  map[string]SlotResponse{},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FirstMessage() != "Missing required field: userName" {
			t.Fatalf("expected missing userName, got %v", err)
		}

		_, err = f.service.SubmitAvailability(context.Background(), SubmitAvailabilityParams{
			MeetingID: "missing",
			UserName:  strPtr("Alice"),
			Schedule:  map[string]SlotResponse{"2024-01-15T10:00:00+09:00": {Status: "perhaps"}},
		})
		if !errors.As(err, &vErr) {
			t.Fatalf("expected invalid status error, got %v", err)
		}

		_, err = f.service.SubmitAvailability(context.Background(), SubmitAvailabilityParams{
			MeetingID: "missing",
			UserName:  strPtr("Alice"),
			Schedule:  map[string]SlotResponse{},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMeetingService_ConfirmBySuggestion(t *testing.T) {
	t.Parallel()

	t.Run("confirms and spends quota until exhausted", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")
		f.submit(t, meeting.ID, "Bob", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})
		f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})

		params := ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: meeting.ID}
		for i := 0; i < InitialSuggestionQuota; i++ {
			result, err := f.service.ConfirmBySuggestion(context.Background(), params)
			if err != nil {
				t.Fatalf("confirmation %d returned error: %v", i+1, err)
			}
			if result.Date != "2024-01-15T10:00:00+09:00" {
				t.Fatalf("unexpected result: %+v", result)
			}
		}

		stored, err := f.store.GetMeeting(context.Background(), meeting.ID)
		if err != nil {
			t.Fatalf("GetMeeting returned error: %v", err)
		}
		if stored.Status != StatusConfirmed || stored.AISuggestionsRemaining != 0 {
			t.Fatalf("unexpected stored state: status=%s quota=%d", stored.Status, stored.AISuggestionsRemaining)
		}
		if stored.ConfirmedDateTime == nil || stored.ConfirmedReason == nil {
			t.Fatalf("confirmed without date or reason: %+v", stored)
		}

		if _, err := f.service.ConfirmBySuggestion(context.Background(), params); !errors.Is(err, ErrQuotaExhausted) {
			t.Fatalf("expected ErrQuotaExhausted, got %v", err)
		}
		if f.suggester.callCount() != InitialSuggestionQuota {
			t.Fatalf("expected %d model calls, got %d", InitialSuggestionQuota, f.suggester.callCount())
		}

		in := f.suggester.inputs[0]
		if len(in.Participants) != 2 || in.Participants[0].Name != "Alice" || in.Participants[1].Name != "Bob" {
			t.Fatalf("participants not aggregated in name order: %+v", in.Participants)
		}
		prompt := suggestion.BuildPrompt(in)
		for _, want := range []string{"Alice", "Bob", "参加可能: " + meeting.TimeSlots[0]} {
			if !strings.Contains(prompt, want) {
				t.Fatalf("prompt missing %q", want)
			}
		}
	})

	t.Run("guards", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")

		if _, err := f.service.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{MeetingID: meeting.ID}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := f.service.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{Principal: &Principal{UserID: "guest"}, MeetingID: meeting.ID}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if _, err := f.service.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: "missing"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.service.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: meeting.ID}); !errors.Is(err, ErrNoParticipants) {
			t.Fatalf("expected ErrNoParticipants, got %v", err)
		}
		if f.suggester.callCount() != 0 {
			t.Fatalf("model called despite failed guards")
		}
	})

	t.Run("generation failure leaves the meeting untouched", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		f.suggester.err = fmt.Errorf("%w: upstream", suggestion.ErrGeneration)
		meeting := f.createMeeting(t, "host")
		f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})

		_, err := f.service.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: meeting.ID})
		if !errors.Is(err, ErrGenerationFailed) {
			t.Fatalf("expected ErrGenerationFailed, got %v", err)
		}
		stored, _ := f.store.GetMeeting(context.Background(), meeting.ID)
		if stored.Status != StatusScheduling || stored.AISuggestionsRemaining != InitialSuggestionQuota {
			t.Fatalf("meeting changed after failed generation: %+v", stored)
		}
	})

	t.Run("lost race maps to concurrent update", func(t *testing.T) {
		t.Parallel()

		f := newMeetingFixture(t)
		meeting := f.createMeeting(t, "host")
		f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})

		racing := &racingMeetings{MeetingRepository: f.store}
		service := NewMeetingService(racing, f.store, f.suggester, nil, func() time.Time { return referenceNow })

		_, err := service.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: meeting.ID})
		if !errors.Is(err, ErrConcurrentUpdate) {
			t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
		}
		stored, _ := f.store.GetMeeting(context.Background(), meeting.ID)
		if stored.AISuggestionsRemaining != InitialSuggestionQuota-1 {
			t.Fatalf("expected exactly one decrement, got quota %d", stored.AISuggestionsRemaining)
		}
	})
}

// racingMeetings spends one suggestion behind the caller's back right before its own confirmation.
type racingMeetings struct {
	persistence.MeetingRepository
	once sync.Once
}

func (r *racingMeetings) ConfirmMeeting(ctx context.Context, id string, expectedRemaining int, confirmation persistence.Confirmation) error {
	r.once.Do(func() {
		_ = r.MeetingRepository.ConfirmMeeting(ctx, id, expectedRemaining, confirmation)
	})
	return r.MeetingRepository.ConfirmMeeting(ctx, id, expectedRemaining, confirmation)
}

// countingMeetings counts reads of the meeting record.
type countingMeetings struct {
	persistence.MeetingRepository
	mu    sync.Mutex
	reads int
}

func (c *countingMeetings) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.MeetingRepository.GetMeeting(ctx, id)
}

func TestMeetingService_ConfirmBySuggestionReadsMeetingOnce(t *testing.T) {
	t.Parallel()

	f := newMeetingFixture(t)
	meeting := f.createMeeting(t, "host")
	f.submit(t, meeting.ID, "Alice", map[string]SlotResponse{meeting.TimeSlots[0]: {Status: SlotAvailable}})

	counting := &countingMeetings{MeetingRepository: f.store}
	svc := NewMeetingService(counting, f.store, f.suggester, func() string { return "unused" }, func() time.Time { return referenceNow })
	if _, err := svc.ConfirmBySuggestion(context.Background(), ConfirmBySuggestionParams{Principal: &Principal{UserID: "host"}, MeetingID: meeting.ID}); err != nil {
		t.Fatalf("ConfirmBySuggestion returned error: %v", err)
	}
	if counting.reads != 1 {
		t.Fatalf("expected one meeting read, got %d", counting.reads)
	}
}

func TestMeetingService_ConfirmedMeeting(t *testing.T) {
	t.Parallel()

	f := newMeetingFixture(t)
	meeting := f.createMeeting(t, "host")

	if _, err := f.service.ConfirmedMeeting(context.Background(), meeting.ID); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if _, err := f.service.ConfirmedMeeting(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	if mapRepoError(nil) != nil {
		t.Fatal("expected nil")
	}
	if !errors.Is(mapRepoError(persistence.ErrNotFound), ErrNotFound) {
		t.Fatal("expected ErrNotFound mapping")
	}
	if !errors.Is(mapRepoError(persistence.ErrConflict), ErrConcurrentUpdate) {
		t.Fatal("expected ErrConcurrentUpdate mapping")
	}
	other := errors.New("disk full")
	if !errors.Is(mapRepoError(other), other) {
		t.Fatal("expected passthrough")
	}
}

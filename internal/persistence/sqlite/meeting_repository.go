package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/meeting-coordinator/internal/persistence"
)

const timestampLayout = time.RFC3339Nano

// MeetingRepository implements persistence.MeetingRepository using SQLite
type MeetingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMeetingRepository creates a new SQLite meeting repository
func NewMeetingRepository(pool *ConnectionPool) *MeetingRepository {
	return &MeetingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateMeeting inserts a new meeting into the database
func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" {
		return persistence.ErrConstraintViolation
	}

	slots, err := json.Marshal(meeting.TimeSlots)
	if err != nil {
		return fmt.Errorf("failed to encode time slots: %w", err)
	}

	query := `
		INSERT INTO meetings (
			id, title, description, time_slots, deadline, creator_uid, status,
			confirmed_date_time, confirmed_reason, ai_suggestions_remaining, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.helper.Exec(ctx, query,
		meeting.ID,
		meeting.Title,
		meeting.Description,
		string(slots),
		meeting.Deadline.UTC().Format(timestampLayout),
		meeting.CreatorUID,
		meeting.Status,
		nullableString(meeting.ConfirmedDateTime),
		nullableString(meeting.ConfirmedReason),
		meeting.AISuggestionsRemaining,
		meeting.CreatedAt.UTC().Format(timestampLayout),
		meeting.UpdatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetMeeting retrieves a meeting by ID from the database
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	if id == "" {
		return persistence.Meeting{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, title, description, time_slots, deadline, creator_uid, status,
			confirmed_date_time, confirmed_reason, ai_suggestions_remaining, created_at, updated_at
		FROM meetings
		WHERE id = ?
	`

	var (
		meeting                          persistence.Meeting
		slots, deadline                  string
		createdAt, updatedAt             string
		confirmedDateTime, confirmedNote sql.NullString
	)

	err := r.helper.QueryRow(ctx, query, id).Scan(
		&meeting.ID,
		&meeting.Title,
		&meeting.Description,
		&slots,
		&deadline,
		&meeting.CreatorUID,
		&meeting.Status,
		&confirmedDateTime,
		&confirmedNote,
		&meeting.AISuggestionsRemaining,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Meeting{}, persistence.ErrNotFound
		}
		return persistence.Meeting{}, r.mapper.MapError(err)
	}

	if err := json.Unmarshal([]byte(slots), &meeting.TimeSlots); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to decode time slots: %w", err)
	}
	if confirmedDateTime.Valid {
		value := confirmedDateTime.String
		meeting.ConfirmedDateTime = &value
	}
	if confirmedNote.Valid {
		value := confirmedNote.String
		meeting.ConfirmedReason = &value
	}

	if meeting.Deadline, err = time.Parse(timestampLayout, deadline); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to parse deadline: %w", err)
	}
	if meeting.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if meeting.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return meeting, nil
}

// UpdateMeeting writes only the columns set in patch
func (r *MeetingRepository) UpdateMeeting(ctx context.Context, id string, patch persistence.MeetingPatch) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	sets := []string{"updated_at = ?"}
	args := []any{patch.UpdatedAt.UTC().Format(timestampLayout)}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Deadline != nil {
		sets = append(sets, "deadline = ?")
		args = append(args, patch.Deadline.UTC().Format(timestampLayout))
	}

	where := "id = ?"
	if change := patch.Status; change != nil {
		sets = append(sets, "status = ?", "confirmed_date_time = ?", "confirmed_reason = ?")
		args = append(args, change.Status, nullableString(change.ConfirmedDateTime), nullableString(change.ConfirmedReason))
		args = append(args, id, change.ExpectedRemaining)
		where += " AND ai_suggestions_remaining = ?"
	} else {
		args = append(args, id)
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := "UPDATE meetings SET " + strings.Join(sets, ", ") + " WHERE " + where
		result, err := r.helper.ExecTx(ctx, tx, query, args...)
		if err != nil {
			return r.mapper.MapError(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 1 {
			return nil
		}
		return r.missingOrConflict(ctx, tx, id)
	})
}

// ConfirmMeeting applies a suggestion result with a compare-and-set on the remaining quota
func (r *MeetingRepository) ConfirmMeeting(ctx context.Context, id string, expectedRemaining int, confirmation persistence.Confirmation) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE meetings
			SET status = 'confirmed', confirmed_date_time = ?, confirmed_reason = ?,
				ai_suggestions_remaining = ai_suggestions_remaining - 1, updated_at = ?
			WHERE id = ? AND ai_suggestions_remaining = ? AND ai_suggestions_remaining > 0
		`
		result, err := r.helper.ExecTx(ctx, tx, query,
			confirmation.DateTime,
			confirmation.Reason,
			confirmation.UpdatedAt.UTC().Format(timestampLayout),
			id,
			expectedRemaining,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 1 {
			return nil
		}

		return r.missingOrConflict(ctx, tx, id)
	})
}

// missingOrConflict explains a conditional write that matched no row.
func (r *MeetingRepository) missingOrConflict(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	err := r.helper.QueryRowTx(ctx, tx, `SELECT 1 FROM meetings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return r.mapper.MapError(err)
	}
	return persistence.ErrConflict
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/meeting-coordinator/internal/persistence"
)

// AvailabilityRepository implements persistence.AvailabilityRepository using SQLite
type AvailabilityRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAvailabilityRepository creates a new SQLite availability repository
func NewAvailabilityRepository(pool *ConnectionPool) *AvailabilityRepository {
	return &AvailabilityRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertAvailability inserts or replaces the record keyed by meeting and user
func (r *AvailabilityRepository) UpsertAvailability(ctx context.Context, availability persistence.Availability) error {
	if availability.MeetingID == "" || availability.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	schedule, err := json.Marshal(availability.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	query := `
		INSERT INTO availabilities (meeting_id, user_id, user_name, schedule, submitted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			user_name = excluded.user_name,
			schedule = excluded.schedule,
			submitted_at = excluded.submitted_at
	`

	_, err = r.helper.Exec(ctx, query,
		availability.MeetingID,
		availability.UserID,
		availability.UserName,
		string(schedule),
		availability.SubmittedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// ListAvailabilities returns every record for a meeting ordered by submission time
func (r *AvailabilityRepository) ListAvailabilities(ctx context.Context, meetingID string) ([]persistence.Availability, error) {
	query := `
		SELECT meeting_id, user_id, user_name, schedule, submitted_at
		FROM availabilities
		WHERE meeting_id = ?
		ORDER BY submitted_at, user_id
	`

	rows, err := r.helper.Query(ctx, query, meetingID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var result []persistence.Availability
	for rows.Next() {
		var (
			availability persistence.Availability
			schedule     string
			submittedAt  string
		)
		if err := rows.Scan(
			&availability.MeetingID,
			&availability.UserID,
			&availability.UserName,
			&schedule,
			&submittedAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if err := json.Unmarshal([]byte(schedule), &availability.Schedule); err != nil {
			return nil, fmt.Errorf("failed to decode schedule: %w", err)
		}
		if availability.SubmittedAt, err = time.Parse(timestampLayout, submittedAt); err != nil {
			return nil, fmt.Errorf("failed to parse submitted_at: %w", err)
		}
		result = append(result, availability)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return result, nil
}

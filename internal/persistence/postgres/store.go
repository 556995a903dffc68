// Package postgres implements the meeting store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/meeting-coordinator/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

// Store implements persistence.MeetingRepository and persistence.AvailabilityRepository.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures Store.
type StoreOption func(*Store) error

// WithSchema sets the DB schema used by the store (default: "public").
func WithSchema(schema string) StoreOption {
	return func(s *Store) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("postgres: schema must not be empty")
		}
		s.schema = schema
		return nil
	}
}

// Open builds a pgxpool from databaseURL and validates connectivity.
func Open(ctx context.Context, databaseURL string, opts ...StoreOption) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := ping(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	store, err := NewStore(pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool, opts ...StoreOption) (*Store, error) {
	st := &Store{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("postgres: pool is required")
	}
	return st, nil
}

func (s *Store) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func ping(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := strings.NewReplacer(
		"{{schema}}", pgx.Identifier{s.schema}.Sanitize(),
		"{{meetings}}", s.table("meetings"),
		"{{availabilities}}", s.table("availabilities"),
	).Replace(schemaSQL)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateMeeting inserts a new meeting row.
func (s *Store) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" {
		return persistence.ErrConstraintViolation
	}
	slots, err := json.Marshal(meeting.TimeSlots)
	if err != nil {
		return fmt.Errorf("encode time slots: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table("meetings")+` (
			id, title, description, time_slots, deadline, creator_uid, status,
			confirmed_date_time, confirmed_reason, ai_suggestions_remaining, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, meeting.ID, meeting.Title, meeting.Description, slots, meeting.Deadline, meeting.CreatorUID, meeting.Status,
		meeting.ConfirmedDateTime, meeting.ConfirmedReason, meeting.AISuggestionsRemaining, meeting.CreatedAt, meeting.UpdatedAt)
	return mapError(err)
}

// GetMeeting loads a meeting row by ID.
func (s *Store) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	return s.getMeeting(ctx, s.pool, id, false)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) getMeeting(ctx context.Context, q queryRower, id string, forUpdate bool) (persistence.Meeting, error) {
	query := `
		SELECT
			id, title, description, time_slots, deadline, creator_uid, status,
			confirmed_date_time, confirmed_reason, ai_suggestions_remaining, created_at, updated_at
		FROM ` + s.table("meetings") + `
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		meeting persistence.Meeting
		slots   []byte
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&meeting.ID,
		&meeting.Title,
		&meeting.Description,
		&slots,
		&meeting.Deadline,
		&meeting.CreatorUID,
		&meeting.Status,
		&meeting.ConfirmedDateTime,
		&meeting.ConfirmedReason,
		&meeting.AISuggestionsRemaining,
		&meeting.CreatedAt,
		&meeting.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Meeting{}, err
	}
	if err := json.Unmarshal(slots, &meeting.TimeSlots); err != nil {
		return persistence.Meeting{}, fmt.Errorf("decode time slots: %w", err)
	}
	return meeting, nil
}

// UpdateMeeting writes only the columns set in patch. A status change locks the row and checks
// the remaining quota first.
func (s *Store) UpdateMeeting(ctx context.Context, id string, patch persistence.MeetingPatch) error {
	sets := []string{"updated_at = $2"}
	args := []any{id, patch.UpdatedAt}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Deadline != nil {
		set("deadline", *patch.Deadline)
	}
	if change := patch.Status; change != nil {
		set("status", change.Status)
		set("confirmed_date_time", change.ConfirmedDateTime)
		set("confirmed_reason", change.ConfirmedReason)
	}
	query := `UPDATE ` + s.table("meetings") + ` SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := s.getMeeting(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if change := patch.Status; change != nil && current.AISuggestionsRemaining != change.ExpectedRemaining {
			return persistence.ErrConflict
		}
		_, err = tx.Exec(ctx, query, args...)
		return mapError(err)
	})
}

// ConfirmMeeting locks the meeting row, checks the remaining quota and applies the confirmation.
func (s *Store) ConfirmMeeting(ctx context.Context, id string, expectedRemaining int, confirmation persistence.Confirmation) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := s.getMeeting(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current.AISuggestionsRemaining != expectedRemaining || current.AISuggestionsRemaining <= 0 {
			return persistence.ErrConflict
		}

		_, err = tx.Exec(ctx, `
			UPDATE `+s.table("meetings")+`
			SET status = 'confirmed',
			    confirmed_date_time = $2,
			    confirmed_reason = $3,
			    ai_suggestions_remaining = ai_suggestions_remaining - 1,
			    updated_at = $4
			WHERE id = $1
		`, id, confirmation.DateTime, confirmation.Reason, confirmation.UpdatedAt)
		return mapError(err)
	})
}

// UpsertAvailability inserts or replaces the record keyed by meeting and user.
func (s *Store) UpsertAvailability(ctx context.Context, availability persistence.Availability) error {
	if availability.MeetingID == "" || availability.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	schedule, err := json.Marshal(availability.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table("availabilities")+` (meeting_id, user_id, user_name, schedule, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			schedule = EXCLUDED.schedule,
			submitted_at = EXCLUDED.submitted_at
	`, availability.MeetingID, availability.UserID, availability.UserName, schedule, availability.SubmittedAt)
	return mapError(err)
}

// ListAvailabilities returns every record for a meeting ordered by submission time.
func (s *Store) ListAvailabilities(ctx context.Context, meetingID string) ([]persistence.Availability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT meeting_id, user_id, user_name, schedule, submitted_at
		FROM `+s.table("availabilities")+`
		WHERE meeting_id = $1
		ORDER BY submitted_at, user_id
	`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []persistence.Availability
	for rows.Next() {
		var (
			availability persistence.Availability
			schedule     []byte
		)
		if err := rows.Scan(
			&availability.MeetingID,
			&availability.UserID,
			&availability.UserName,
			&schedule,
			&availability.SubmittedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(schedule, &availability.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
		result = append(result, availability)
	}
	return result, rows.Err()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		case "23503":
			return fmt.Errorf("%w: %v", persistence.ErrNotFound, err)
		case "23502", "23514":
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		}
	}
	return err
}

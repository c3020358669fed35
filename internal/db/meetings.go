package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Meeting is the read model the backend pushes for phase classification.
type Meeting struct {
	ID              uuid.UUID
	UnitID          uuid.UUID
	Title           string
	ScheduledAt     time.Time
	DurationMinutes int
	UpdatedAt       time.Time
}

const upsertMeetingSQL = `
INSERT INTO meetings (id, unit_id, title, scheduled_at, duration_minutes, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	unit_id = EXCLUDED.unit_id,
	title = EXCLUDED.title,
	scheduled_at = EXCLUDED.scheduled_at,
	duration_minutes = EXCLUDED.duration_minutes,
	updated_at = EXCLUDED.updated_at`

func (s *Store) UpsertMeeting(ctx context.Context, meeting Meeting) error {
	_, err := s.Pool.Exec(ctx, upsertMeetingSQL,
		pgUUID(meeting.ID),
		pgUUID(meeting.UnitID),
		meeting.Title,
		pgTime(meeting.ScheduledAt),
		meeting.DurationMinutes,
		nowPgTime(),
	)
	return err
}

const getMeetingSQL = `
SELECT id, unit_id, title, scheduled_at, duration_minutes, updated_at
FROM meetings WHERE id = $1`

func (s *Store) GetMeeting(ctx context.Context, id uuid.UUID) (Meeting, error) {
	row := s.Pool.QueryRow(ctx, getMeetingSQL, pgUUID(id))
	return scanMeeting(row)
}

const listUnitMeetingsSQL = `
SELECT id, unit_id, title, scheduled_at, duration_minutes, updated_at
FROM meetings WHERE unit_id = $1
ORDER BY scheduled_at DESC
LIMIT $2`

func (s *Store) ListUnitMeetings(ctx context.Context, unitID uuid.UUID, limit int32) ([]Meeting, error) {
	rows, err := s.Pool.Query(ctx, listUnitMeetingsSQL, pgUUID(unitID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

func scanMeeting(row pgx.Row) (Meeting, error) {
	var (
		id          pgtype.UUID
		unitID      pgtype.UUID
		meeting     Meeting
		scheduledAt pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(&id, &unitID, &meeting.Title, &scheduledAt, &meeting.DurationMinutes, &updatedAt); err != nil {
		return Meeting{}, err
	}
	meeting.ID = uuid.UUID(id.Bytes)
	meeting.UnitID = uuid.UUID(unitID.Bytes)
	meeting.ScheduledAt = scheduledAt.Time
	meeting.UpdatedAt = updatedAt.Time
	return meeting, nil
}

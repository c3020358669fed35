package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// RunRecord is the audit row persisted after each bulk credential run.
type RunRecord struct {
	ID        uuid.UUID
	UnitName  string
	Mode      string
	Requested int
	Succeeded int
	Failed    int
	CreatedAt time.Time
}

const insertRunRecordSQL = `
INSERT INTO credential_runs (id, unit_name, mode, requested, succeeded, failed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *Store) InsertRunRecord(ctx context.Context, record RunRecord) error {
	_, err := s.Pool.Exec(ctx, insertRunRecordSQL,
		pgUUID(record.ID),
		record.UnitName,
		record.Mode,
		record.Requested,
		record.Succeeded,
		record.Failed,
		pgTime(record.CreatedAt),
	)
	return err
}

const listRecentRunsSQL = `
SELECT id, unit_name, mode, requested, succeeded, failed, created_at
FROM credential_runs
ORDER BY created_at DESC
LIMIT $1`

func (s *Store) ListRecentRuns(ctx context.Context, limit int32) ([]RunRecord, error) {
	rows, err := s.Pool.Query(ctx, listRecentRunsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
			record    RunRecord
		)
		if err := rows.Scan(&id, &record.UnitName, &record.Mode, &record.Requested, &record.Succeeded, &record.Failed, &createdAt); err != nil {
			return nil, err
		}
		record.ID = uuid.UUID(id.Bytes)
		record.CreatedAt = createdAt.Time
		records = append(records, record)
	}
	return records, rows.Err()
}

const deleteRunsBeforeSQL = `DELETE FROM credential_runs WHERE created_at < $1`

func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, deleteRunsBeforeSQL, pgTime(cutoff))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func nowPgTime() pgtype.Timestamptz {
	return pgTime(time.Now())
}

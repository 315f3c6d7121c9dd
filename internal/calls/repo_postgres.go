package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists call sessions.
//
// NOTE: assumes the following table exists:
//
//	CREATE TABLE calls (
//	  id             TEXT PRIMARY KEY,
//	  user_id        TEXT NOT NULL,
//	  call_id        TEXT NOT NULL UNIQUE,
//	  direction      TEXT NOT NULL,
//	  from_number    TEXT NOT NULL,
//	  to_number      TEXT NOT NULL,
//	  status         TEXT NOT NULL,
//	  start_time     TIMESTAMPTZ NOT NULL,
//	  end_time       TIMESTAMPTZ,
//	  duration       INT,
//	  telnyx_call_id TEXT
//	);
//	CREATE INDEX calls_user_started_idx ON calls (user_id, start_time DESC);
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const sessionColumns = `id, user_id, call_id, direction, from_number, to_number, status, start_time, end_time, duration, telnyx_call_id`

func scanSession(row *sql.Row) (CallSession, error) {
	var (
		s        CallSession
		endTime  sql.NullTime
		duration sql.NullInt64
		provID   sql.NullString
	)
	err := row.Scan(
		&s.ID,
		&s.OwnerUserID,
		&s.ExternalCallID,
		&s.Direction,
		&s.FromNumber,
		&s.ToNumber,
		&s.Status,
		&s.StartedAt,
		&endTime,
		&duration,
		&provID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndedAt = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationSeconds = &d
	}
	if provID.Valid {
		s.ProviderCallID = provID.String
	}
	return s, nil
}

func (p *PostgresStore) Create(ctx context.Context, s CallSession) (CallSession, error) {
	if s.ExternalCallID == "" || s.OwnerUserID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	s.ID = uuid.NewString()
	s.StartedAt = p.now()
	s.EndedAt = nil
	s.DurationSeconds = nil

	const q = `
INSERT INTO calls (id, user_id, call_id, direction, from_number, to_number, status, start_time, telnyx_call_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''))
`
	_, err := p.db.ExecContext(ctx, q,
		s.ID,
		s.OwnerUserID,
		s.ExternalCallID,
		s.Direction,
		s.FromNumber,
		s.ToNumber,
		s.Status,
		s.StartedAt,
		s.ProviderCallID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return CallSession{}, ErrConflict
		}
		return CallSession{}, err
	}
	return s, nil
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (CallSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM calls WHERE id = $1`
	return scanSession(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresStore) GetByExternalID(ctx context.Context, externalID string) (CallSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM calls WHERE call_id = $1`
	return scanSession(p.db.QueryRowContext(ctx, q, externalID))
}

func (p *PostgresStore) GetByProviderID(ctx context.Context, providerID string) (CallSession, error) {
	if providerID == "" {
		return CallSession{}, ErrNotFound
	}
	const q = `SELECT ` + sessionColumns + ` FROM calls WHERE telnyx_call_id = $1`
	return scanSession(p.db.QueryRowContext(ctx, q, providerID))
}

func (p *PostgresStore) ListByOwner(ctx context.Context, userID string) ([]CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM calls
WHERE user_id = $1
ORDER BY start_time DESC, id DESC
`
	rows, err := p.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallSession, 0)
	for rows.Next() {
		var (
			s        CallSession
			endTime  sql.NullTime
			duration sql.NullInt64
			provID   sql.NullString
		)
		if err := rows.Scan(
			&s.ID,
			&s.OwnerUserID,
			&s.ExternalCallID,
			&s.Direction,
			&s.FromNumber,
			&s.ToNumber,
			&s.Status,
			&s.StartedAt,
			&endTime,
			&duration,
			&provID,
		); err != nil {
			return nil, err
		}
		if endTime.Valid {
			t := endTime.Time
			s.EndedAt = &t
		}
		if duration.Valid {
			d := int(duration.Int64)
			s.DurationSeconds = &d
		}
		if provID.Valid {
			s.ProviderCallID = provID.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, id string, f UpdateFields) (CallSession, error) {
	// Shallow merge in SQL; telnyx_call_id uses COALESCE so an existing
	// provider id is never overwritten.
	const q = `
UPDATE calls
SET status         = COALESCE($2, status),
    telnyx_call_id = COALESCE(telnyx_call_id, NULLIF($3, '')),
    end_time       = COALESCE($4, end_time),
    duration       = COALESCE($5, duration)
WHERE id = $1
RETURNING ` + sessionColumns

	var (
		status   sql.NullString
		provID   string
		endTime  sql.NullTime
		duration sql.NullInt64
	)
	if f.Status != nil {
		status = sql.NullString{String: string(*f.Status), Valid: true}
	}
	if f.ProviderCallID != nil {
		provID = *f.ProviderCallID
	}
	if f.EndedAt != nil {
		endTime = sql.NullTime{Time: *f.EndedAt, Valid: true}
	}
	if f.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: int64(*f.DurationSeconds), Valid: true}
	}

	return scanSession(p.db.QueryRowContext(ctx, q, id, status, provID, endTime, duration))
}

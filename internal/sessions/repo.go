package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/schedule"
)

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresTxManager opens read-committed transactions on a pool.
type PostgresTxManager struct {
	db *sql.DB
}

func NewPostgresTxManager(db *sql.DB) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

func (m *PostgresTxManager) Repos() TxRepositories {
	return TxRepositories{
		Sessions:  NewSessionPostgresRepository(m.db),
		Schedules: NewSchedulePostgresRepository(m.db),
	}
}

func (m *PostgresTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	repos := TxRepositories{
		Sessions:  NewSessionPostgresRepository(tx),
		Schedules: NewSchedulePostgresRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}

	return tx.Commit()
}

type SessionPostgresRepository struct {
	execer Execer
}

func NewSessionPostgresRepository(execer Execer) *SessionPostgresRepository {
	return &SessionPostgresRepository{execer: execer}
}

const sessionColumns = `id, class_id, start_time, end_time, status, meeting_id`

func scanSession(row interface{ Scan(dest ...any) error }) (Session, error) {
	var s Session
	var meetingID sql.NullString
	if err := row.Scan(&s.ID, &s.ClassID, &s.StartTime, &s.EndTime, &s.Status, &meetingID); err != nil {
		return Session{}, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	if meetingID.Valid {
		s.MeetingID = meetingID.String
	}
	return s, nil
}

func (r *SessionPostgresRepository) Get(ctx context.Context, id string) (Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(r.execer.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.New(apperr.NotFound, "sessions.Get", "session %s not found", id)
	}
	return s, err
}

func (r *SessionPostgresRepository) ListByClass(ctx context.Context, classID string) ([]Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE class_id = $1 ORDER BY start_time ASC, id ASC`
	return r.list(ctx, query, classID)
}

func (r *SessionPostgresRepository) ListUnprovisioned(ctx context.Context, classID string, from, to time.Time) ([]Session, error) {
	const query = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE meeting_id IS NULL
  AND status = 'scheduled'
  AND start_time > $1 AND start_time <= $2
  AND ($3 = '' OR class_id = $3)
ORDER BY start_time ASC, id ASC
`
	return r.list(ctx, query, from, to, classID)
}

func (r *SessionPostgresRepository) list(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := r.execer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteFuture removes sessions that have not started yet. Sessions that
// started at or before now are never touched.
func (r *SessionPostgresRepository) DeleteFuture(ctx context.Context, classID string, now time.Time) (int, error) {
	const query = `DELETE FROM sessions WHERE class_id = $1 AND start_time > $2`
	res, err := r.execer.ExecContext(ctx, query, classID, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SessionPostgresRepository) Insert(ctx context.Context, sessions []Session) error {
	const query = `
INSERT INTO sessions (id, class_id, start_time, end_time, status, meeting_id, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now())
`
	for _, s := range sessions {
		if _, err := r.execer.ExecContext(ctx, query, s.ID, s.ClassID, s.StartTime.UTC(), s.EndTime.UTC(), s.Status, s.MeetingID); err != nil {
			return err
		}
	}
	return nil
}

func (r *SessionPostgresRepository) SetMeetingID(ctx context.Context, id, meetingID string) (bool, error) {
	const query = `UPDATE sessions SET meeting_id = $2 WHERE id = $1 AND meeting_id IS NULL`
	res, err := r.execer.ExecContext(ctx, query, id, meetingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type SchedulePostgresRepository struct {
	execer Execer
}

func NewSchedulePostgresRepository(execer Execer) *SchedulePostgresRepository {
	return &SchedulePostgresRepository{execer: execer}
}

func (r *SchedulePostgresRepository) Get(ctx context.Context, classID string) (schedule.ClassSchedule, error) {
	const query = `
SELECT class_id, starting_date, timezone, time_slots
FROM class_schedules
WHERE class_id = $1
`
	var c schedule.ClassSchedule
	var starting time.Time
	var slots []byte
	err := r.execer.QueryRowContext(ctx, query, classID).Scan(&c.ClassID, &starting, &c.Timezone, &slots)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.ClassSchedule{}, apperr.New(apperr.NotFound, "schedules.Get", "class %s has no schedule", classID)
	}
	if err != nil {
		return schedule.ClassSchedule{}, err
	}
	c.StartingDate = schedule.DateOf(starting)
	if err := json.Unmarshal(slots, &c.TimeSlots); err != nil {
		return schedule.ClassSchedule{}, err
	}
	return c, nil
}

func (r *SchedulePostgresRepository) Save(ctx context.Context, c schedule.ClassSchedule) error {
	slots, err := json.Marshal(c.TimeSlots)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO class_schedules (class_id, starting_date, timezone, time_slots, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (class_id)
DO UPDATE SET
	starting_date = EXCLUDED.starting_date,
	timezone = EXCLUDED.timezone,
	time_slots = EXCLUDED.time_slots,
	updated_at = now()
`
	_, err = r.execer.ExecContext(ctx, query, c.ClassID, c.StartingDate.In(time.UTC), c.Timezone, slots)
	return err
}

// Lock takes a transaction-scoped advisory lock keyed by class id.
func (r *SchedulePostgresRepository) Lock(ctx context.Context, classID string) error {
	_, err := r.execer.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, classID)
	return err
}

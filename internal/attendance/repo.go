package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"classroom/internal/apperr"
)

const pgForeignKeyViolation = "23503"

// PostgresStore persists keys and records through the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateKey inserts the mapping if the pair has none, then re-reads so a
// concurrent issuer's key wins consistently.
func (s *PostgresStore) CreateKey(ctx context.Context, k CustomerKey) (CustomerKey, error) {
	const op = "attendance.CreateKey"
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_keys (session_id, student_id, customer_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, k.SessionID, k.StudentID, k.Key, k.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return CustomerKey{}, apperr.New(apperr.NotFound, op, "session %s not found", k.SessionID)
		}
		return CustomerKey{}, apperr.Wrap(apperr.Internal, op, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return k, nil
	}

	stored, err := s.GetKey(ctx, k.SessionID, k.StudentID)
	if apperr.Is(err, apperr.NotFound) {
		// the insert lost on the customer_key constraint, not the pair
		return CustomerKey{}, apperr.New(apperr.Conflict, op, "customer key already in use")
	}
	return stored, err
}

func (s *PostgresStore) GetKey(ctx context.Context, sessionID, studentID string) (CustomerKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, student_id, customer_key, created_at
		FROM customer_keys WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	return scanKey(row, "attendance.GetKey")
}

func (s *PostgresStore) ResolveKey(ctx context.Context, key string) (CustomerKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, student_id, customer_key, created_at
		FROM customer_keys WHERE customer_key = $1
	`, key)
	return scanKey(row, "attendance.ResolveKey")
}

func scanKey(row *sql.Row, op string) (CustomerKey, error) {
	var k CustomerKey
	if err := row.Scan(&k.SessionID, &k.StudentID, &k.Key, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CustomerKey{}, apperr.New(apperr.NotFound, op, "customer key not found")
		}
		return CustomerKey{}, apperr.Wrap(apperr.Internal, op, err)
	}
	k.CreatedAt = k.CreatedAt.UTC()
	return k, nil
}

const recordColumns = `session_id, student_id, name, email, join_time, leave_time, join_status, last_joined_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var leave, lastJoined sql.NullTime
	if err := row.Scan(&r.SessionID, &r.StudentID, &r.Name, &r.Email, &r.JoinTime, &leave, &r.JoinStatus, &lastJoined); err != nil {
		return Record{}, err
	}
	r.JoinTime = r.JoinTime.UTC()
	if leave.Valid {
		r.LeaveTime = leave.Time.UTC()
	}
	if lastJoined.Valid {
		r.LastJoinedAt = lastJoined.Time.UTC()
	}
	return r, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Mutate locks the pair's row for the transaction. A missing row is
// inserted with ON CONFLICT DO NOTHING; losing that race means another
// writer inserted first, so the row is locked and fn is applied to it.
func (s *PostgresStore) Mutate(ctx context.Context, sessionID, studentID string, fn MutateFunc) (Record, error) {
	const op = "attendance.Mutate"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, apperr.Wrap(apperr.Internal, op, err)
	}
	rec, err := mutateTx(ctx, tx, sessionID, studentID, fn)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			err = errors.Join(err, rollbackErr)
		}
		return Record{}, apperr.Wrap(apperr.KindOf(err), op, err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, apperr.Wrap(apperr.Internal, op, err)
	}
	return rec, nil
}

func mutateTx(ctx context.Context, tx *sql.Tx, sessionID, studentID string, fn MutateFunc) (Record, error) {
	lock := func() (Record, error) {
		rec, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1 AND student_id = $2 FOR UPDATE`,
			sessionID, studentID))
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, nil
		}
		return rec, err
	}

	cur, err := lock()
	if err != nil {
		return Record{}, err
	}
	if !cur.Exists() {
		next := fn(cur)
		if !next.Exists() {
			return cur, nil
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (session_id, student_id) DO NOTHING
		`, sessionID, studentID, next.Name, next.Email, next.JoinTime, nullTime(next.LeaveTime), next.JoinStatus, nullTime(next.LastJoinedAt))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return Record{}, apperr.New(apperr.NotFound, "attendance.Mutate", "session %s not found", sessionID)
			}
			return Record{}, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			next.SessionID, next.StudentID = sessionID, studentID
			return next, nil
		}
		if cur, err = lock(); err != nil {
			return Record{}, err
		}
	}

	next := fn(cur)
	if !next.Exists() || next == cur {
		return cur, nil
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE attendance_records
		SET name = $3, email = $4, join_time = $5, leave_time = $6, join_status = $7, last_joined_at = $8, updated_at = NOW()
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID, next.Name, next.Email, next.JoinTime, nullTime(next.LeaveTime), next.JoinStatus, nullTime(next.LastJoinedAt))
	if err != nil {
		return Record{}, err
	}
	next.SessionID, next.StudentID = sessionID, studentID
	return next, nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1 ORDER BY student_id`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "attendance.ListBySession", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

package attendance

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/apperr"
)

const (
	lockRecordQuery   = `SELECT session_id, student_id, .* FROM attendance_records WHERE session_id = \$1 AND student_id = \$2 FOR UPDATE`
	insertRecordQuery = `INSERT INTO attendance_records .* ON CONFLICT \(session_id, student_id\) DO NOTHING`
	updateRecordQuery = `UPDATE attendance_records SET .* WHERE session_id = \$1 AND student_id = \$2`
	insertKeyQuery    = `INSERT INTO customer_keys .* ON CONFLICT DO NOTHING`
	selectKeyQuery    = `SELECT session_id, student_id, customer_key, created_at FROM customer_keys WHERE session_id = \$1 AND student_id = \$2`
)

var recordCols = []string{"session_id", "student_id", "name", "email", "join_time", "leave_time", "join_status", "last_joined_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func applyFn(ev Event) MutateFunc {
	return func(cur Record) Record { return Apply(cur, ev) }
}

func TestPostgresMutateInsertsFirstRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRecordQuery).WithArgs("sess-1", "stu-1").WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectExec(insertRecordQuery).
		WithArgs("sess-1", "stu-1", "Ada", "", mins(0), nil, StatusInMeeting, mins(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := s.Mutate(context.Background(), "sess-1", "stu-1", applyFn(Event{Kind: EventJoined, At: mins(0), Name: "Ada"}))
	require.NoError(t, err)
	assert.Equal(t, StatusInMeeting, rec.JoinStatus)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, mins(0), rec.JoinTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutateLosesInsertRace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRecordQuery).WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectExec(insertRecordQuery).WillReturnResult(sqlmock.NewResult(0, 0))
	// the concurrent writer's row is locked and the event applied to it
	mock.ExpectQuery(lockRecordQuery).WillReturnRows(sqlmock.NewRows(recordCols).
		AddRow("sess-1", "stu-1", "Ada", "ada@example.com", mins(0), nil, string(StatusInMeeting), mins(0)))
	mock.ExpectExec(updateRecordQuery).
		WithArgs("sess-1", "stu-1", "Ada", "ada@example.com", mins(0), mins(50), StatusLeftMeeting, mins(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := s.Mutate(context.Background(), "sess-1", "stu-1", applyFn(left(50)))
	require.NoError(t, err)
	assert.Equal(t, StatusLeftMeeting, rec.JoinStatus)
	assert.Equal(t, mins(50), rec.LeaveTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutateSkipsUnchangedRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRecordQuery).WillReturnRows(sqlmock.NewRows(recordCols).
		AddRow("sess-1", "stu-1", "Ada", "", mins(0), mins(50), string(StatusLeftMeeting), mins(0)))
	mock.ExpectCommit()

	rec, err := s.Mutate(context.Background(), "sess-1", "stu-1", applyFn(left(50)))
	require.NoError(t, err)
	assert.Equal(t, StatusLeftMeeting, rec.JoinStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutateUnknownSession(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRecordQuery).WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectExec(insertRecordQuery).WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})
	mock.ExpectRollback()

	_, err := s.Mutate(context.Background(), "gone", "stu-1", applyFn(joined(0)))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateKey(t *testing.T) {
	k := CustomerKey{SessionID: "sess-1", StudentID: "stu-1", Key: "mine", CreatedAt: t0}
	keyCols := []string{"session_id", "student_id", "customer_key", "created_at"}

	t.Run("inserted", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(insertKeyQuery).WithArgs("sess-1", "stu-1", "mine", t0).WillReturnResult(sqlmock.NewResult(0, 1))

		got, err := s.CreateKey(context.Background(), k)
		require.NoError(t, err)
		assert.Equal(t, k, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pair already mapped", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(insertKeyQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectKeyQuery).WithArgs("sess-1", "stu-1").
			WillReturnRows(sqlmock.NewRows(keyCols).AddRow("sess-1", "stu-1", "theirs", t0))

		got, err := s.CreateKey(context.Background(), k)
		require.NoError(t, err)
		assert.Equal(t, "theirs", got.Key)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("key collision", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(insertKeyQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(selectKeyQuery).WillReturnRows(sqlmock.NewRows(keyCols))

		_, err := s.CreateKey(context.Background(), k)
		assert.True(t, apperr.Is(err, apperr.Conflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(insertKeyQuery).WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})

		_, err := s.CreateKey(context.Background(), k)
		assert.True(t, apperr.Is(err, apperr.NotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

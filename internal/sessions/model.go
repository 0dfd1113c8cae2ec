package sessions

import (
	"context"
	"time"

	"classroom/internal/schedule"
)

// Status is the lifecycle state of a session. Only scheduled sessions are
// ever rewritten by this package.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// Session is one concrete, dated meeting of a class.
type Session struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"classId"`
	StartTime time.Time `json:"startTimeUtc"`
	EndTime   time.Time `json:"endTimeUtc"`
	Status    Status    `json:"status"`
	MeetingID string    `json:"meetingId,omitempty"`
}

// SessionRepository persists session occurrences.
type SessionRepository interface {
	Get(ctx context.Context, id string) (Session, error)
	ListByClass(ctx context.Context, classID string) ([]Session, error)
	DeleteFuture(ctx context.Context, classID string, now time.Time) (int, error)
	Insert(ctx context.Context, sessions []Session) error
	// SetMeetingID records a meeting only if none is set yet and reports
	// whether the row changed.
	SetMeetingID(ctx context.Context, id, meetingID string) (bool, error)
	// ListUnprovisioned returns scheduled sessions without a meeting that
	// start in (from, to]. An empty classID means every class.
	ListUnprovisioned(ctx context.Context, classID string, from, to time.Time) ([]Session, error)
}

// ScheduleRepository persists class schedules.
type ScheduleRepository interface {
	Get(ctx context.Context, classID string) (schedule.ClassSchedule, error)
	Save(ctx context.Context, c schedule.ClassSchedule) error
	// Lock serializes writers of one class for the rest of the transaction.
	Lock(ctx context.Context, classID string) error
}

// TxRepositories are repositories bound to one transaction.
type TxRepositories struct {
	Sessions  SessionRepository
	Schedules ScheduleRepository
}

// TxManager runs fn in a transaction: fn's error rolls everything back.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
	// Repos returns repositories outside any transaction, for reads and
	// single-statement writes.
	Repos() TxRepositories
}

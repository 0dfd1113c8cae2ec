package attendance

import (
	"context"
	"time"
)

// JoinStatus is the participant's presence as last observed.
type JoinStatus string

const (
	StatusInMeeting   JoinStatus = "In Meeting"
	StatusLeftMeeting JoinStatus = "Left Meeting"
)

// Record is the single attendance row of a (session, student) pair.
type Record struct {
	SessionID  string     `json:"sessionId"`
	StudentID  string     `json:"studentId"`
	Name       string     `json:"name,omitempty"`
	Email      string     `json:"email,omitempty"`
	JoinTime   time.Time  `json:"joinTime"`
	LeaveTime  time.Time  `json:"leaveTime,omitempty"`
	JoinStatus JoinStatus `json:"joinStatus"`

	// LastJoinedAt is the latest join seen. It separates a rejoin from a
	// re-delivered old join.
	LastJoinedAt time.Time `json:"-"`
}

// Exists reports whether r was loaded from storage rather than zero.
func (r Record) Exists() bool { return r.JoinStatus != "" }

// CustomerKey binds one student to one session for provider attribution.
type CustomerKey struct {
	SessionID string    `json:"sessionId"`
	StudentID string    `json:"studentId"`
	Key       string    `json:"customerKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// MutateFunc computes the next state of a record. cur is the zero Record
// when the pair has none yet. Returning a zero Record leaves storage as is.
type MutateFunc func(cur Record) Record

// Store persists customer keys and attendance records.
type Store interface {
	// CreateKey stores k unless the pair already has a key and returns the
	// stored mapping either way.
	CreateKey(ctx context.Context, k CustomerKey) (CustomerKey, error)
	GetKey(ctx context.Context, sessionID, studentID string) (CustomerKey, error)
	ResolveKey(ctx context.Context, key string) (CustomerKey, error)

	// Mutate runs fn as one atomic read-modify-write on the pair's record.
	Mutate(ctx context.Context, sessionID, studentID string, fn MutateFunc) (Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
}

package notify

import (
	"context"
	"database/sql"
	"sort"
	"sync"
)

// Roster lists the students enrolled in a class.
type Roster interface {
	Enrolled(ctx context.Context, classID string) ([]Recipient, error)
}

// PostgresRoster reads class_enrollments, which is owned by the enrollment
// service.
type PostgresRoster struct {
	db *sql.DB
}

func NewPostgresRoster(db *sql.DB) *PostgresRoster {
	return &PostgresRoster{db: db}
}

func (r *PostgresRoster) Enrolled(ctx context.Context, classID string) ([]Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, COALESCE(name, ''), COALESCE(email, '')
		FROM class_enrollments
		WHERE class_id = $1
		ORDER BY student_id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var rc Recipient
		if err := rows.Scan(&rc.StudentID, &rc.Name, &rc.Email); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// MemoryRoster is a static roster for dev and tests.
type MemoryRoster struct {
	mu      sync.RWMutex
	classes map[string][]Recipient
}

func NewMemoryRoster() *MemoryRoster {
	return &MemoryRoster{classes: make(map[string][]Recipient)}
}

func (r *MemoryRoster) Enroll(classID string, rc Recipient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[classID] = append(r.classes[classID], rc)
	sort.Slice(r.classes[classID], func(i, j int) bool {
		return r.classes[classID][i].StudentID < r.classes[classID][j].StudentID
	})
}

func (r *MemoryRoster) Enrolled(_ context.Context, classID string) ([]Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Recipient(nil), r.classes[classID]...), nil
}

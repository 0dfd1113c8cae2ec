package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/schedule"
)

// MemoryStore is an in-process TxManager for dev and tests. Transactions
// run against a copy of the state that replaces the live state on success.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	sessions  map[string]Session
	schedules map[string]schedule.ClassSchedule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		sessions:  make(map[string]Session),
		schedules: make(map[string]schedule.ClassSchedule),
	}}
}

func (s *memState) clone() *memState {
	out := &memState{
		sessions:  make(map[string]Session, len(s.sessions)),
		schedules: make(map[string]schedule.ClassSchedule, len(s.schedules)),
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.schedules {
		v.TimeSlots = append([]schedule.TimeSlot(nil), v.TimeSlots...)
		out.schedules[k] = v
	}
	return out
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	a := memAccess{state: work}
	if err := fn(ctx, TxRepositories{Sessions: memSessions{a}, Schedules: memSchedules{a}}); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Repos() TxRepositories {
	a := memAccess{store: m}
	return TxRepositories{Sessions: memSessions{a}, Schedules: memSchedules{a}}
}

// memAccess works either on a private transaction copy (state set) or on
// the live store under its lock (store set).
type memAccess struct {
	store *MemoryStore
	state *memState
}

type memSessions struct{ memAccess }

type memSchedules struct{ memAccess }

func (r memAccess) read() (*memState, func()) {
	if r.store == nil {
		return r.state, func() {}
	}
	r.store.mu.RLock()
	return r.store.state, r.store.mu.RUnlock
}

func (r memAccess) write() (*memState, func()) {
	if r.store == nil {
		return r.state, func() {}
	}
	// Live writes wait for running transactions so a commit cannot drop them.
	r.store.txMu.Lock()
	r.store.mu.Lock()
	return r.store.state, func() {
		r.store.mu.Unlock()
		r.store.txMu.Unlock()
	}
}

func (r memSessions) Get(_ context.Context, id string) (Session, error) {
	st, done := r.read()
	defer done()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, apperr.New(apperr.NotFound, "sessions.Get", "session %s not found", id)
	}
	return s, nil
}

func (r memSessions) ListByClass(_ context.Context, classID string) ([]Session, error) {
	st, done := r.read()
	defer done()
	return filterSorted(st, func(s Session) bool { return s.ClassID == classID }), nil
}

func (r memSessions) ListUnprovisioned(_ context.Context, classID string, from, to time.Time) ([]Session, error) {
	st, done := r.read()
	defer done()
	return filterSorted(st, func(s Session) bool {
		return (classID == "" || s.ClassID == classID) &&
			s.MeetingID == "" &&
			s.Status == StatusScheduled &&
			s.StartTime.After(from) && !s.StartTime.After(to)
	}), nil
}

func filterSorted(st *memState, keep func(Session) bool) []Session {
	var out []Session
	for _, s := range st.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memSessions) DeleteFuture(_ context.Context, classID string, now time.Time) (int, error) {
	st, done := r.write()
	defer done()
	n := 0
	for id, s := range st.sessions {
		if s.ClassID == classID && s.StartTime.After(now) {
			delete(st.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r memSessions) Insert(_ context.Context, sessions []Session) error {
	st, done := r.write()
	defer done()
	for _, s := range sessions {
		if _, exists := st.sessions[s.ID]; exists {
			return apperr.New(apperr.Conflict, "sessions.Insert", "session %s already exists", s.ID)
		}
	}
	for _, s := range sessions {
		st.sessions[s.ID] = s
	}
	return nil
}

func (r memSessions) SetMeetingID(_ context.Context, id, meetingID string) (bool, error) {
	st, done := r.write()
	defer done()
	s, ok := st.sessions[id]
	if !ok || s.MeetingID != "" {
		return false, nil
	}
	s.MeetingID = meetingID
	st.sessions[id] = s
	return true, nil
}

func (r memSchedules) Lock(context.Context, string) error { return nil }

func (r memSchedules) Save(_ context.Context, c schedule.ClassSchedule) error {
	st, done := r.write()
	defer done()
	c.TimeSlots = append([]schedule.TimeSlot(nil), c.TimeSlots...)
	st.schedules[c.ClassID] = c
	return nil
}

func (r memSchedules) Get(_ context.Context, classID string) (schedule.ClassSchedule, error) {
	st, done := r.read()
	defer done()
	c, ok := st.schedules[classID]
	if !ok {
		return schedule.ClassSchedule{}, apperr.New(apperr.NotFound, "schedules.Get", "class %s has no schedule", classID)
	}
	c.TimeSlots = append([]schedule.TimeSlot(nil), c.TimeSlots...)
	return c, nil
}

package attendance

import (
	"context"
	"sort"
	"sync"

	"classroom/internal/apperr"
)

type pair struct{ session, student string }

// MemoryStore keeps keys and records in process. Mutate holds the lock for
// the whole read-modify-write.
type MemoryStore struct {
	mu      sync.Mutex
	keys    map[pair]CustomerKey
	byKey   map[string]pair
	records map[pair]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys:    make(map[pair]CustomerKey),
		byKey:   make(map[string]pair),
		records: make(map[pair]Record),
	}
}

func (m *MemoryStore) CreateKey(_ context.Context, k CustomerKey) (CustomerKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := pair{k.SessionID, k.StudentID}
	if existing, ok := m.keys[p]; ok {
		return existing, nil
	}
	if _, taken := m.byKey[k.Key]; taken {
		return CustomerKey{}, apperr.New(apperr.Conflict, "attendance.CreateKey", "customer key already in use")
	}
	m.keys[p] = k
	m.byKey[k.Key] = p
	return k, nil
}

func (m *MemoryStore) GetKey(_ context.Context, sessionID, studentID string) (CustomerKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[pair{sessionID, studentID}]
	if !ok {
		return CustomerKey{}, apperr.New(apperr.NotFound, "attendance.GetKey", "no customer key for session %s student %s", sessionID, studentID)
	}
	return k, nil
}

func (m *MemoryStore) ResolveKey(_ context.Context, key string) (CustomerKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byKey[key]
	if !ok {
		return CustomerKey{}, apperr.New(apperr.NotFound, "attendance.ResolveKey", "unknown customer key")
	}
	return m.keys[p], nil
}

func (m *MemoryStore) Mutate(_ context.Context, sessionID, studentID string, fn MutateFunc) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := pair{sessionID, studentID}
	cur := m.records[p]
	next := fn(cur)
	if !next.Exists() {
		return cur, nil
	}
	next.SessionID, next.StudentID = sessionID, studentID
	m.records[p] = next
	return next, nil
}

func (m *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for p, r := range m.records {
		if p.session == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

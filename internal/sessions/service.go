package sessions

import (
	"context"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/schedule"
)

// Service is the entry point used by the HTTP layer.
type Service struct {
	tx         TxManager
	reconciler *Reconciler
	defaultTZ  string
	clock      func() time.Time
}

func NewService(tx TxManager, reconciler *Reconciler, defaultTZ string) *Service {
	return &Service{
		tx:         tx,
		reconciler: reconciler,
		defaultTZ:  defaultTZ,
		clock:      time.Now,
	}
}

// UpdateSchedule replaces the schedule of updated.ClassID. The stored
// schedule is read under the class lock by the reconciler; a class without
// one is treated as moving from an empty schedule.
func (s *Service) UpdateSchedule(ctx context.Context, updated schedule.ClassSchedule) (Result, error) {
	if updated.ClassID == "" {
		return Result{}, apperr.New(apperr.Validation, "sessions.UpdateSchedule", "class id is required")
	}
	if updated.Timezone == "" {
		updated.Timezone = s.defaultTZ
	}
	empty := schedule.ClassSchedule{ClassID: updated.ClassID, Timezone: updated.Timezone}
	return s.reconciler.Reconcile(ctx, updated.ClassID, empty, updated, s.clock())
}

func (s *Service) GetSchedule(ctx context.Context, classID string) (schedule.ClassSchedule, error) {
	return s.tx.Repos().Schedules.Get(ctx, classID)
}

func (s *Service) ListSessions(ctx context.Context, classID string) ([]Session, error) {
	return s.tx.Repos().Sessions.ListByClass(ctx, classID)
}

func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	return s.tx.Repos().Sessions.Get(ctx, id)
}

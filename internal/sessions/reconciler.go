package sessions

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/queue"
	"classroom/internal/schedule"
)

const (
	provisionPathImminent = "imminent"

	updateFailedMsg = "schedule update failed, no changes applied"
)

// Result describes what a reconciliation did. Degraded means the schedule
// was updated but the background job could not be queued.
type Result struct {
	Change                    schedule.ChangeKind `json:"change"`
	Recreated                 bool                `json:"recreated"`
	NextSessionMeetingCreated bool                `json:"nextSessionMeetingCreated"`
	Deleted                   int                 `json:"deleted"`
	Created                   int                 `json:"created"`
	Receipt                   *queue.Receipt      `json:"receipt,omitempty"`
	Degraded                  bool                `json:"degraded"`
	Warning                   string              `json:"warning,omitempty"`
}

// Reconciler replaces a class's future sessions when its schedule changes.
// It is the only writer of session rows.
type Reconciler struct {
	tx          TxManager
	provisioner *Provisioner
	dispatcher  queue.Dispatcher
	policy      Policy
	log         *slog.Logger
	newID       func() string
}

func NewReconciler(tx TxManager, provisioner *Provisioner, dispatcher queue.Dispatcher, policy Policy, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tx:          tx,
		provisioner: provisioner,
		dispatcher:  dispatcher,
		policy:      policy,
		log:         logger,
		newID:       uuid.NewString,
	}
}

// Reconcile moves classID to updated as of now.
//
// old is the schedule the caller last saw. Under the class lock the stored
// schedule, when there is one, replaces it, so concurrent updates are
// compared against what was actually committed. Unchanged schedules are a
// no-op. Otherwise sessions starting after now are deleted, the horizon is
// regenerated from updated and the schedule is saved, all in one
// transaction; any failure there leaves the class untouched. The next
// session is then provisioned if it is imminent (failure only logged) and
// a job is queued for the remaining work (failure reported as Degraded).
func (r *Reconciler) Reconcile(ctx context.Context, classID string, old, updated schedule.ClassSchedule, now time.Time) (Result, error) {
	const op = "sessions.Reconcile"
	updated.ClassID = classID
	now = now.UTC()

	var (
		change  schedule.ChangeKind
		created []Session
		deleted int
	)
	err := r.tx.WithTx(ctx, func(ctx context.Context, repos TxRepositories) error {
		if err := repos.Schedules.Lock(ctx, classID); err != nil {
			return err
		}
		stored, err := repos.Schedules.Get(ctx, classID)
		switch {
		case err == nil:
			old = stored
		case !apperr.Is(err, apperr.NotFound):
			return err
		}

		if change = schedule.Diff(old, updated); change == schedule.ChangeNone {
			return nil
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		loc := time.UTC
		if updated.Timezone != "" {
			if loc, err = schedule.LoadZone(updated.Timezone); err != nil {
				return err
			}
		}

		if deleted, err = repos.Sessions.DeleteFuture(ctx, classID, now); err != nil {
			return err
		}
		horizon := r.policy.HorizonEnd(now, updated.StartingDate, loc)
		occurrences, err := schedule.GenerateSchedule(updated, horizon)
		if err != nil {
			return err
		}
		created = r.materialize(classID, occurrences, now)
		if err := repos.Sessions.Insert(ctx, created); err != nil {
			return err
		}
		return repos.Schedules.Save(ctx, updated)
	})
	if err != nil {
		metrics.Reconciles.WithLabelValues("failed").Inc()
		if !apperr.Is(err, apperr.Validation) {
			r.log.ErrorContext(ctx, updateFailedMsg, slog.String("class_id", classID), slog.Any("error", err))
		}
		return Result{}, &apperr.Error{Kind: apperr.KindOf(err), Op: op, Msg: updateFailedMsg, Err: err}
	}
	if change == schedule.ChangeNone {
		metrics.Reconciles.WithLabelValues("noop").Inc()
		return Result{Change: change}, nil
	}
	metrics.SessionsDeleted.Add(float64(deleted))
	metrics.SessionsGenerated.Add(float64(len(created)))

	res := Result{Change: change, Recreated: true, Deleted: deleted, Created: len(created)}
	res.NextSessionMeetingCreated = r.provisionImminent(ctx, created, now)

	receipt, err := r.dispatch(ctx, classID, old, updated, now)
	if err != nil {
		metrics.Reconciles.WithLabelValues("degraded").Inc()
		res.Degraded = true
		res.Warning = "schedule updated, but background processing could not be queued: " + err.Error()
		r.log.ErrorContext(ctx, "schedule change job not queued",
			slog.String("class_id", classID), slog.Any("error", err))
		return res, nil
	}
	res.Receipt = &receipt
	metrics.Reconciles.WithLabelValues("recreated").Inc()

	r.log.InfoContext(ctx, "schedule reconciled",
		slog.String("class_id", classID),
		slog.String("change", change.String()),
		slog.Int("deleted", deleted),
		slog.Int("created", len(created)),
		slog.Bool("next_meeting", res.NextSessionMeetingCreated),
		slog.String("message_id", receipt.MessageID))
	return res, nil
}

func (r *Reconciler) materialize(classID string, occurrences []schedule.Occurrence, now time.Time) []Session {
	out := make([]Session, 0, len(occurrences))
	for _, o := range occurrences {
		if !o.StartUTC.After(now) {
			continue
		}
		out = append(out, Session{
			ID:        r.newID(),
			ClassID:   classID,
			StartTime: o.StartUTC,
			EndTime:   o.EndUTC,
			Status:    StatusScheduled,
		})
	}
	return out
}

// provisionImminent makes the nearest session joinable right away when it
// starts within the imminent window.
func (r *Reconciler) provisionImminent(ctx context.Context, created []Session, now time.Time) bool {
	if len(created) == 0 || r.provisioner == nil {
		return false
	}
	next := created[0]
	if next.StartTime.Sub(now) > r.policy.ImminentWindow {
		return false
	}

	timeout := r.policy.ProvisionTimeout
	if timeout <= 0 {
		timeout = DefaultPolicy().ProvisionTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := r.provisioner.Provision(pctx, next, provisionPathImminent); err != nil {
		r.log.WarnContext(ctx, "imminent session not provisioned, background path will retry",
			slog.String("session_id", next.ID),
			slog.String("class_id", next.ClassID),
			slog.Any("error", err))
		return false
	}
	return true
}

func (r *Reconciler) dispatch(ctx context.Context, classID string, old, updated schedule.ClassSchedule, now time.Time) (queue.Receipt, error) {
	job := queue.ScheduleChangeJob{
		ClassID:         classID,
		OldTimeSlots:    old.TimeSlots,
		NewTimeSlots:    updated.Normalized().TimeSlots,
		StartingDate:    old.StartingDate,
		NewStartingDate: updated.StartingDate,
		Timezone:        updated.Timezone,
		Operation:       queue.OperationRecreateSessionsAndNotify,
		RequestedAt:     now,
	}
	if old.StartingDate.IsZero() {
		job.StartingDate = updated.StartingDate
	}
	body, err := json.Marshal(job)
	if err != nil {
		return queue.Receipt{}, err
	}
	receipt, err := queue.PublishWithRetry(ctx, r.dispatcher, r.policy.PublishAttempts, r.policy.PublishBackoff,
		queue.ScheduleChangeURL, body, r.policy.JobRetries)
	if err != nil {
		metrics.DispatchPublishes.WithLabelValues("error").Inc()
		return queue.Receipt{}, err
	}
	metrics.DispatchPublishes.WithLabelValues("ok").Inc()
	return receipt, nil
}

package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/notify"
	"classroom/internal/queue"
	"classroom/internal/schedule"
	"classroom/internal/sessions"
)

const provisionPathBackground = "background"

// Handler processes one envelope. Returned errors are retried by the
// consumer unless they are apperr.Validation.
type Handler interface {
	Handle(ctx context.Context, env queue.Envelope) error
}

// ScheduleChangeHandler finishes the work a reconciliation left for the
// background: meetings for the remaining sessions and student emails.
type ScheduleChangeHandler struct {
	provisioner *sessions.Provisioner
	roster      notify.Roster
	notifier    notify.Notifier
	dedup       notify.Deduper
	ahead       time.Duration
	log         *slog.Logger
	clock       func() time.Time
}

func NewScheduleChangeHandler(p *sessions.Provisioner, roster notify.Roster, notifier notify.Notifier, dedup notify.Deduper, ahead time.Duration, logger *slog.Logger) *ScheduleChangeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if ahead <= 0 {
		ahead = 2 * 365 * 24 * time.Hour
	}
	return &ScheduleChangeHandler{
		provisioner: p,
		roster:      roster,
		notifier:    notifier,
		dedup:       dedup,
		ahead:       ahead,
		log:         logger,
		clock:       time.Now,
	}
}

func (h *ScheduleChangeHandler) Handle(ctx context.Context, env queue.Envelope) error {
	const op = "jobs.ScheduleChange"
	if env.URL != queue.ScheduleChangeURL {
		return apperr.New(apperr.Validation, op, "no handler for %s", env.URL)
	}
	var job queue.ScheduleChangeJob
	if err := json.Unmarshal(env.Body, &job); err != nil {
		return apperr.Wrap(apperr.Validation, op, err)
	}
	if job.ClassID == "" || job.Operation != queue.OperationRecreateSessionsAndNotify {
		return apperr.New(apperr.Validation, op, "malformed job %s", env.ID)
	}

	now := h.clock().UTC()
	report, provisionErr := h.provisioner.ProvisionPending(ctx, job.ClassID, now, now.Add(h.ahead), provisionPathBackground)
	notifyErr := h.notifyStudents(ctx, job)

	h.log.InfoContext(ctx, "schedule change processed",
		slog.String("class_id", job.ClassID),
		slog.String("message_id", env.ID),
		slog.Int("attempt", env.Attempt),
		slog.Int("provisioned", report.Provisioned),
		slog.Int("provision_failed", report.Failed))
	return errors.Join(provisionErr, notifyErr)
}

func (h *ScheduleChangeHandler) notifyStudents(ctx context.Context, job queue.ScheduleChangeJob) error {
	recipients, err := h.roster.Enrolled(ctx, job.ClassID)
	if err != nil {
		return err
	}
	digest := slotDigest(job)
	msg := scheduleChangeMessage(job)

	var errs []error
	for _, rc := range recipients {
		key := job.ClassID + ":" + digest + ":" + rc.StudentID
		first, err := h.dedup.FirstSeen(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !first {
			metrics.Notifications.WithLabelValues("deduped").Inc()
			continue
		}

		msg.To = rc
		if err := h.notifier.Notify(ctx, msg); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			if apperr.Is(err, apperr.Validation) {
				h.log.WarnContext(ctx, "student not notifiable", slog.String("student_id", rc.StudentID), slog.Any("error", err))
				continue
			}
			if relErr := h.dedup.Release(ctx, key); relErr != nil {
				err = errors.Join(err, relErr)
			}
			errs = append(errs, err)
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
	}
	return errors.Join(errs...)
}

// slotDigest identifies the schedule version a notification announces.
func slotDigest(job queue.ScheduleChangeJob) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", job.NewStartingDate, job.Timezone)
	for _, s := range job.NewTimeSlots {
		fmt.Fprintf(h, "%s %s-%s %s;", s.DayOfWeek, s.StartTime, s.EndTime, s.Timezone)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func scheduleChangeMessage(job queue.ScheduleChangeJob) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "The schedule of class %s has changed.\n\n", job.ClassID)
	fmt.Fprintf(&b, "Starting %s, sessions take place:\n", job.NewStartingDate)
	for _, s := range job.NewTimeSlots {
		fmt.Fprintf(&b, "  %s %s-%s (%s)\n", weekdayTitle(s.DayOfWeek), s.StartTime, s.EndTime, s.Timezone)
	}
	b.WriteString("\nSessions that already took place are unchanged.\n")
	return notify.Message{
		Subject: "Class schedule updated",
		Text:    b.String(),
	}
}

func weekdayTitle(d schedule.Weekday) string {
	s := d.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

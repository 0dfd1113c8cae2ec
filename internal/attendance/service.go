package attendance

import (
	"context"
	"log/slog"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
)

// Outcome reports what a meeting event did.
type Outcome struct {
	Record  Record `json:"record"`
	Ignored bool   `json:"ignored"`
}

// Correlator attributes participant events to (session, student) pairs and
// is the only writer of attendance records.
type Correlator struct {
	store    Store
	sessions SessionLookup
	log      *slog.Logger
}

func NewCorrelator(store Store, lookup SessionLookup, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{store: store, sessions: lookup, log: logger}
}

// OnMeetingEvent applies ev to the pair customerKey was issued for.
// Unknown event kinds are ignored; unknown keys return a NotFound error and
// write nothing.
func (c *Correlator) OnMeetingEvent(ctx context.Context, customerKey string, ev Event) (Outcome, error) {
	const op = "attendance.OnMeetingEvent"
	kind := ev.Kind.String()
	if ev.Kind == EventUnknown {
		metrics.WebhookEvents.WithLabelValues(kind, "ignored").Inc()
		return Outcome{Ignored: true}, nil
	}
	if customerKey == "" {
		metrics.WebhookEvents.WithLabelValues(kind, "unknown_key").Inc()
		return Outcome{}, apperr.New(apperr.NotFound, op, "event has no customer key")
	}

	mapping, err := c.store.ResolveKey(ctx, customerKey)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			metrics.WebhookEvents.WithLabelValues(kind, "unknown_key").Inc()
		} else {
			metrics.WebhookEvents.WithLabelValues(kind, "error").Inc()
		}
		return Outcome{}, err
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	rec, err := c.store.Mutate(ctx, mapping.SessionID, mapping.StudentID, func(cur Record) Record {
		return Apply(cur, ev)
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(kind, "error").Inc()
		return Outcome{}, err
	}
	metrics.WebhookEvents.WithLabelValues(kind, "applied").Inc()

	c.log.InfoContext(ctx, "attendance updated",
		slog.String("session_id", rec.SessionID),
		slog.String("student_id", rec.StudentID),
		slog.String("event", kind),
		slog.String("status", string(rec.JoinStatus)))
	return Outcome{Record: rec}, nil
}

// MarkPresent records a student as present without a provider event. An
// existing record for the pair is returned unchanged.
func (c *Correlator) MarkPresent(ctx context.Context, sessionID, studentID, name, email string, now time.Time) (Record, error) {
	if sessionID == "" || studentID == "" {
		return Record{}, apperr.New(apperr.Validation, "attendance.MarkPresent", "session id and student id are required")
	}
	if _, err := c.sessions.GetSession(ctx, sessionID); err != nil {
		return Record{}, err
	}
	now = now.UTC()
	return c.store.Mutate(ctx, sessionID, studentID, func(cur Record) Record {
		if cur.Exists() {
			return cur
		}
		return Record{
			Name:         name,
			Email:        email,
			JoinTime:     now,
			LeaveTime:    now,
			LastJoinedAt: now,
			JoinStatus:   StatusInMeeting,
		}
	})
}

func (c *Correlator) List(ctx context.Context, sessionID string) ([]Record, error) {
	return c.store.ListBySession(ctx, sessionID)
}

package sessions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"classroom/internal/apperr"
	"classroom/internal/meeting"
	"classroom/internal/metrics"
)

// Provisioner attaches provider meetings to sessions.
type Provisioner struct {
	tx       TxManager
	provider meeting.Provider
	log      *slog.Logger
}

func NewProvisioner(tx TxManager, provider meeting.Provider, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{tx: tx, provider: provider, log: logger}
}

// Provision creates a meeting for s unless it already has one. If another
// writer stored a meeting first, that meeting wins and is returned.
func (p *Provisioner) Provision(ctx context.Context, s Session, path string) (string, error) {
	if s.MeetingID != "" {
		return s.MeetingID, nil
	}
	meetingID, err := p.provider.CreateMeeting(ctx, s.ID)
	if err != nil {
		metrics.MeetingProvisions.WithLabelValues(path, "error").Inc()
		return "", err
	}

	repo := p.tx.Repos().Sessions
	changed, err := repo.SetMeetingID(ctx, s.ID, meetingID)
	if err != nil {
		metrics.MeetingProvisions.WithLabelValues(path, "error").Inc()
		return "", err
	}
	if !changed {
		current, err := repo.Get(ctx, s.ID)
		if err != nil {
			return "", err
		}
		p.log.WarnContext(ctx, "meeting already provisioned, discarding new one",
			slog.String("session_id", s.ID),
			slog.String("kept", current.MeetingID),
			slog.String("discarded", meetingID))
		metrics.MeetingProvisions.WithLabelValues(path, "raced").Inc()
		return current.MeetingID, nil
	}
	metrics.MeetingProvisions.WithLabelValues(path, "ok").Inc()
	return meetingID, nil
}

// Report summarizes a batch provisioning run.
type Report struct {
	Provisioned int
	Failed      int
}

// ProvisionPending provisions every unprovisioned scheduled session of
// classID starting in (from, to]. An empty classID sweeps all classes.
// Failures do not stop the batch; they are returned joined so the caller
// can retry the whole run.
func (p *Provisioner) ProvisionPending(ctx context.Context, classID string, from, to time.Time, path string) (Report, error) {
	pending, err := p.tx.Repos().Sessions.ListUnprovisioned(ctx, classID, from, to)
	if err != nil {
		return Report{}, err
	}

	var report Report
	var errs []error
	for _, s := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := p.Provision(ctx, s, path); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				continue
			}
			report.Failed++
			errs = append(errs, err)
			p.log.WarnContext(ctx, "meeting provisioning failed",
				slog.String("session_id", s.ID),
				slog.String("class_id", s.ClassID),
				slog.Any("error", err))
			continue
		}
		report.Provisioned++
	}
	if len(errs) > 0 {
		return report, apperr.Wrap(apperr.TransientProvider, "sessions.ProvisionPending", errors.Join(errs...))
	}
	return report, nil
}

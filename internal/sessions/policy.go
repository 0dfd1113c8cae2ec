package sessions

import (
	"time"

	"classroom/internal/schedule"
)

// HorizonMode picks how far ahead sessions are materialized.
type HorizonMode string

const (
	// HorizonYearEnd generates through December 31 of the current year.
	HorizonYearEnd HorizonMode = "year_end"
	// HorizonRolling generates a fixed window ahead of now.
	HorizonRolling HorizonMode = "rolling"
)

// Policy holds the operational knobs of reconciliation.
type Policy struct {
	Horizon          HorizonMode
	RollingWindow    time.Duration
	ImminentWindow   time.Duration
	ProvisionTimeout time.Duration
	PublishAttempts  int
	PublishBackoff   time.Duration
	JobRetries       int
}

func DefaultPolicy() Policy {
	return Policy{
		Horizon:          HorizonYearEnd,
		RollingWindow:    365 * 24 * time.Hour,
		ImminentWindow:   24 * time.Hour,
		ProvisionTimeout: 5 * time.Second,
		PublishAttempts:  3,
		PublishBackoff:   200 * time.Millisecond,
		JobRetries:       3,
	}
}

// HorizonEnd returns the last date to generate, inclusive. The horizon is
// measured from the later of now and the starting date, so a class that
// starts next year still gets sessions.
func (p Policy) HorizonEnd(now time.Time, starting schedule.Date, loc *time.Location) schedule.Date {
	ref := now.In(loc)
	if start := starting.In(loc); start.After(ref) {
		ref = start
	}
	if p.Horizon == HorizonRolling {
		window := p.RollingWindow
		if window <= 0 {
			window = DefaultPolicy().RollingWindow
		}
		return schedule.DateOf(ref.Add(window))
	}
	return schedule.Date{Year: ref.Year(), Month: time.December, Day: 31}
}

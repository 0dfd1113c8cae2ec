package schedule

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"classroom/internal/apperr"
)

// Occurrence is one concrete meeting produced from a TimeSlot.
type Occurrence struct {
	Weekday  Weekday
	StartUTC time.Time
	EndUTC   time.Time
}

var rruleDays = map[Weekday]rrule.Weekday{
	Monday:    rrule.MO,
	Tuesday:   rrule.TU,
	Wednesday: rrule.WE,
	Thursday:  rrule.TH,
	Friday:    rrule.FR,
	Saturday:  rrule.SA,
	Sunday:    rrule.SU,
}

// Generate expands slots into occurrences between startDate and endDate,
// both inclusive, ordered by start time. Each slot follows a weekly rule
// anchored at startDate. Wall-clock times are resolved in the slot's own
// zone, so a 16:00 slot stays 16:00 local across DST changes.
//
// Slots must already carry a timezone (see ClassSchedule.Normalized). Any
// invalid slot fails the whole call.
func Generate(startDate, endDate Date, slots []TimeSlot) ([]Occurrence, error) {
	resolved := make([]resolvedSlot, 0, len(slots))
	for _, s := range slots {
		r, err := s.resolve()
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}

	out := []Occurrence{}
	if len(resolved) == 0 || endDate.Before(startDate) {
		return out, nil
	}

	// The rule only decides calendar dates, so it runs at UTC noon where no
	// zone offset can move a date across midnight.
	dtstart := time.Date(startDate.Year, startDate.Month, startDate.Day, 12, 0, 0, 0, time.UTC)
	until := time.Date(endDate.Year, endDate.Month, endDate.Day, 12, 0, 0, 0, time.UTC)

	for _, slot := range resolved {
		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Interval:  1,
			Byweekday: []rrule.Weekday{rruleDays[slot.day]},
			Dtstart:   dtstart,
			Until:     until,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, "schedule.Generate", err)
		}
		for _, day := range rule.All() {
			y, m, d := day.Date()
			start := time.Date(y, m, d, slot.start.hour(), slot.start.minute(), 0, 0, slot.loc)
			end := time.Date(y, m, d, slot.end.hour(), slot.end.minute(), 0, 0, slot.loc)
			out = append(out, Occurrence{
				Weekday:  slot.day,
				StartUTC: start.UTC(),
				EndUTC:   end.UTC(),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartUTC.Equal(b.StartUTC) {
			return a.StartUTC.Before(b.StartUTC)
		}
		if !a.EndUTC.Equal(b.EndUTC) {
			return a.EndUTC.Before(b.EndUTC)
		}
		return a.Weekday < b.Weekday
	})
	return out, nil
}

// GenerateSchedule normalizes c and expands it from its starting date
// through endDate.
func GenerateSchedule(c ClassSchedule, endDate Date) ([]Occurrence, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	n := c.Normalized()
	return Generate(n.StartingDate, endDate, n.TimeSlots)
}

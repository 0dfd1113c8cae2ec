package schedule

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"classroom/internal/apperr"
)

// Weekday is an ISO weekday, Monday = 1 through Sunday = 7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// ParseWeekday accepts full or three-letter English names, any case.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := 1; i < len(weekdayNames); i++ {
		if s == weekdayNames[i] || (len(s) == 3 && strings.HasPrefix(weekdayNames[i], s)) {
			return Weekday(i), nil
		}
	}
	return 0, apperr.New(apperr.Validation, "schedule.ParseWeekday", "unknown day of week %q", s)
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

func (d Weekday) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, apperr.New(apperr.Validation, "schedule.Weekday", "invalid day of week %d", int(d))
	}
	return json.Marshal(d.String())
}

func (d *Weekday) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Wrap(apperr.Validation, "schedule.Weekday", err)
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Date is a calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, apperr.Wrap(apperr.Validation, "schedule.ParseDate", err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Before(o Date) bool { return d.In(time.UTC).Before(o.In(time.UTC)) }

func (d Date) String() string { return d.In(time.UTC).Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Wrap(apperr.Validation, "schedule.Date", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeSlot is one weekly recurring meeting window in local wall time.
type TimeSlot struct {
	DayOfWeek Weekday `json:"dayOfWeek"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Timezone  string  `json:"timezone,omitempty"`
}

// clock is minutes after local midnight.
type clock int

func parseClock(s string) (clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM %q", s)
	}
	return clock(t.Hour()*60 + t.Minute()), nil
}

func (c clock) hour() int   { return int(c) / 60 }
func (c clock) minute() int { return int(c) % 60 }

func (c clock) String() string { return fmt.Sprintf("%02d:%02d", c.hour(), c.minute()) }

// resolvedSlot is a validated TimeSlot ready for time arithmetic.
type resolvedSlot struct {
	day   Weekday
	start clock
	end   clock
	loc   *time.Location
}

func (s TimeSlot) resolve() (resolvedSlot, error) {
	const op = "schedule.TimeSlot"
	if !s.DayOfWeek.Valid() {
		return resolvedSlot{}, apperr.New(apperr.Validation, op, "invalid day of week %d", int(s.DayOfWeek))
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return resolvedSlot{}, apperr.Wrap(apperr.Validation, op, err)
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return resolvedSlot{}, apperr.Wrap(apperr.Validation, op, err)
	}
	if start >= end {
		return resolvedSlot{}, apperr.New(apperr.Validation, op, "start %s must be before end %s", start, end)
	}
	if strings.TrimSpace(s.Timezone) == "" {
		return resolvedSlot{}, apperr.New(apperr.Validation, op, "timezone is required")
	}
	loc, err := LoadZone(s.Timezone)
	if err != nil {
		return resolvedSlot{}, err
	}
	return resolvedSlot{day: s.DayOfWeek, start: start, end: end, loc: loc}, nil
}

// LoadZone resolves an IANA zone name. The server's own zone is refused so
// that generated times never depend on where the process runs.
func LoadZone(name string) (*time.Location, error) {
	const op = "schedule.LoadZone"
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "Local") {
		return nil, apperr.New(apperr.Validation, op, "%q is not an IANA timezone", name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, op, err)
	}
	if loc == time.Local {
		return nil, apperr.New(apperr.Validation, op, "%q is not an IANA timezone", name)
	}
	return loc, nil
}

// Validate checks the slot in isolation. The timezone must already be set.
func (s TimeSlot) Validate() error {
	_, err := s.resolve()
	return err
}

// normalized returns the slot with canonical HH:MM and the default zone applied.
func (s TimeSlot) normalized(defaultTZ string) TimeSlot {
	out := s
	if strings.TrimSpace(out.Timezone) == "" {
		out.Timezone = defaultTZ
	}
	if c, err := parseClock(out.StartTime); err == nil {
		out.StartTime = c.String()
	}
	if c, err := parseClock(out.EndTime); err == nil {
		out.EndTime = c.String()
	}
	return out
}

// ClassSchedule is the weekly definition of a class.
type ClassSchedule struct {
	ClassID      string     `json:"classId"`
	StartingDate Date       `json:"startingDate"`
	Timezone     string     `json:"timezone"`
	TimeSlots    []TimeSlot `json:"timeSlots"`
}

// Normalized applies the class timezone to slots that lack one and orders
// slots by weekday.
func (c ClassSchedule) Normalized() ClassSchedule {
	out := c
	out.TimeSlots = make([]TimeSlot, 0, len(c.TimeSlots))
	for _, s := range c.TimeSlots {
		out.TimeSlots = append(out.TimeSlots, s.normalized(c.Timezone))
	}
	sort.SliceStable(out.TimeSlots, func(i, j int) bool {
		return out.TimeSlots[i].DayOfWeek < out.TimeSlots[j].DayOfWeek
	})
	return out
}

// Validate checks every slot and that no weekday is used twice.
func (c ClassSchedule) Validate() error {
	const op = "schedule.ClassSchedule"
	if c.ClassID == "" {
		return apperr.New(apperr.Validation, op, "class id is required")
	}
	if c.StartingDate.IsZero() {
		return apperr.New(apperr.Validation, op, "starting date is required")
	}
	n := c.Normalized()
	seen := make(map[Weekday]bool, len(n.TimeSlots))
	for _, s := range n.TimeSlots {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.DayOfWeek] {
			return apperr.New(apperr.Validation, op, "more than one slot on %s", s.DayOfWeek)
		}
		seen[s.DayOfWeek] = true
	}
	return nil
}

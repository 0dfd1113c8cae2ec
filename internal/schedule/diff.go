package schedule

import "classroom/internal/apperr"

// ChangeKind classifies how a schedule moved between two versions.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeTimeSlots
	ChangeStartDate
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeTimeSlots:
		return "TIME_SLOTS_CHANGED"
	case ChangeStartDate:
		return "START_DATE_CHANGED"
	default:
		return "NONE"
	}
}

func (k ChangeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ChangeKind) UnmarshalText(b []byte) error {
	for _, c := range []ChangeKind{ChangeNone, ChangeTimeSlots, ChangeStartDate} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return apperr.New(apperr.Validation, "schedule.ChangeKind", "unknown change kind %q", b)
}

// Diff compares two schedules structurally. Slot order does not matter and
// slots without a timezone are compared under their class zone. When both
// the slots and the starting date moved, ChangeTimeSlots wins.
func Diff(old, updated ClassSchedule) ChangeKind {
	if !sameSlots(old.Normalized().TimeSlots, updated.Normalized().TimeSlots) {
		return ChangeTimeSlots
	}
	if old.StartingDate != updated.StartingDate {
		return ChangeStartDate
	}
	return ChangeNone
}

func sameSlots(a, b []TimeSlot) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[TimeSlot]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		if counts[s] == 0 {
			return false
		}
		counts[s]--
	}
	return true
}

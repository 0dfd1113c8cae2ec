package queue

import (
	"time"

	"classroom/internal/schedule"
)

const (
	// ScheduleChangeURL is the consumer route for schedule-change jobs.
	ScheduleChangeURL = "/jobs/schedule-change"

	OperationRecreateSessionsAndNotify = "recreate_sessions_and_notify"
)

// ScheduleChangeJob is published after a class schedule is reconciled. The
// consumer provisions meetings for the remaining sessions and notifies
// enrolled students. Replaying it must be harmless.
type ScheduleChangeJob struct {
	ClassID         string              `json:"classId"`
	OldTimeSlots    []schedule.TimeSlot `json:"oldTimeSlots"`
	NewTimeSlots    []schedule.TimeSlot `json:"newTimeSlots"`
	StartingDate    schedule.Date       `json:"startingDate"`
	NewStartingDate schedule.Date       `json:"newStartingDate"`
	Timezone        string              `json:"timezone,omitempty"`
	Operation       string              `json:"operation"`
	RequestedAt     time.Time           `json:"requestedAt"`
}

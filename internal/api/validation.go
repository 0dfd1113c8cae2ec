package api

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"classroom/internal/schedule"
)

var registerOnce sync.Once

// registerValidators adds the schedule field validators to gin's engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("15:04", fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, err := schedule.ParseWeekday(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("iana_tz", func(fl validator.FieldLevel) bool {
			_, err := schedule.LoadZone(fl.Field().String())
			return err == nil
		})
	})
}

type timeSlotRequest struct {
	DayOfWeek string `json:"dayOfWeek" binding:"required,weekday"`
	StartTime string `json:"startTime" binding:"required,hhmm"`
	EndTime   string `json:"endTime" binding:"required,hhmm"`
	Timezone  string `json:"timezone" binding:"omitempty,iana_tz"`
}

type scheduleRequest struct {
	StartingDate string            `json:"startingDate" binding:"required,datetime=2006-01-02"`
	Timezone     string            `json:"timezone" binding:"omitempty,iana_tz"`
	TimeSlots    []timeSlotRequest `json:"timeSlots" binding:"dive"`
}

func (r scheduleRequest) toSchedule(classID string) (schedule.ClassSchedule, error) {
	start, err := schedule.ParseDate(r.StartingDate)
	if err != nil {
		return schedule.ClassSchedule{}, err
	}
	out := schedule.ClassSchedule{ClassID: classID, StartingDate: start, Timezone: r.Timezone}
	for _, s := range r.TimeSlots {
		day, err := schedule.ParseWeekday(s.DayOfWeek)
		if err != nil {
			return schedule.ClassSchedule{}, err
		}
		out.TimeSlots = append(out.TimeSlots, schedule.TimeSlot{
			DayOfWeek: day,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Timezone:  s.Timezone,
		})
	}
	return out, nil
}

type markPresentRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
}

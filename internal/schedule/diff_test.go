package schedule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/apperr"
)

func baseSchedule(t *testing.T) ClassSchedule {
	return ClassSchedule{
		ClassID:      "class-1",
		StartingDate: mustDate(t, "2024-01-01"),
		Timezone:     "America/New_York",
		TimeSlots: []TimeSlot{
			{DayOfWeek: Monday, StartTime: "09:00", EndTime: "10:00"},
			{DayOfWeek: Thursday, StartTime: "16:00", EndTime: "17:30", Timezone: "America/New_York"},
		},
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ClassSchedule)
		want   ChangeKind
	}{
		{name: "identical", mutate: func(c *ClassSchedule) {}, want: ChangeNone},
		{name: "reordered slots", mutate: func(c *ClassSchedule) {
			c.TimeSlots[0], c.TimeSlots[1] = c.TimeSlots[1], c.TimeSlots[0]
		}, want: ChangeNone},
		{name: "explicit default zone", mutate: func(c *ClassSchedule) {
			c.TimeSlots[0].Timezone = "America/New_York"
		}, want: ChangeNone},
		{name: "unpadded clock", mutate: func(c *ClassSchedule) {
			c.TimeSlots[0].StartTime = "9:00"
		}, want: ChangeNone},
		{name: "moved slot", mutate: func(c *ClassSchedule) {
			c.TimeSlots[0].DayOfWeek = Wednesday
		}, want: ChangeTimeSlots},
		{name: "added slot", mutate: func(c *ClassSchedule) {
			c.TimeSlots = append(c.TimeSlots, TimeSlot{DayOfWeek: Friday, StartTime: "08:00", EndTime: "09:00"})
		}, want: ChangeTimeSlots},
		{name: "changed zone", mutate: func(c *ClassSchedule) {
			c.TimeSlots[1].Timezone = "Europe/London"
		}, want: ChangeTimeSlots},
		{name: "start date only", mutate: func(c *ClassSchedule) {
			c.StartingDate = Date{Year: 2024, Month: 2, Day: 1}
		}, want: ChangeStartDate},
		{name: "start date and slots", mutate: func(c *ClassSchedule) {
			c.StartingDate = Date{Year: 2024, Month: 2, Day: 1}
			c.TimeSlots = c.TimeSlots[:1]
		}, want: ChangeTimeSlots},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := baseSchedule(t)
			updated := baseSchedule(t)
			tt.mutate(&updated)
			assert.Equal(t, tt.want, Diff(old, updated))
		})
	}
}

func TestDiffSameScheduleIsNone(t *testing.T) {
	s := baseSchedule(t)
	assert.Equal(t, ChangeNone, Diff(s, s))
	assert.Equal(t, "NONE", Diff(s, s).String())
}

func TestClassScheduleValidate(t *testing.T) {
	s := baseSchedule(t)
	require.NoError(t, s.Validate())

	dup := baseSchedule(t)
	dup.TimeSlots[1].DayOfWeek = Monday
	err := dup.Validate()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))

	noDate := baseSchedule(t)
	noDate.StartingDate = Date{}
	assert.True(t, apperr.Is(noDate.Validate(), apperr.Validation))
}

func TestTimeSlotJSON(t *testing.T) {
	var slot TimeSlot
	require.NoError(t, json.Unmarshal([]byte(`{"dayOfWeek":"Wed","startTime":"14:00","endTime":"15:00"}`), &slot))
	assert.Equal(t, Wednesday, slot.DayOfWeek)

	b, err := json.Marshal(slot)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dayOfWeek":"wednesday","startTime":"14:00","endTime":"15:00"}`, string(b))

	err = json.Unmarshal([]byte(`{"dayOfWeek":"funday"}`), &slot)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

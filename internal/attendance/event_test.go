package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/apperr"
)

var t0 = time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)

func mins(n int) time.Time { return t0.Add(time.Duration(n) * time.Minute) }

func joined(n int) Event { return Event{Kind: EventJoined, At: mins(n)} }
func left(n int) Event   { return Event{Kind: EventLeft, At: mins(n)} }

func fold(events ...Event) Record {
	var r Record
	for _, ev := range events {
		r = Apply(r, ev)
	}
	return r
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		events    []Event
		status    JoinStatus
		joinTime  time.Time
		leaveTime time.Time
	}{
		{name: "first join", events: []Event{joined(0)}, status: StatusInMeeting, joinTime: mins(0)},
		{name: "join then leave", events: []Event{joined(0), left(50)}, status: StatusLeftMeeting, joinTime: mins(0), leaveTime: mins(50)},
		{name: "left first opens the record", events: []Event{left(50)}, status: StatusInMeeting, joinTime: mins(50), leaveTime: mins(50)},
		{name: "left arrives before its join", events: []Event{left(50), joined(0)}, status: StatusInMeeting, joinTime: mins(0), leaveTime: mins(50)},
		{name: "left redelivered after opening", events: []Event{left(50), left(50)}, status: StatusLeftMeeting, joinTime: mins(50), leaveTime: mins(50)},
		{name: "left, join, left", events: []Event{left(50), joined(0), left(50)}, status: StatusLeftMeeting, joinTime: mins(0), leaveTime: mins(50)},
		{name: "repeated leave keeps latest", events: []Event{joined(0), left(50), left(40)}, status: StatusLeftMeeting, joinTime: mins(0), leaveTime: mins(50)},
		{name: "later leave overwrites", events: []Event{joined(0), left(40), left(50)}, status: StatusLeftMeeting, joinTime: mins(0), leaveTime: mins(50)},
		{name: "rejoin", events: []Event{joined(0), left(20), joined(30)}, status: StatusInMeeting, joinTime: mins(0), leaveTime: mins(20)},
		{name: "stale join redelivered", events: []Event{joined(0), left(20), joined(0)}, status: StatusLeftMeeting, joinTime: mins(0), leaveTime: mins(20)},
		{name: "stale leave after rejoin", events: []Event{joined(0), left(20), joined(30), left(20)}, status: StatusInMeeting, joinTime: mins(0), leaveTime: mins(20)},
		{name: "rejoin then leave again", events: []Event{joined(0), left(20), joined(30), left(55)}, status: StatusLeftMeeting, joinTime: mins(0), leaveTime: mins(55)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := fold(tt.events...)
			assert.Equal(t, tt.status, r.JoinStatus)
			assert.Equal(t, tt.joinTime, r.JoinTime)
			assert.Equal(t, tt.leaveTime, r.LeaveTime)
		})
	}
}

func TestApplyConvergesUnderRedelivery(t *testing.T) {
	orders := [][]Event{
		{joined(0), left(50), joined(0), left(50)},
		{joined(0), joined(0), left(50), left(50)},
		{left(50), joined(0), left(50), joined(0)},
		{left(50), left(50), joined(0), joined(0)},
	}
	want := fold(joined(0), left(50))
	for _, events := range orders {
		assert.Equal(t, want, fold(events...))
	}
}

func TestApplyParticipantDetails(t *testing.T) {
	r := Apply(Record{}, Event{Kind: EventJoined, At: t0, Name: "Ada", Email: "ada@example.com"})
	r = Apply(r, Event{Kind: EventLeft, At: mins(5)})
	assert.Equal(t, "Ada", r.Name)
	assert.Equal(t, "ada@example.com", r.Email)

	r = Apply(r, Event{Kind: EventLeft, At: mins(6), Name: "Ada L."})
	assert.Equal(t, "Ada L.", r.Name)
}

func TestParseWebhook(t *testing.T) {
	received := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)

	key, ev, err := ParseWebhook([]byte(`{
		"event": "participant_joined",
		"meetingId": "m-1",
		"customerKey": "k-1",
		"participant": {"name": "Ada", "email": "ada@example.com"},
		"timestamps": {"joinedAt": "2024-03-06T09:01:00-05:00"}
	}`), received)
	require.NoError(t, err)
	assert.Equal(t, "k-1", key)
	assert.Equal(t, EventJoined, ev.Kind)
	assert.Equal(t, "m-1", ev.MeetingID)
	assert.Equal(t, "Ada", ev.Name)
	assert.Equal(t, time.Date(2024, 3, 6, 14, 1, 0, 0, time.UTC), ev.At)

	_, ev, err = ParseWebhook([]byte(`{"event":"participant_left","customerKey":"k-1","timestamps":{}}`), received)
	require.NoError(t, err)
	assert.Equal(t, EventLeft, ev.Kind)
	assert.Equal(t, received, ev.At)

	_, ev, err = ParseWebhook([]byte(`{"event":"recording_started","customerKey":"k-1"}`), received)
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, ev.Kind)

	_, _, err = ParseWebhook([]byte(`{"event":`), received)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

package attendance

import (
	"encoding/json"
	"time"

	"classroom/internal/apperr"
)

// EventKind is the closed set of participant events this service acts on.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoined
	EventLeft
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

const (
	webhookParticipantJoined = "participant_joined"
	webhookParticipantLeft   = "participant_left"
)

// Event is a participant event already attributed to a meeting.
type Event struct {
	Kind      EventKind
	MeetingID string
	Name      string
	Email     string
	At        time.Time
}

// WebhookPayload is the body the meeting provider posts to /webhook.
type WebhookPayload struct {
	Event       string `json:"event"`
	MeetingID   string `json:"meetingId"`
	CustomerKey string `json:"customerKey"`
	Participant struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"participant"`
	Timestamps struct {
		JoinedAt *time.Time `json:"joinedAt"`
		LeftAt   *time.Time `json:"leftAt"`
	} `json:"timestamps"`
}

// ParseWebhook decodes a provider callback. Unrecognized event names decode
// to EventUnknown; received stamps events that carry no timestamp.
func ParseWebhook(body []byte, received time.Time) (string, Event, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", Event{}, apperr.Wrap(apperr.Validation, "attendance.ParseWebhook", err)
	}

	ev := Event{
		MeetingID: p.MeetingID,
		Name:      p.Participant.Name,
		Email:     p.Participant.Email,
		At:        received,
	}
	switch p.Event {
	case webhookParticipantJoined:
		ev.Kind = EventJoined
		if p.Timestamps.JoinedAt != nil {
			ev.At = *p.Timestamps.JoinedAt
		}
	case webhookParticipantLeft:
		ev.Kind = EventLeft
		if p.Timestamps.LeftAt != nil {
			ev.At = *p.Timestamps.LeftAt
		}
	}
	ev.At = ev.At.UTC()
	return p.CustomerKey, ev, nil
}

// Apply folds ev into cur. It is order-tolerant: replaying any prefix of
// an event stream, or delivering events twice, converges to the same record.
//
//	none    + any    -> In Meeting, join = ts
//	In      + left   -> Left Meeting unless ts predates the latest join
//	Left    + joined -> In Meeting only if ts is after the last leave
//	any     + left   -> leave = max(leave, ts)
func Apply(cur Record, ev Event) Record {
	next := cur
	if ev.Name != "" {
		next.Name = ev.Name
	}
	if ev.Email != "" {
		next.Email = ev.Email
	}
	ts := ev.At.UTC()

	switch ev.Kind {
	case EventJoined:
		if !cur.Exists() {
			next.JoinStatus = StatusInMeeting
			next.JoinTime = ts
			next.LastJoinedAt = ts
			return next
		}
		next.JoinTime = minTime(cur.JoinTime, ts)
		next.LastJoinedAt = maxTime(cur.LastJoinedAt, ts)
		if cur.JoinStatus == StatusLeftMeeting && ts.After(cur.LeaveTime) {
			next.JoinStatus = StatusInMeeting
		}
	case EventLeft:
		// The provider does not guarantee ordering, so a leave seen first
		// still opens the record. LastJoinedAt stays unset so the next
		// leave closes it whatever its timestamp.
		if !cur.Exists() {
			next.JoinStatus = StatusInMeeting
			next.JoinTime = ts
			next.LeaveTime = ts
			return next
		}
		next.LeaveTime = maxTime(cur.LeaveTime, ts)
		if !ts.Before(cur.LastJoinedAt) {
			next.JoinStatus = StatusLeftMeeting
		}
	}
	return next
}

func minTime(a, b time.Time) time.Time {
	if a.IsZero() || b.Before(a) {
		return b
	}
	return a
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

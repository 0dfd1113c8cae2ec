package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/apperr"
)

func TestSendgridNotifier(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	n := NewSendgridNotifier("sg-key", "Classroom", "noreply@example.com")
	n.host = srv.URL
	msg := Message{
		To:      Recipient{StudentID: "stu-1", Name: "Ada", Email: "ada@example.com"},
		Subject: "Schedule changed",
		Text:    "Your class moved.",
	}

	require.NoError(t, n.Notify(context.Background(), msg))
	assert.Equal(t, sendgridEndpoint, gotPath)
	assert.Equal(t, "Bearer sg-key", gotAuth)
	personalizations := gotBody["personalizations"].([]any)
	require.Len(t, personalizations, 1)
	assert.Equal(t, "[Classroom] Schedule changed", personalizations[0].(map[string]any)["subject"])

	status = http.StatusServiceUnavailable
	err := n.Notify(context.Background(), msg)
	assert.True(t, apperr.Is(err, apperr.TransientProvider))

	status = http.StatusBadRequest
	err = n.Notify(context.Background(), msg)
	assert.True(t, apperr.Is(err, apperr.Internal))

	msg.To.Email = ""
	err = n.Notify(context.Background(), msg)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper()
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "k")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Release(ctx, "k"))
	first, err = d.FirstSeen(ctx, "k")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestMemoryRoster(t *testing.T) {
	r := NewMemoryRoster()
	r.Enroll("c1", Recipient{StudentID: "b"})
	r.Enroll("c1", Recipient{StudentID: "a"})
	r.Enroll("c2", Recipient{StudentID: "z"})

	got, err := r.Enrolled(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].StudentID)

	none, err := r.Enrolled(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewPicksNotifierByKey(t *testing.T) {
	n := New("", "Classroom", "noreply@example.com", nil)
	assert.IsType(t, LogNotifier{}, n)
	assert.NoError(t, n.Notify(context.Background(), Message{Subject: "hi"}))

	sg, ok := New("sg-key", "Classroom", "noreply@example.com", nil).(*SendgridNotifier)
	require.True(t, ok)
	assert.Equal(t, "sg-key", sg.key)
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	receipt, err := q.Publish(ctx, ScheduleChangeURL, []byte(`{"classId":"c-1"}`), 3)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.MessageID)

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case env := <-msgs:
		assert.Equal(t, receipt.MessageID, env.ID)
		assert.Equal(t, ScheduleChangeURL, env.URL)
		assert.Equal(t, 3, env.Retries)
		assert.JSONEq(t, `{"classId":"c-1"}`, string(env.Body))
	case <-time.After(time.Second):
		t.Fatal("no message consumed")
	}
}

func TestPublishRejectsBadInput(t *testing.T) {
	q := NewInMemory(1)
	_, err := q.Publish(context.Background(), "", []byte(`{}`), 1)
	assert.Error(t, err)
	_, err = q.Publish(context.Background(), ScheduleChangeURL, []byte(`not json`), 1)
	assert.Error(t, err)
	assert.Equal(t, 0, q.Len())
}

func TestInMemoryPublishHonoursContextWhenFull(t *testing.T) {
	q := NewInMemory(1)
	_, err := q.Publish(context.Background(), ScheduleChangeURL, []byte(`{}`), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Publish(ctx, ScheduleChangeURL, []byte(`{}`), 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type flakyDispatcher struct {
	failures int
	calls    int
}

func (f *flakyDispatcher) Publish(_ context.Context, _ string, _ []byte, _ int) (Receipt, error) {
	f.calls++
	if f.calls <= f.failures {
		return Receipt{}, errors.New("redis down")
	}
	return Receipt{MessageID: "m-1"}, nil
}

func TestPublishWithRetry(t *testing.T) {
	d := &flakyDispatcher{failures: 2}
	receipt, err := PublishWithRetry(context.Background(), d, 3, time.Millisecond, ScheduleChangeURL, []byte(`{}`), 3)
	require.NoError(t, err)
	assert.Equal(t, "m-1", receipt.MessageID)
	assert.Equal(t, 3, d.calls)

	d = &flakyDispatcher{failures: 5}
	_, err = PublishWithRetry(context.Background(), d, 3, time.Millisecond, ScheduleChangeURL, []byte(`{}`), 3)
	assert.EqualError(t, err, "redis down")
	assert.Equal(t, 3, d.calls)
}

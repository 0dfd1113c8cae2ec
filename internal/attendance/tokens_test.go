package attendance

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/apperr"
)

func TestIssueIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.issuer.Issue(ctx, "sess-1", "stu-1")
	require.NoError(t, err)
	second, err := f.issuer.Issue(ctx, "sess-1", "stu-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.store.keyCount())

	raw, err := base64.RawURLEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, keyBytes)

	other, err := f.issuer.Issue(ctx, "sess-2", "stu-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestIssueConcurrentRequestsShareKey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	keys := make([]string, 16)
	var wg sync.WaitGroup
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := f.issuer.Issue(ctx, "sess-1", "stu-1")
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for _, k := range keys[1:] {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, f.store.keyCount())
}

func TestIssueRequiresSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.issuer.Issue(ctx, "missing", "stu-1")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = f.issuer.Issue(ctx, "sess-1", "")
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Zero(t, f.store.keyCount())
}

func TestIssueRetriesKeyCollision(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.issuer.random = bytes.NewReader(append(make([]byte, keyBytes), bytes.Repeat([]byte{0xff}, 2*keyBytes)...))

	a, err := f.issuer.Issue(ctx, "sess-1", "stu-1")
	require.NoError(t, err)
	// zero bytes are consumed by stu-1; stu-2 collides on its first draw
	f.issuer.random = bytes.NewReader(append(make([]byte, keyBytes), bytes.Repeat([]byte{0xff}, keyBytes)...))
	b, err := f.issuer.Issue(ctx, "sess-1", "stu-2")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, f.store.keyCount())
}

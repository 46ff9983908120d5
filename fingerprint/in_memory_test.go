package fingerprint

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convopipe/core"
)

var _ core.FingerprintStore = (*InMemoryStore)(nil)

func TestInMemoryStore_AdmitOnce(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	first, err := s.Admit(ctx, "in:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	for i := 0; i < 5; i++ {
		again, err := s.Admit(ctx, "in:abc", time.Minute)
		require.NoError(t, err)
		assert.False(t, again)
	}
}

func TestInMemoryStore_TTLExpiryReadmits(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Unix(1700000000, 0)
	s.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	ok, err := s.Admit(ctx, "in:abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	ok, _ = s.Admit(ctx, "in:abc", time.Minute)
	assert.False(t, ok)

	now = now.Add(31 * time.Second)
	ok, _ = s.Admit(ctx, "in:abc", time.Minute)
	assert.True(t, ok, "fingerprint should be re-admittable after the TTL window")
}

func TestInMemoryStore_Release(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	ok, _ := s.Admit(ctx, "out:key", time.Hour)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "out:key"))

	ok, _ = s.Admit(ctx, "out:key", time.Hour)
	assert.True(t, ok, "released fingerprint must be admittable again")
}

func TestInMemoryStore_ConcurrentAdmitExactlyOne(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const workers = 64
	var admitted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, err := s.Admit(ctx, "in:race", time.Minute)
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), admitted.Load(), "check-then-set race must not admit twice")
}

package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndShutdown(t *testing.T) {
	pool, err := New(2, nil)
	require.NoError(t, err)

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func() {
			ran.Add(1)
		}))
	}

	require.NoError(t, pool.Shutdown(5*time.Second))
	assert.EqualValues(t, 10, ran.Load())
	assert.Zero(t, pool.Pending())
}

func TestPanicDoesNotKillThePool(t *testing.T) {
	pool, err := New(1, nil)
	require.NoError(t, err)
	defer pool.Release()

	require.NoError(t, pool.Submit(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool stopped executing after a panic")
	}
}

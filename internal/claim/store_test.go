package claim_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaim(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	ctx := context.Background()

	t.Run("first claim wins", func(t *testing.T) {
		claimed, err := store.Claim(ctx, "songA", "run-1")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("second claim loses", func(t *testing.T) {
		claimed, err := store.Claim(ctx, "songA", "run-2")
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("claim after complete still loses", func(t *testing.T) {
		claimed, err := store.Claim(ctx, "songB", "")
		require.NoError(t, err)
		require.True(t, claimed)

		require.NoError(t, store.Complete(ctx, "songB"))

		claimed, err = store.Claim(ctx, "songB", "")
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestClaimConcurrent(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	ctx := context.Background()

	const attempts = 16

	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.Claim(ctx, "contested", "run-x")
			if err != nil {
				errs <- err
				return
			}
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent claim returned error: %v", err)
	}

	winners := 0
	losers := 0
	for claimed := range results {
		if claimed {
			winners++
		} else {
			losers++
		}
	}

	assert.Equal(t, 1, winners, "exactly one concurrent claim must win")
	assert.Equal(t, attempts-1, losers)
}

func TestTransitions(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "songA", "")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.Complete(ctx, "songA"))

	t.Run("fail after complete overwrites status", func(t *testing.T) {
		require.NoError(t, store.Fail(ctx, "songA"))
	})

	t.Run("transition on unknown name is an error", func(t *testing.T) {
		assert.Error(t, store.Complete(ctx, "never-claimed"))
		assert.Error(t, store.Fail(ctx, "never-claimed"))
	})
}

func TestKnownNames(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	ctx := context.Background()

	known, err := store.KnownNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, known)

	for _, name := range []string{"a", "b", "c"} {
		claimed, err := store.Claim(ctx, name, "")
		require.NoError(t, err)
		require.True(t, claimed)
	}
	require.NoError(t, store.Complete(ctx, "a"))
	require.NoError(t, store.Fail(ctx, "b"))

	known, err = store.KnownNames(ctx)
	require.NoError(t, err)
	assert.Len(t, known, 3, "known set includes every status")
	for _, name := range []string{"a", "b", "c"} {
		assert.Contains(t, known, name)
	}
}

func TestSweep(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "abandoned", "run-1")
	require.NoError(t, err)
	require.True(t, claimed)

	t.Run("fresh claim survives a long timeout", func(t *testing.T) {
		n, err := store.Sweep(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, n)

		stuck, err := store.Stuck(ctx, time.Hour)
		require.NoError(t, err)
		assert.Empty(t, stuck)
	})

	t.Run("zero timeout reclaims it once", func(t *testing.T) {
		time.Sleep(10 * time.Millisecond)

		stuck, err := store.Stuck(ctx, 0)
		require.NoError(t, err)
		require.Len(t, stuck, 1)
		assert.Equal(t, "abandoned", stuck[0].Dirname)

		n, err := store.Sweep(ctx, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = store.Sweep(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, n, "second sweep is a no-op")
	})

	t.Run("swept claim counts as failed", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.Failed)
		assert.Zero(t, stats.Processing)
	})
}

func TestMetadata(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	ctx := context.Background()

	older := &claim.DirectoryMetadata{
		Dirname:   "songA",
		FileCount: 2,
		TotalSize: 300,
		Files: claim.FileRecords{
			{Filename: "a.opus", StoragePath: "data-collection/collected/songA/a.opus", FileSize: 200},
			{Filename: "a.ini", StoragePath: "data-collection/collected/songA/a.ini", FileSize: 100},
		},
		UploadedAt: time.Now().UTC().Add(-time.Hour),
	}
	newer := &claim.DirectoryMetadata{
		Dirname:    "songB",
		FileCount:  1,
		TotalSize:  50,
		Files:      claim.FileRecords{{Filename: "b.opus", StoragePath: "data-collection/collected/songB/b.opus", FileSize: 50}},
		UploadedAt: time.Now().UTC(),
	}

	require.NoError(t, store.StoreMetadata(ctx, older))
	require.NoError(t, store.StoreMetadata(ctx, newer))

	t.Run("files round-trip through the json column", func(t *testing.T) {
		metas, err := store.MetadataFor(ctx, "songA")
		require.NoError(t, err)
		require.Len(t, metas, 1)
		assert.Equal(t, older.Files, metas[0].Files)
		assert.Equal(t, 2, metas[0].FileCount)
	})

	t.Run("all metadata is newest first", func(t *testing.T) {
		metas, err := store.AllMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, metas, 2)
		assert.Equal(t, "songB", metas[0].Dirname)
		assert.Equal(t, "songA", metas[1].Dirname)
	})

	t.Run("stats count metadata rows", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats.TotalProcessed)
	})
}

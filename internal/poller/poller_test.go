package poller_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klangscribe/collector/internal/poller"
	"github.com/klangscribe/collector/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
}

func TestTickClaimsNewDirectories(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	root := t.TempDir()
	makeDirs(t, root, "songB", "songA")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	p := poller.New(store, root, 0, nil)

	units, err := p.Tick(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, units, 2, "plain files are not claimed")

	assert.Equal(t, "songA", units[0].Dirname)
	assert.Equal(t, "songB", units[1].Dirname)
	assert.Equal(t, filepath.Join(root, "songA"), units[0].Path)
	assert.Contains(t, units[0].RunKey, "dir_songA_")
}

func TestTickSkipsKnownDirectories(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	root := t.TempDir()
	makeDirs(t, root, "songA", "songB")

	p := poller.New(store, root, 0, nil)
	ctx := context.Background()

	units, err := p.Tick(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, units, 2)

	units, err = p.Tick(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, units, "claimed directories are never re-emitted")

	require.NoError(t, store.Complete(ctx, "songA"))
	require.NoError(t, store.Fail(ctx, "songB"))

	units, err = p.Tick(ctx, "run-3")
	require.NoError(t, err)
	assert.Empty(t, units, "completed and failed directories stay excluded")
}

func TestTickBatchLimit(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		makeDirs(t, root, fmt.Sprintf("song%02d", i))
	}

	p := poller.New(store, root, 2, nil)
	ctx := context.Background()

	units, err := p.Tick(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "song00", units[0].Dirname)
	assert.Equal(t, "song01", units[1].Dirname)

	units, err = p.Tick(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "song02", units[0].Dirname)

	units, err = p.Tick(ctx, "run-3")
	require.NoError(t, err)
	assert.Len(t, units, 1)
}

func TestTickMissingWatchRoot(t *testing.T) {
	store := testsupport.NewClaimStore(t)

	p := poller.New(store, filepath.Join(t.TempDir(), "absent"), 0, nil)

	units, err := p.Tick(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestTickRacingPollers(t *testing.T) {
	store := testsupport.NewClaimStore(t)
	root := t.TempDir()
	makeDirs(t, root, "songA")

	first := poller.New(store, root, 0, nil)
	second := poller.New(store, root, 0, nil)
	ctx := context.Background()

	units, err := first.Tick(ctx, "run-first")
	require.NoError(t, err)
	require.Len(t, units, 1)

	units, err = second.Tick(ctx, "run-second")
	require.NoError(t, err)
	assert.Empty(t, units, "losing the claim is silent, not an error")
}

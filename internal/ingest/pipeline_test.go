package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klangscribe/collector/internal/notify"
	"github.com/klangscribe/collector/internal/poller"
	"github.com/klangscribe/collector/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	uploads map[string]string // objectKey -> filePath
	failOn  string            // filename that makes UploadFile fail
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string]string)}
}

func (f *fakeObjectStore) UploadFile(_ context.Context, objectKey, filePath string) (string, error) {
	if f.failOn != "" && filepath.Base(filePath) == f.failOn {
		return "", errors.New("upload refused")
	}
	f.uploads[objectKey] = filePath
	return "s3://uns/7f3d2a10-99ab-4c1d-8e2f-0123456789abdata-collection/" + objectKey, nil
}

type recordingNotifier struct {
	summaries []notify.Summary
}

func (r *recordingNotifier) DirectoryProcessed(_ context.Context, s notify.Summary) error {
	r.summaries = append(r.summaries, s)
	return nil
}

func writeSongDir(t *testing.T, root, name string, files map[string]string) poller.WorkUnit {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for filename, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
	}
	return poller.WorkUnit{Dirname: name, Path: dir, RunKey: "dir_" + name + "_0"}
}

func TestRunUploadsAndCompletes(t *testing.T) {
	claims := testsupport.NewClaimStore(t)
	objects := newFakeObjectStore()
	notifier := &recordingNotifier{}
	ctx := context.Background()

	unit := writeSongDir(t, t.TempDir(), "songA", map[string]string{
		"guitar.opus": "aaaa",
		"notes.chart": "bb",
		"song.ini":    "c",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(unit.Path, "nested"), 0o755))

	claimed, err := claims.Claim(ctx, unit.Dirname, "run-1")
	require.NoError(t, err)
	require.True(t, claimed)

	p := New(objects, claims, notifier, nil)
	require.NoError(t, p.Run(ctx, unit))

	assert.Len(t, objects.uploads, 3, "nested directories are skipped")
	assert.Contains(t, objects.uploads, "collected/songA/guitar.opus")

	metas, err := claims.MetadataFor(ctx, "songA")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 3, metas[0].FileCount)
	assert.EqualValues(t, 7, metas[0].TotalSize)

	stats, err := claims.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Completed)

	assert.NoDirExists(t, unit.Path, "source directory is removed after upload")

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, "songA", notifier.summaries[0].Dirname)
	assert.Equal(t, 3, notifier.summaries[0].FileCount)
}

func TestRunUploadFailureMarksClaimFailed(t *testing.T) {
	claims := testsupport.NewClaimStore(t)
	objects := newFakeObjectStore()
	objects.failOn = "notes.chart"
	ctx := context.Background()

	unit := writeSongDir(t, t.TempDir(), "songA", map[string]string{
		"guitar.opus": "aaaa",
		"notes.chart": "bb",
	})

	claimed, err := claims.Claim(ctx, unit.Dirname, "run-1")
	require.NoError(t, err)
	require.True(t, claimed)

	p := New(objects, claims, nil, nil)
	err = p.Run(ctx, unit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "songA")

	metas, err := claims.MetadataFor(ctx, "songA")
	require.NoError(t, err)
	assert.Empty(t, metas, "no partial metadata is stored")

	stats, err := claims.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Failed)

	assert.DirExists(t, unit.Path, "the source directory is kept for retry")
}

func TestRunEmptyDirectory(t *testing.T) {
	claims := testsupport.NewClaimStore(t)
	objects := newFakeObjectStore()
	ctx := context.Background()

	unit := writeSongDir(t, t.TempDir(), "empty", nil)

	claimed, err := claims.Claim(ctx, unit.Dirname, "run-1")
	require.NoError(t, err)
	require.True(t, claimed)

	p := New(objects, claims, nil, nil)
	require.NoError(t, p.Run(ctx, unit))

	metas, err := claims.MetadataFor(ctx, "empty")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Zero(t, metas[0].FileCount)
	assert.NoDirExists(t, unit.Path)
}

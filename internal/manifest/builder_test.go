package manifest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	metas []claim.DirectoryMetadata
}

func (f *fakeSource) AllMetadata(context.Context) ([]claim.DirectoryMetadata, error) {
	return f.metas, nil
}

type captureWriter struct {
	key         string
	contentType string
	data        []byte
}

func (c *captureWriter) PutBytes(_ context.Context, objectKey string, data []byte, contentType string) error {
	c.key = objectKey
	c.contentType = contentType
	c.data = data
	return nil
}

func completeMeta(id int64, dirname string) claim.DirectoryMetadata {
	return claim.DirectoryMetadata{
		ID:      id,
		Dirname: dirname,
		Files: claim.FileRecords{
			{Filename: "guitar.opus", StoragePath: "data-collection/collected/" + dirname + "/guitar.opus", FileSize: 100},
			{Filename: "notes.chart", StoragePath: "data-collection/collected/" + dirname + "/notes.chart", FileSize: 50},
			{Filename: "song.ini", StoragePath: "data-collection/collected/" + dirname + "/song.ini", FileSize: 10},
		},
		UploadedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}
}

func decodeRows(t *testing.T, data []byte) []Row {
	t.Helper()
	rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return rows
}

func TestBuildKeepsCompleteDirectories(t *testing.T) {
	incomplete := completeMeta(2, "songB")
	incomplete.Files = incomplete.Files[:1] // opus only, no chart or ini

	source := &fakeSource{metas: []claim.DirectoryMetadata{completeMeta(1, "songA"), incomplete}}
	writer := &captureWriter{}

	result, err := NewBuilder(source, writer, nil).Build(context.Background(), "run-42")
	require.NoError(t, err)

	assert.Equal(t, "manifests/manifest_run-42.parquet", result.ManifestKey)
	assert.Equal(t, result.ManifestKey, writer.key)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Kept)
	assert.Equal(t, 1, result.Dropped)

	rows := decodeRows(t, writer.data)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].DirID)
	assert.Equal(t, "songA", rows[0].Dirname)
	assert.Equal(t, "data-collection/collected/songA/song.ini", rows[0].IniPath)
	assert.Equal(t, "data-collection/collected/songA/notes.chart", rows[0].ChartPath)
	assert.Equal(t, `["data-collection/collected/songA/guitar.opus"]`, rows[0].OpusPaths)
	assert.Equal(t, "2026-08-31 12:00:00", rows[0].UploadedAt)
}

func TestBuildStripsAddressPrefixes(t *testing.T) {
	meta := completeMeta(1, "songA")
	for i := range meta.Files {
		meta.Files[i].StoragePath = "s3://uns/7f3d2a10-99ab-4c1d-8e2f-0123456789ab" + meta.Files[i].StoragePath
	}

	writer := &captureWriter{}
	result, err := NewBuilder(&fakeSource{metas: []claim.DirectoryMetadata{meta}}, writer, nil).
		Build(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Kept)

	rows := decodeRows(t, writer.data)
	require.Len(t, rows, 1)
	assert.Equal(t, "data-collection/collected/songA/song.ini", rows[0].IniPath)
	assert.Equal(t, `["data-collection/collected/songA/guitar.opus"]`, rows[0].OpusPaths)
}

func TestBuildIsDeterministic(t *testing.T) {
	meta := completeMeta(1, "songA")
	meta.Files = append(meta.Files,
		claim.FileRecord{Filename: "bass.opus", StoragePath: "data-collection/collected/songA/bass.opus", FileSize: 90},
		claim.FileRecord{Filename: "Extra.chart", StoragePath: "data-collection/collected/songA/Extra.chart", FileSize: 50},
	)

	reversed := completeMeta(1, "songA")
	reversed.Files = make(claim.FileRecords, len(meta.Files))
	for i, f := range meta.Files {
		reversed.Files[len(meta.Files)-1-i] = f
	}

	var rows [2][]Row
	for i, m := range []claim.DirectoryMetadata{meta, reversed} {
		writer := &captureWriter{}
		_, err := NewBuilder(&fakeSource{metas: []claim.DirectoryMetadata{m}}, writer, nil).
			Build(context.Background(), "run-1")
		require.NoError(t, err)
		rows[i] = decodeRows(t, writer.data)
	}

	assert.Equal(t, rows[0], rows[1], "file ordering in the input must not change the output")
}

func TestBuildEmptyMetadata(t *testing.T) {
	writer := &captureWriter{}
	result, err := NewBuilder(&fakeSource{}, writer, nil).Build(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Zero(t, result.Total)
	assert.Zero(t, result.Kept)
	assert.NotEmpty(t, writer.data, "an empty manifest is still a valid parquet file")
	assert.Empty(t, decodeRows(t, writer.data))
}

package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/klangscribe/collector/internal/claim"
	"github.com/klangscribe/collector/internal/pkg/logger"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
)

// uploadedAtLayout is the fixed-width timestamp format used in the
// manifest's uploaded_at column.
const uploadedAtLayout = "2006-01-02 15:04:05"

// Row is one manifest entry. All columns are strings; opus_paths is a
// JSON-encoded ordered list.
type Row struct {
	DirID      string `parquet:"dir_id,zstd"`
	Dirname    string `parquet:"dirname,zstd"`
	IniPath    string `parquet:"ini_path,zstd"`
	ChartPath  string `parquet:"chart_path,zstd"`
	OpusPaths  string `parquet:"opus_paths,zstd"`
	UploadedAt string `parquet:"uploaded_at,zstd"`
}

// MetadataSource supplies every recorded directory metadata row.
type MetadataSource interface {
	AllMetadata(ctx context.Context) ([]claim.DirectoryMetadata, error)
}

// ObjectWriter persists the finished artifact.
type ObjectWriter interface {
	PutBytes(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// Result reports where the manifest landed and what it covered.
type Result struct {
	ManifestKey string
	Total       int
	Kept        int
	Dropped     int
}

// Builder compiles directory metadata into one parquet manifest per
// invocation.
type Builder struct {
	source MetadataSource
	writer ObjectWriter
	logger *logger.Logger
}

// NewBuilder creates a manifest builder
func NewBuilder(source MetadataSource, writer ObjectWriter, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.L()
	}
	return &Builder{
		source: source,
		writer: writer,
		logger: log,
	}
}

// Build reads all recorded metadata, keeps directories with a complete
// required file set, and writes the rows as one zstd-compressed parquet
// object under manifests/manifest_<runID>.parquet. Directories missing
// a required file are counted as dropped, never treated as errors.
func (b *Builder) Build(ctx context.Context, runID string) (*Result, error) {
	metas, err := b.source.AllMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory metadata: %w", err)
	}

	result := &Result{
		ManifestKey: fmt.Sprintf("manifests/manifest_%s.parquet", runID),
		Total:       len(metas),
	}

	rows := make([]Row, 0, len(metas))
	for _, meta := range metas {
		row, ok := buildRow(meta)
		if !ok {
			result.Dropped++
			b.logger.Debug("directory dropped from manifest",
				zap.String("dirname", meta.Dirname),
			)
			continue
		}
		rows = append(rows, row)
		result.Kept++
	}

	data, err := encodeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := b.writer.PutBytes(ctx, result.ManifestKey, data, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("failed to write manifest %q: %w", result.ManifestKey, err)
	}

	b.logger.Info("manifest written",
		zap.String("key", result.ManifestKey),
		zap.Int("total", result.Total),
		zap.Int("kept", result.Kept),
		zap.Int("dropped", result.Dropped),
	)

	return result, nil
}

// buildRow applies the file selection rules to one directory. A row is
// produced only when the directory has at least one audio file plus
// exactly one chart and one info pick.
func buildRow(meta claim.DirectoryMetadata) (Row, bool) {
	opus, chart, ini := filterRequired(meta.Files)

	opusPaths := sortedAudioPaths(opus)
	chartPath := pickSinglePath(chart)
	iniPath := pickSinglePath(ini)

	if len(opusPaths) == 0 || chartPath == "" || iniPath == "" {
		return Row{}, false
	}

	encoded, err := json.Marshal(opusPaths)
	if err != nil {
		return Row{}, false
	}

	return Row{
		DirID:      strconv.FormatInt(meta.ID, 10),
		Dirname:    meta.Dirname,
		IniPath:    iniPath,
		ChartPath:  chartPath,
		OpusPaths:  string(encoded),
		UploadedAt: meta.UploadedAt.Format(uploadedAtLayout),
	}, true
}

func encodeRows(rows []Row) ([]byte, error) {
	var buf bytes.Buffer

	w := parquet.NewGenericWriter[Row](&buf)
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

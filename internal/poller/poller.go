// Package poller discovers new song directories under a watch root and
// claims them for ingestion.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klangscribe/collector/internal/pkg/logger"
	"go.uber.org/zap"
)

// DefaultMaxPerTick caps how many new directories one tick may claim.
const DefaultMaxPerTick = 20

// ClaimStore is the subset of the claim store the poller needs.
type ClaimStore interface {
	Claim(ctx context.Context, name, runID string) (bool, error)
	KnownNames(ctx context.Context) (map[string]struct{}, error)
}

// WorkUnit is one claimed directory ready for ingestion.
type WorkUnit struct {
	// Dirname is the directory's base name, the claim key.
	Dirname string
	// Path is the absolute path under the watch root.
	Path string
	// RunKey identifies this directory at its current modification
	// time, so a renamed-back directory gets a distinct key.
	RunKey string
}

// Poller scans the watch root and turns unseen directories into
// claimed work units.
type Poller struct {
	store      ClaimStore
	watchRoot  string
	maxPerTick int
	logger     *logger.Logger
}

// New creates a poller over watchRoot. maxPerTick <= 0 falls back to
// DefaultMaxPerTick.
func New(store ClaimStore, watchRoot string, maxPerTick int, log *logger.Logger) *Poller {
	if maxPerTick <= 0 {
		maxPerTick = DefaultMaxPerTick
	}
	if log == nil {
		log = logger.L()
	}
	return &Poller{
		store:      store,
		watchRoot:  watchRoot,
		maxPerTick: maxPerTick,
		logger:     log,
	}
}

// Tick performs one poll cycle: list the watch root, drop names already
// known to the claim store, and claim up to maxPerTick of the rest in
// lexicographic order. Only directories whose claim insert won are
// returned; losing a claim race is not an error. A missing watch root
// yields no work rather than an error, since the root may appear later.
func (p *Poller) Tick(ctx context.Context, runID string) ([]WorkUnit, error) {
	entries, err := os.ReadDir(p.watchRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("watch root does not exist, skipping poll",
				zap.String("watch_root", p.watchRoot),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read watch root %q: %w", p.watchRoot, err)
	}

	known, err := p.store.KnownNames(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []os.DirEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}
		candidates = append(candidates, entry)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name() < candidates[j].Name()
	})
	if len(candidates) > p.maxPerTick {
		candidates = candidates[:p.maxPerTick]
	}

	var units []WorkUnit
	for _, entry := range candidates {
		name := entry.Name()

		claimed, err := p.store.Claim(ctx, name, runID)
		if err != nil {
			return units, fmt.Errorf("failed to claim directory %q: %w", name, err)
		}
		if !claimed {
			p.logger.Debug("directory already claimed elsewhere",
				zap.String("dirname", name),
			)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return units, fmt.Errorf("failed to stat directory %q: %w", name, err)
		}

		units = append(units, WorkUnit{
			Dirname: name,
			Path:    filepath.Join(p.watchRoot, name),
			RunKey:  fmt.Sprintf("dir_%s_%d", name, info.ModTime().Unix()),
		})
	}

	if len(units) > 0 {
		p.logger.Info("claimed new directories",
			zap.Int("count", len(units)),
			zap.String("run_id", runID),
		)
	}

	return units, nil
}

// Package manifest builds the deterministic training manifest from the
// recorded directory metadata.
package manifest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/klangscribe/collector/internal/claim"
)

const (
	extOpus  = ".opus"
	extChart = ".chart"
	extIni   = ".ini"
)

// addressPrefixRe matches the s3://uns/<uuid> routing prefix that the
// upload path prepends to storage paths.
var addressPrefixRe = regexp.MustCompile(`^s3://uns/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func lowerName(f claim.FileRecord) string {
	return strings.ToLower(f.Filename)
}

// filterRequired keeps only the file types the manifest cares about,
// keyed by lowercased extension.
func filterRequired(files []claim.FileRecord) (opus, chart, ini []claim.FileRecord) {
	for _, f := range files {
		switch {
		case strings.HasSuffix(lowerName(f), extOpus):
			opus = append(opus, f)
		case strings.HasSuffix(lowerName(f), extChart):
			chart = append(chart, f)
		case strings.HasSuffix(lowerName(f), extIni):
			ini = append(ini, f)
		}
	}
	return opus, chart, ini
}

// stripAddressPrefix removes the routing prefix from a storage path,
// leaving the bucket-relative location. Paths without the prefix pass
// through unchanged, so the strip is idempotent.
func stripAddressPrefix(path string) string {
	return strings.TrimSpace(addressPrefixRe.ReplaceAllString(path, ""))
}

// pickSinglePath chooses one file from candidates that all share an
// extension: largest size first, then the lexicographically greatest
// lowercased filename. Returns the empty string when there is nothing
// to pick.
func pickSinglePath(candidates []claim.FileRecord) string {
	if len(candidates) == 0 {
		return ""
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.FileSize > best.FileSize {
			best = c
			continue
		}
		if c.FileSize == best.FileSize && lowerName(c) > lowerName(best) {
			best = c
		}
	}
	return stripAddressPrefix(best.StoragePath)
}

// sortedAudioPaths returns every opus storage path ordered by
// lowercased filename, breaking ties on the raw storage path. Records
// without a storage path are dropped.
func sortedAudioPaths(candidates []claim.FileRecord) []string {
	kept := make([]claim.FileRecord, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.StoragePath) == "" {
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool {
		li, lj := lowerName(kept[i]), lowerName(kept[j])
		if li != lj {
			return li < lj
		}
		return kept[i].StoragePath < kept[j].StoragePath
	})

	paths := make([]string, len(kept))
	for i, c := range kept {
		paths[i] = stripAddressPrefix(c.StoragePath)
	}
	return paths
}

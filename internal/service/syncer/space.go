package syncer

import (
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// SpaceGuard refuses downloads that would push the mirror past its size
// limit or the volume past its usage limit. A zero limit is not checked.
type SpaceGuard struct {
	stats           port.DiskStats
	maxMirrorSize   int64
	maxDiskUsagePct float64
}

// Ensure SpaceGuard implements port.SpaceChecker
var _ port.SpaceChecker = (*SpaceGuard)(nil)

// NewSpaceGuard creates a new SpaceGuard
func NewSpaceGuard(stats port.DiskStats, maxMirrorSize int64, maxDiskUsagePct float64) *SpaceGuard {
	return &SpaceGuard{
		stats:           stats,
		maxMirrorSize:   maxMirrorSize,
		maxDiskUsagePct: maxDiskUsagePct,
	}
}

// CheckSpace checks if there's enough space for a file of the given size
func (g *SpaceGuard) CheckSpace(fileSize int64) (*port.SpaceCheckResult, error) {
	if fileSize < 0 {
		fileSize = 0
	}

	result := &port.SpaceCheckResult{
		MaxMirrorSizeBytes: g.maxMirrorSize,
		MaxDiskUsagePct:    g.maxDiskUsagePct,
	}

	if g.maxMirrorSize > 0 {
		size, err := g.stats.MirrorSize()
		if err != nil {
			return nil, err
		}
		result.MirrorSizeBytes = size

		if size+fileSize > g.maxMirrorSize {
			result.LimitedByMirrorSize = true
			return result, nil
		}
	}

	if g.maxDiskUsagePct > 0 {
		usage, err := g.stats.DiskUsage()
		if err != nil {
			return nil, err
		}
		result.DiskUsedPct = usage.UsedPct

		if usage.UsedPct >= g.maxDiskUsagePct {
			result.LimitedByDiskUsage = true
			return result, nil
		}

		if usage.Total > 0 {
			projected := float64(usage.Used+uint64(fileSize)) / float64(usage.Total) * 100
			if projected >= g.maxDiskUsagePct {
				result.LimitedByDiskUsage = true
				return result, nil
			}
		}
	}

	result.HasSpace = true
	return result, nil
}

package port

// DiskUsage describes the volume holding the mirror
type DiskUsage struct {
	Total   uint64
	Used    uint64
	Free    uint64
	UsedPct float64
}

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace            bool
	MirrorSizeBytes     int64
	MaxMirrorSizeBytes  int64
	DiskUsedPct         float64
	MaxDiskUsagePct     float64
	LimitedByMirrorSize bool
	LimitedByDiskUsage  bool
}

// DiskStats reports what the mirror occupies and what the volume has left
type DiskStats interface {
	// MirrorSize returns the total bytes of mirrored content
	MirrorSize() (int64, error)

	// DiskUsage returns usage of the volume holding the mirror root
	DiskUsage() (*DiskUsage, error)
}

// SpaceChecker decides whether a download of the given size may proceed
type SpaceChecker interface {
	// CheckSpace checks if there's enough space for a file of the given size
	// and returns detailed information about space availability
	CheckSpace(fileSize int64) (*SpaceCheckResult, error)
}

package port

import (
	"io"
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// MirrorStore is the on-disk set of mirrored files plus one sidecar
// metadata record per file.
type MirrorStore interface {
	DiskStats

	// FolderPath returns the local directory mirroring a remote folder of a root
	FolderPath(rootDir, folderName string) string

	// EntryPath returns the local content path of a file in a folder
	EntryPath(rootDir, folderName, fileName string) string

	// ReadFolder returns one entry per content file in folderPath.
	// Files without a readable sidecar have an empty SourceIdentity.
	ReadFolder(folderPath string) ([]*domain.MirrorEntry, error)

	// ListFolders returns the names of the folder directories under rootDir
	ListFolders(rootDir string) ([]string, error)

	// Write streams content to a temporary location and commits it
	// together with the entry's sidecar. Nothing is committed on error.
	// Returns the number of bytes written.
	Write(entry *domain.MirrorEntry, content io.Reader) (int64, error)

	// Remove deletes the entry's content and sidecar; absent files are ignored
	Remove(entry *domain.MirrorEntry) error

	// RemoveFolder deletes an emptied folder directory; non-empty folders are kept
	RemoveFolder(folderPath string) error

	// CleanOldTempFiles removes temp files older than the given age.
	// Returns the number of files deleted.
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}

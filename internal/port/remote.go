package port

import (
	"context"
	"io"
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// WatchRequest asks the remote drive to deliver change notifications
// for a folder to an address.
type WatchRequest struct {
	FolderID  string
	ChannelID string
	Address   string
	Token     string
	TTL       time.Duration
}

// WatchResponse confirms a registered channel
type WatchResponse struct {
	ResourceID string
	ExpiresAt  time.Time
}

// RemoteDrive is the folder-structured remote store mirrored locally.
// Listing methods page through all results. Transport and auth
// failures wrap domain.ErrRemoteUnavailable.
type RemoteDrive interface {
	// ListFolders returns the direct child folders of parentID
	ListFolders(ctx context.Context, parentID string) ([]domain.RemoteFolder, error)

	// ListFiles returns the non-folder children of parentID.
	// A non-empty mimePrefixes keeps only files whose MIME type has one of the prefixes.
	ListFiles(ctx context.Context, parentID string, mimePrefixes []string) ([]domain.RemoteFile, error)

	// GetFileContent opens a stream of the file's bytes.
	// Returns the body and its length, or -1 if unknown.
	GetFileContent(ctx context.Context, fileID string) (io.ReadCloser, int64, error)

	// Watch registers a notification channel for a folder
	Watch(ctx context.Context, req *WatchRequest) (*WatchResponse, error)

	// StopWatch stops a previously registered channel
	StopWatch(ctx context.Context, channelID, resourceID string) error
}

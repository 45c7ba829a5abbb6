package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// Root is one managed remote root folder and its local directory
type Root struct {
	ID  string
	Dir string
	// Allowed restricts mirroring to the named subfolders; empty allows all
	Allowed mapset.Set[string]
}

// NewRoot creates a Root; allowedFolders may be empty
func NewRoot(id, dir string, allowedFolders []string) *Root {
	return &Root{
		ID:      id,
		Dir:     dir,
		Allowed: mapset.NewSet(allowedFolders...),
	}
}

// Allows returns true if the named subfolder is mirrored
func (r *Root) Allows(folderName string) bool {
	return r.Allowed.Cardinality() == 0 || r.Allowed.Contains(folderName)
}

// Inventory reads the remote folder tree of a root, one call at a time
// under a bounded timeout.
type Inventory struct {
	remote       port.RemoteDrive
	mimePrefixes []string
	timeout      time.Duration
}

// NewInventory creates an Inventory
func NewInventory(remote port.RemoteDrive, mimePrefixes []string, timeout time.Duration) *Inventory {
	return &Inventory{
		remote:       remote,
		mimePrefixes: mimePrefixes,
		timeout:      timeout,
	}
}

// ListFolders returns the allowed direct subfolders of a root, sorted by name
func (i *Inventory) ListFolders(ctx context.Context, root *Root) ([]domain.RemoteFolder, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	folders, err := i.remote.ListFolders(ctx, root.ID)
	if err != nil {
		return nil, remoteError("list folders of "+root.ID, err)
	}

	allowed := folders[:0]
	for _, f := range folders {
		if root.Allows(f.Name) {
			allowed = append(allowed, f)
		}
	}
	sort.Slice(allowed, func(a, b int) bool { return allowed[a].Name < allowed[b].Name })
	return allowed, nil
}

// ListFiles returns the files of one subfolder tagged with its name
func (i *Inventory) ListFiles(ctx context.Context, folder domain.RemoteFolder) ([]domain.RemoteFile, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()

	files, err := i.remote.ListFiles(ctx, folder.ID, i.mimePrefixes)
	if err != nil {
		return nil, remoteError("list files of "+folder.Name, err)
	}

	for idx := range files {
		files[idx].FolderName = folder.Name
	}
	return files, nil
}

// ListInventory returns the flat inventory of every allowed subfolder of a root
func (i *Inventory) ListInventory(ctx context.Context, root *Root) ([]domain.RemoteFile, error) {
	folders, err := i.ListFolders(ctx, root)
	if err != nil {
		return nil, err
	}

	var inventory []domain.RemoteFile
	for _, folder := range folders {
		files, err := i.ListFiles(ctx, folder)
		if err != nil {
			return nil, err
		}
		inventory = append(inventory, files...)
	}
	return inventory, nil
}

func (i *Inventory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.timeout)
}

// remoteError makes sure a listing failure, including a timeout, reads as remote unavailability
func remoteError(op string, err error) error {
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrRemoteUnavailable, op, err)
}

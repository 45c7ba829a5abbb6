package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/adapter/filesystem"
	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/domain/event"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// Reconciler applies the downloads and removals that make one local
// folder match its remote file set.
type Reconciler struct {
	store   port.MirrorStore
	fetcher *Fetcher
	space   port.SpaceChecker
	events  event.EventDispatcher
	logger  *zap.Logger
}

// NewReconciler creates a Reconciler. space may be nil to skip space checks.
func NewReconciler(store port.MirrorStore, fetcher *Fetcher, space port.SpaceChecker, events event.EventDispatcher, logger *zap.Logger) *Reconciler {
	if events == nil {
		events = event.NewNullDispatcher()
	}
	return &Reconciler{
		store:   store,
		fetcher: fetcher,
		space:   space,
		events:  events,
		logger:  logger,
	}
}

// Reconcile diffs remote against the local folder by name and identity.
// Per-file failures are collected in the result; only an unreadable
// local folder or a cancelled context aborts the folder.
func (r *Reconciler) Reconcile(ctx context.Context, root *Root, folderName string, remote []domain.RemoteFile) *domain.FolderResult {
	start := time.Now()
	result := &domain.FolderResult{RootID: root.ID, FolderName: folderName}
	defer func() {
		result.Duration = time.Since(start)
		r.events.Dispatch(event.NewFolderReconciled(root.ID, folderName,
			result.Downloaded, result.Removed, len(result.Errors), result.Failed(), result.Duration))
	}()

	local, err := r.store.ReadFolder(r.store.FolderPath(root.Dir, folderName))
	if err != nil {
		result.Err = err
		return result
	}

	wanted := r.remoteByName(root, folderName, remote, result)

	localByName := make(map[string]*domain.MirrorEntry, len(local))
	for _, entry := range local {
		localByName[entry.FileName] = entry
	}

	names := make([]string, 0, len(wanted))
	for name := range wanted {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		file := wanted[name]
		existing, ok := localByName[name]
		if ok && existing.Matches(file) {
			continue
		}

		if err := r.checkSpace(file); err != nil {
			r.fail(root, result, file.Name, file.ID, err)
			continue
		}

		if ok {
			if err := r.store.Remove(existing); err != nil {
				r.fail(root, result, file.Name, file.ID, err)
				continue
			}
			result.Removed++
			r.events.Dispatch(event.NewFileRemoved(root.ID, folderName, existing.FileName, existing.SourceIdentity, "stale"))
		}

		written, err := r.download(ctx, root, folderName, file)
		if err != nil {
			r.fail(root, result, file.Name, file.ID, err)
			continue
		}
		result.Downloaded++
		result.BytesDownloaded += written
		r.events.Dispatch(event.NewFileMirrored(root.ID, folderName, file.Name, file.ID, written, ok))
	}

	for _, entry := range local {
		if _, ok := wanted[entry.FileName]; ok {
			continue
		}
		if err := r.store.Remove(entry); err != nil {
			r.fail(root, result, entry.FileName, entry.SourceIdentity, err)
			continue
		}
		result.Removed++
		r.events.Dispatch(event.NewFileRemoved(root.ID, folderName, entry.FileName, entry.SourceIdentity, "orphan"))
	}

	return result
}

// remoteByName keys the remote files by name. Names that cannot be stored
// are reported and skipped; among duplicates the smallest identity wins.
func (r *Reconciler) remoteByName(root *Root, folderName string, remote []domain.RemoteFile, result *domain.FolderResult) map[string]*domain.RemoteFile {
	sorted := make([]domain.RemoteFile, len(remote))
	copy(sorted, remote)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	wanted := make(map[string]*domain.RemoteFile, len(sorted))
	for i := range sorted {
		file := &sorted[i]
		file.FolderName = folderName

		if err := domain.ValidateName(file.Name, filesystem.SidecarSuffix, filesystem.TempSuffix); err != nil {
			r.fail(root, result, file.Name, file.ID, err)
			continue
		}
		if _, dup := wanted[file.Name]; dup {
			r.fail(root, result, file.Name, file.ID, domain.ErrDuplicateName)
			continue
		}
		wanted[file.Name] = file
	}
	return wanted
}

func (r *Reconciler) checkSpace(file *domain.RemoteFile) error {
	if r.space == nil {
		return nil
	}
	check, err := r.space.CheckSpace(file.Size)
	if err != nil {
		return fmt.Errorf("%w: check space: %v", domain.ErrLocalStore, err)
	}
	if !check.HasSpace {
		return domain.ErrInsufficientSpace
	}
	return nil
}

func (r *Reconciler) download(ctx context.Context, root *Root, folderName string, file *domain.RemoteFile) (int64, error) {
	body, err := r.fetcher.Fetch(ctx, file)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	entry := domain.NewMirrorEntry(file, r.store.EntryPath(root.Dir, folderName, file.Name))
	return r.store.Write(entry, body)
}

func (r *Reconciler) fail(root *Root, result *domain.FolderResult, fileName, identity string, err error) {
	fe := domain.NewFileError(fileName, identity, err)
	result.Errors = append(result.Errors, fe)
	r.events.Dispatch(event.NewFileFailed(root.ID, result.FolderName, fileName, identity, failureReason(err), err))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrDownloadFailed):
		return "download"
	case errors.Is(err, domain.ErrInsufficientSpace):
		return "no_space"
	case errors.Is(err, domain.ErrLocalStore):
		return "local_store"
	case errors.Is(err, domain.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, domain.ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return "remote"
	default:
		return "other"
	}
}

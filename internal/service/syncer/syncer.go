package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/domain/event"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// Config contains syncer configuration
type Config struct {
	FullScanInterval  time.Duration
	SyncOnStart       bool
	FolderConcurrency int
	MediaPrefixes     []string
	ListTimeout       time.Duration
	FetchTimeout      time.Duration

	// Zero disables the corresponding space check
	MaxMirrorSize   int64
	MaxDiskUsagePct float64
}

// DefaultConfig returns default syncer configuration
func DefaultConfig() *Config {
	return &Config{
		FullScanInterval:  time.Hour,
		SyncOnStart:       true,
		FolderConcurrency: 4,
		MediaPrefixes:     []string{"image/", "video/"},
		ListTimeout:       30 * time.Second,
		FetchTimeout:      10 * time.Minute,
	}
}

// FolderTracker is told which subfolders currently exist so it can keep
// change notifications flowing for them.
type FolderTracker interface {
	Track(refs []domain.FolderRef)
	Untrack(folderIDs []string)
}

// Syncer keeps the local mirror of every configured root converged with Drive
type Syncer struct {
	config     *Config
	roots      []*Root
	rootByID   map[string]*Root
	inventory  *Inventory
	reconciler *Reconciler
	store      port.MirrorStore
	runs       port.SyncRunRepository
	events     event.EventDispatcher
	logger     *zap.Logger
	gate       *gate

	mu       sync.Mutex
	tracker  FolderTracker
	known    map[string]domain.FolderRef // subfolder id -> ref, from the latest root listing
	baseCtx  context.Context
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight sync.WaitGroup // dispatched runs; Add only under mu while not stopped
}

// New creates a new Syncer. runs and events may be nil.
func New(cfg *Config, roots []*Root, remote port.RemoteDrive, store port.MirrorStore, runs port.SyncRunRepository, events event.EventDispatcher, logger *zap.Logger) *Syncer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.FolderConcurrency < 1 {
		cfg.FolderConcurrency = 1
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}

	rootByID := make(map[string]*Root, len(roots))
	for _, root := range roots {
		rootByID[root.ID] = root
	}

	var space port.SpaceChecker
	if cfg.MaxMirrorSize > 0 || cfg.MaxDiskUsagePct > 0 {
		space = NewSpaceGuard(store, cfg.MaxMirrorSize, cfg.MaxDiskUsagePct)
	}

	return &Syncer{
		config:     cfg,
		roots:      roots,
		rootByID:   rootByID,
		inventory:  NewInventory(remote, cfg.MediaPrefixes, cfg.ListTimeout),
		reconciler: NewReconciler(store, NewFetcher(remote, cfg.FetchTimeout), space, events, logger),
		store:      store,
		runs:       runs,
		events:     events,
		logger:     logger,
		gate:       newGate(),
		known:      make(map[string]domain.FolderRef),
		baseCtx:    context.Background(),
	}
}

// SetTracker registers the component told about discovered subfolders
func (s *Syncer) SetTracker(tracker FolderTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = tracker
}

// RootRefs returns a root-scoped ref for every configured root
func (s *Syncer) RootRefs() []domain.FolderRef {
	refs := make([]domain.FolderRef, len(s.roots))
	for i, root := range s.roots {
		refs[i] = domain.RootRef(root.ID)
	}
	return refs
}

// Resolve maps a folder id to its reconcile scope. Subfolders resolve
// once a root listing has seen them.
func (s *Syncer) Resolve(folderID string) (domain.FolderRef, bool) {
	if _, ok := s.rootByID[folderID]; ok {
		return domain.RootRef(folderID), true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.known[folderID]
	return ref, ok
}

// Start starts the periodic full scan and blocks until ctx is done
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("syncer already running")
	}
	s.running = true
	s.stopped = false
	ctx, s.cancel = context.WithCancel(ctx)
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("syncer started",
		zap.Int("roots", len(s.roots)),
		zap.Duration("full_scan_interval", s.config.FullScanInterval),
		zap.Int("folder_concurrency", s.config.FolderConcurrency))

	if s.config.SyncOnStart {
		s.ReconcileAll(ctx, domain.TriggerStartup)
	}

	if s.config.FullScanInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fullScanLoop(ctx)
		}()
	}

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("syncer stopped")
	return nil
}

// Stop stops the syncer
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.stopped = true
}

// fullScanLoop runs a full reconcile periodically as a safety net for missed notifications
func (s *Syncer) fullScanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.FullScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReconcileAll(ctx, domain.TriggerScheduled)
		}
	}
}

// Dispatch schedules a reconcile of ref in the background and returns
// immediately. Requests for a scope that is already running coalesce
// into one follow-up run.
func (s *Syncer) Dispatch(ref domain.FolderRef, trigger domain.Trigger) error {
	if _, ok := s.rootByID[ref.RootID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRoot, ref.RootID)
	}

	s.mu.Lock()
	ctx := s.baseCtx
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("syncer stopped: %w", context.Canceled)
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		if _, err := s.ReconcileFolder(ctx, ref, trigger); err != nil {
			s.logger.Warn("dispatched reconcile failed",
				zap.String("root_id", ref.RootID),
				zap.String("folder_id", ref.FolderID),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has finished. Call it after Stop
// to drain the runs accepted before shutdown.
func (s *Syncer) Wait() {
	s.inflight.Wait()
}

// ReconcileAll reconciles every configured root
func (s *Syncer) ReconcileAll(ctx context.Context, trigger domain.Trigger) *domain.SyncRun {
	run := &domain.SyncRun{Trigger: trigger, Scope: "all", StartedAt: time.Now()}
	for _, root := range s.roots {
		run.Folders = append(run.Folders, s.reconcileRoot(ctx, root)...)
	}
	s.finish(run)
	return run
}

// ReconcileRoot reconciles every allowed subfolder of one root
func (s *Syncer) ReconcileRoot(ctx context.Context, rootID string, trigger domain.Trigger) (*domain.SyncRun, error) {
	root, ok := s.rootByID[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRoot, rootID)
	}

	run := &domain.SyncRun{Trigger: trigger, Scope: rootID, StartedAt: time.Now()}
	run.Folders = s.reconcileRoot(ctx, root)
	s.finish(run)
	return run, nil
}

// ReconcileFolder reconciles one subfolder, or the whole root for a root-scoped ref
func (s *Syncer) ReconcileFolder(ctx context.Context, ref domain.FolderRef, trigger domain.Trigger) (*domain.SyncRun, error) {
	if ref.IsRoot() {
		return s.ReconcileRoot(ctx, ref.RootID, trigger)
	}

	root, ok := s.rootByID[ref.RootID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRoot, ref.RootID)
	}

	run := &domain.SyncRun{Trigger: trigger, Scope: ref.RootID + "/" + ref.FolderID, StartedAt: time.Now()}

	name := ref.FolderName
	if name == "" {
		resolved, err := s.resolveName(ctx, root, ref.FolderID)
		if err != nil {
			run.Folders = []*domain.FolderResult{{RootID: root.ID, Err: err}}
			s.finish(run)
			return run, nil
		}
		name = resolved
	}

	if !root.Allows(name) {
		s.logger.Debug("folder not mirrored", zap.String("root_id", root.ID), zap.String("folder", name))
		return run, nil
	}

	folder := domain.RemoteFolder{ID: ref.FolderID, Name: name}
	if err := domain.ValidateName(name); err != nil {
		run.Folders = []*domain.FolderResult{{RootID: root.ID, FolderName: name, Err: err}}
	} else {
		run.Folders = []*domain.FolderResult{s.reconcileFolder(ctx, root, folder)}
	}
	s.finish(run)
	return run, nil
}

// Inventory returns the flat remote inventory of a root
func (s *Syncer) Inventory(ctx context.Context, rootID string) ([]domain.RemoteFile, error) {
	root, ok := s.rootByID[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRoot, rootID)
	}
	return s.inventory.ListInventory(ctx, root)
}

func (s *Syncer) resolveName(ctx context.Context, root *Root, folderID string) (string, error) {
	if ref, ok := s.Resolve(folderID); ok && ref.FolderName != "" {
		return ref.FolderName, nil
	}

	folders, err := s.inventory.ListFolders(ctx, root)
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.ID == folderID {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: folder %s under root %s", domain.ErrNotFound, folderID, root.ID)
}

// reconcileRoot lists the root's subfolders, reconciles them in parallel
// and empties local folders that no longer exist remotely. Concurrent
// requests for the same root coalesce.
func (s *Syncer) reconcileRoot(ctx context.Context, root *Root) []*domain.FolderResult {
	var results []*domain.FolderResult
	ran := s.gate.Do(root.Dir, func() {
		results = append(results, s.reconcileRootOnce(ctx, root)...)
	})
	if !ran {
		return []*domain.FolderResult{{RootID: root.ID, Coalesced: true}}
	}
	return results
}

func (s *Syncer) reconcileRootOnce(ctx context.Context, root *Root) []*domain.FolderResult {
	folders, err := s.inventory.ListFolders(ctx, root)
	if err != nil {
		return []*domain.FolderResult{{RootID: root.ID, Err: err}}
	}

	var results []*domain.FolderResult
	valid, rejected := s.partitionFolders(root, folders)
	results = append(results, rejected...)

	s.track(root, valid)

	remoteNames := mapset.NewThreadUnsafeSet[string]()
	for _, f := range valid {
		remoteNames.Add(f.Name)
	}
	localNames, err := s.store.ListFolders(root.Dir)
	if err != nil {
		results = append(results, &domain.FolderResult{RootID: root.ID, Err: err})
	}
	var orphans []string
	for _, name := range localNames {
		// folders outside the allow list are not ours to delete
		if !remoteNames.Contains(name) && root.Allows(name) {
			orphans = append(orphans, name)
		}
	}

	folderResults := make([]*domain.FolderResult, len(valid)+len(orphans))
	var g errgroup.Group
	g.SetLimit(s.config.FolderConcurrency)

	for i, folder := range valid {
		i, folder := i, folder
		g.Go(func() error {
			folderResults[i] = s.reconcileFolder(ctx, root, folder)
			return nil
		})
	}
	for i, name := range orphans {
		i, name := i, name
		g.Go(func() error {
			folderResults[len(valid)+i] = s.removeOrphanFolder(ctx, root, name)
			return nil
		})
	}
	_ = g.Wait()

	return append(results, folderResults...)
}

// partitionFolders drops subfolder names that cannot be a directory name
// and, among folders sharing a name, keeps the smallest id.
func (s *Syncer) partitionFolders(root *Root, folders []domain.RemoteFolder) ([]domain.RemoteFolder, []*domain.FolderResult) {
	byName := make(map[string]domain.RemoteFolder, len(folders))
	var rejected []*domain.FolderResult

	for _, f := range folders {
		if err := domain.ValidateName(f.Name); err != nil {
			rejected = append(rejected, &domain.FolderResult{RootID: root.ID, FolderName: f.Name, Err: err})
			continue
		}
		prev, dup := byName[f.Name]
		if !dup {
			byName[f.Name] = f
			continue
		}
		loser := f
		if f.ID < prev.ID {
			byName[f.Name] = f
			loser = prev
		}
		rejected = append(rejected, &domain.FolderResult{
			RootID:     root.ID,
			FolderName: loser.Name,
			Err:        fmt.Errorf("%w: folder id %s", domain.ErrDuplicateName, loser.ID),
		})
	}

	valid := make([]domain.RemoteFolder, 0, len(byName))
	for _, f := range folders {
		if kept, ok := byName[f.Name]; ok && kept.ID == f.ID {
			valid = append(valid, f)
		}
	}
	return valid, rejected
}

// track records the root's current subfolders and hands changes to the tracker
func (s *Syncer) track(root *Root, folders []domain.RemoteFolder) {
	current := make(map[string]domain.FolderRef, len(folders))
	refs := make([]domain.FolderRef, 0, len(folders))
	for _, f := range folders {
		ref := domain.FolderRef{RootID: root.ID, FolderID: f.ID, FolderName: f.Name}
		current[f.ID] = ref
		refs = append(refs, ref)
	}

	s.mu.Lock()
	var gone []string
	for id, ref := range s.known {
		if ref.RootID != root.ID {
			continue
		}
		if _, ok := current[id]; !ok {
			gone = append(gone, id)
			delete(s.known, id)
		}
	}
	for id, ref := range current {
		s.known[id] = ref
	}
	tracker := s.tracker
	s.mu.Unlock()

	if tracker == nil {
		return
	}
	tracker.Track(refs)
	if len(gone) > 0 {
		tracker.Untrack(gone)
	}
}

// reconcileFolder lists one subfolder and reconciles it under the folder's gate
func (s *Syncer) reconcileFolder(ctx context.Context, root *Root, folder domain.RemoteFolder) *domain.FolderResult {
	key := s.store.FolderPath(root.Dir, folder.Name)

	var result *domain.FolderResult
	ran := s.gate.Do(key, func() {
		files, err := s.inventory.ListFiles(ctx, folder)
		if err != nil {
			result = &domain.FolderResult{RootID: root.ID, FolderName: folder.Name, Err: err}
			return
		}
		result = merge(result, s.reconciler.Reconcile(ctx, root, folder.Name, files))
	})
	if !ran {
		return &domain.FolderResult{RootID: root.ID, FolderName: folder.Name, Coalesced: true}
	}
	return result
}

// removeOrphanFolder empties a local folder whose remote folder is gone
func (s *Syncer) removeOrphanFolder(ctx context.Context, root *Root, name string) *domain.FolderResult {
	key := s.store.FolderPath(root.Dir, name)

	var result *domain.FolderResult
	ran := s.gate.Do(key, func() {
		result = s.reconciler.Reconcile(ctx, root, name, nil)
		if !result.Failed() && len(result.Errors) == 0 {
			if err := s.store.RemoveFolder(key); err != nil {
				result.Err = err
			}
		}
	})
	if !ran {
		return &domain.FolderResult{RootID: root.ID, FolderName: name, Coalesced: true}
	}
	return result
}

// merge folds a follow-up run into the result of the run before it.
// File errors of both runs are kept; a file failing in both is reported once.
func merge(prev, next *domain.FolderResult) *domain.FolderResult {
	if prev == nil || prev.Failed() {
		return next
	}
	next.Downloaded += prev.Downloaded
	next.Removed += prev.Removed
	next.BytesDownloaded += prev.BytesDownloaded
	next.Duration += prev.Duration

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, fe := range next.Errors {
		seen.Add(fe.FileName + "\x00" + fe.Identity)
	}
	var earlier []*domain.FileError
	for _, fe := range prev.Errors {
		if seen.Add(fe.FileName + "\x00" + fe.Identity) {
			earlier = append(earlier, fe)
		}
	}
	next.Errors = append(earlier, next.Errors...)
	return next
}

// finish logs the run summary and records it
func (s *Syncer) finish(run *domain.SyncRun) {
	run.FinishedAt = time.Now()
	downloaded, removed, failed := run.Totals()

	var bytes int64
	coalesced := 0
	for _, f := range run.Folders {
		bytes += f.BytesDownloaded
		if f.Coalesced {
			coalesced++
		}
	}

	fields := []zap.Field{
		zap.String("trigger", string(run.Trigger)),
		zap.String("scope", run.Scope),
		zap.Int("folders", len(run.Folders)),
		zap.Int("downloaded", downloaded),
		zap.Int("removed", removed),
		zap.Int("failed", failed),
		zap.Int("coalesced", coalesced),
		zap.String("bytes", humanize.Bytes(uint64(bytes))),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
	}
	if err := run.Error(); err != nil {
		s.logger.Warn("sync run finished with folder failures", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("sync run finished", fields...)
	}

	// a run that only coalesced into another changed nothing worth recording
	if len(run.Folders) > 0 && coalesced == len(run.Folders) {
		return
	}
	if s.runs != nil {
		if err := s.runs.RecordRun(run); err != nil {
			s.logger.Warn("failed to record sync run", zap.Error(err))
		}
	}
}

package syncer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/drive-mirror/internal/adapter/filesystem"
	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// fakeRemote implements port.RemoteDrive over in-memory folders
type fakeRemote struct {
	mu       sync.Mutex
	folders  map[string][]domain.RemoteFolder
	files    map[string][]domain.RemoteFile
	content  map[string]string
	failOpen map[string]bool
	truncate map[string]bool
	hang     map[string]bool
	listErr  map[string]error

	// onList runs inside ListFiles, outside the lock
	onList    func(folderID string, call int)
	listCalls map[string]int
	inflight  map[string]int
	maxFlight map[string]int
}

var _ port.RemoteDrive = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		folders:   make(map[string][]domain.RemoteFolder),
		files:     make(map[string][]domain.RemoteFile),
		content:   make(map[string]string),
		failOpen:  make(map[string]bool),
		truncate:  make(map[string]bool),
		hang:      make(map[string]bool),
		listErr:   make(map[string]error),
		listCalls: make(map[string]int),
		inflight:  make(map[string]int),
		maxFlight: make(map[string]int),
	}
}

func (f *fakeRemote) addFolder(parentID, id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[parentID] = append(f.folders[parentID], domain.RemoteFolder{ID: id, Name: name})
}

func (f *fakeRemote) removeFolder(parentID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.folders[parentID][:0]
	for _, folder := range f.folders[parentID] {
		if folder.ID != id {
			kept = append(kept, folder)
		}
	}
	f.folders[parentID] = kept
}

// setFiles replaces a folder's files; content is keyed by id
func (f *fakeRemote) setFiles(folderID string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[folderID] = nil
	for id, name := range files {
		body := "content-of-" + id
		f.content[id] = body
		f.files[folderID] = append(f.files[folderID], domain.RemoteFile{ID: id, Name: name, Size: int64(len(body))})
	}
}

func (f *fakeRemote) ListFolders(ctx context.Context, parentID string) ([]domain.RemoteFolder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[parentID]; err != nil {
		return nil, err
	}
	return append([]domain.RemoteFolder(nil), f.folders[parentID]...), nil
}

func (f *fakeRemote) ListFiles(ctx context.Context, parentID string, mimePrefixes []string) ([]domain.RemoteFile, error) {
	f.mu.Lock()
	f.listCalls[parentID]++
	call := f.listCalls[parentID]
	f.inflight[parentID]++
	if f.inflight[parentID] > f.maxFlight[parentID] {
		f.maxFlight[parentID] = f.inflight[parentID]
	}
	hook := f.onList
	f.mu.Unlock()

	if hook != nil {
		hook(parentID, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[parentID]--
	if err := f.listErr[parentID]; err != nil {
		return nil, err
	}
	return append([]domain.RemoteFile(nil), f.files[parentID]...), nil
}

func (f *fakeRemote) GetFileContent(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	body, ok := f.content[fileID]
	failOpen := f.failOpen[fileID]
	truncate := f.truncate[fileID]
	hang := f.hang[fileID]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, ctx.Err())
	}
	if !ok || failOpen {
		return nil, 0, fmt.Errorf("%w: get %s: connection reset", domain.ErrRemoteUnavailable, fileID)
	}
	length := int64(len(body))
	if truncate {
		length += 10
	}
	return io.NopCloser(strings.NewReader(body)), length, nil
}

func (f *fakeRemote) Watch(ctx context.Context, req *port.WatchRequest) (*port.WatchResponse, error) {
	return nil, fmt.Errorf("%w: not supported", domain.ErrRemoteUnavailable)
}

func (f *fakeRemote) StopWatch(ctx context.Context, channelID, resourceID string) error {
	return nil
}

func (f *fakeRemote) calls(folderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[folderID]
}

func (f *fakeRemote) maxConcurrent(folderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight[folderID]
}

// fakeRuns records sync runs in memory
type fakeRuns struct {
	mu   sync.Mutex
	runs []*domain.SyncRun
}

func (r *fakeRuns) RecordRun(run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	run.ID = int64(len(r.runs))
	return nil
}

func (r *fakeRuns) ListRecentRuns(limit int) ([]*port.RunRecord, error) {
	return nil, nil
}

func (r *fakeRuns) DeleteRunsBefore(before time.Time) (int, error) {
	return 0, nil
}

func (r *fakeRuns) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// fakeTracker records tracked folder refs
type fakeTracker struct {
	mu        sync.Mutex
	tracked   map[string]domain.FolderRef
	untracked []string
}

func (t *fakeTracker) Track(refs []domain.FolderRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ref := range refs {
		t.tracked[ref.FolderID] = ref
	}
}

func (t *fakeTracker) Untrack(folderIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range folderIDs {
		delete(t.tracked, id)
	}
	t.untracked = append(t.untracked, folderIDs...)
}

const (
	testRootID  = "ROOT"
	testRootDir = "/mirror/site"
)

type testEnv struct {
	syncer *Syncer
	remote *fakeRemote
	store  *filesystem.Manager
	fs     afero.Fs
	runs   *fakeRuns
}

func newTestEnv(t *testing.T, allowed ...string) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	store, err := filesystem.NewManagerWithFs(fs, "/mirror", 1024)
	require.NoError(t, err)

	remote := newFakeRemote()
	runs := &fakeRuns{}
	cfg := &Config{
		FolderConcurrency: 2,
		ListTimeout:       time.Second,
		FetchTimeout:      time.Second,
	}
	s := New(cfg, []*Root{NewRoot(testRootID, testRootDir, allowed)}, remote, store, runs, nil, zap.NewNop())

	return &testEnv{syncer: s, remote: remote, store: store, fs: fs, runs: runs}
}

// localPairs returns the (name, identity) pairs mirrored in a folder
func (e *testEnv) localPairs(t *testing.T, folder string) map[string]string {
	t.Helper()
	entries, err := e.store.ReadFolder(e.store.FolderPath(testRootDir, folder))
	require.NoError(t, err)

	pairs := make(map[string]string, len(entries))
	for _, entry := range entries {
		pairs[entry.FileName] = entry.SourceIdentity
	}
	return pairs
}

func (e *testEnv) readLocal(t *testing.T, folder, name string) string {
	t.Helper()
	data, err := afero.ReadFile(e.fs, e.store.EntryPath(testRootDir, folder, name))
	require.NoError(t, err)
	return string(data)
}

package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

const (
	// SidecarSuffix is appended to a content file name to name its metadata record
	SidecarSuffix = ".meta.json"

	// TempSuffix marks uncommitted downloads
	TempSuffix = ".downloading"

	// lockPrefix names the lock and database files kept in the mirror root
	lockPrefix = ".drive-mirror"

	defaultBufferSize = 256 * 1024
)

// sidecar is the on-disk metadata record of one mirrored file
type sidecar struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Folder   string    `json:"folder"`
	MimeType string    `json:"mime_type,omitempty"`
	Size     int64     `json:"size"`
	SyncedAt time.Time `json:"synced_at"`
}

// Manager is the local mirror store
type Manager struct {
	fs         afero.Fs
	rootDir    string
	bufferSize int
	now        func() time.Time
}

// Ensure Manager implements port.MirrorStore
var _ port.MirrorStore = (*Manager)(nil)

// NewManager creates a mirror store on the OS filesystem
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithFs(afero.NewOsFs(), rootDir, defaultBufferSize)
}

// NewManagerWithFs creates a mirror store on the given filesystem with a custom copy buffer size
func NewManagerWithFs(fs afero.Fs, rootDir string, bufferSize int) (*Manager, error) {
	if err := fs.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &Manager{
		fs:         fs,
		rootDir:    rootDir,
		bufferSize: bufferSize,
		now:        time.Now,
	}, nil
}

// RootDir returns the mirror root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// FolderPath returns the local directory mirroring a remote folder of a root
func (m *Manager) FolderPath(rootDir, folderName string) string {
	return filepath.Join(rootDir, folderName)
}

// EntryPath returns the local content path of a file in a folder
func (m *Manager) EntryPath(rootDir, folderName, fileName string) string {
	return filepath.Join(rootDir, folderName, fileName)
}

// SidecarPath returns the metadata path paired with a content path
func SidecarPath(contentPath string) string {
	return contentPath + SidecarSuffix
}

// IsReservedName returns true for names the store uses for its own bookkeeping
func IsReservedName(name string) bool {
	return strings.HasSuffix(name, SidecarSuffix) || strings.HasSuffix(name, TempSuffix) || strings.HasPrefix(name, lockPrefix)
}

// ReadFolder returns one entry per content file in folderPath, sorted by name.
// A sidecar whose content file is gone yields an entry without provenance
// so the reconciler replaces or removes it.
func (m *Manager) ReadFolder(folderPath string) ([]*domain.MirrorEntry, error) {
	infos, err := afero.ReadDir(m.fs, folderPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read folder %s: %v", domain.ErrLocalStore, folderPath, err)
	}

	folderName := filepath.Base(folderPath)
	atRoot := m.isMirrorRoot(folderPath)
	contents := make(map[string]os.FileInfo)
	sidecars := make(map[string]bool)

	for _, info := range infos {
		name := info.Name()
		switch {
		case info.IsDir(), strings.HasSuffix(name, TempSuffix):
			continue
		case atRoot && strings.HasPrefix(name, lockPrefix):
			continue
		case strings.HasSuffix(name, SidecarSuffix):
			sidecars[strings.TrimSuffix(name, SidecarSuffix)] = true
		default:
			contents[name] = info
		}
	}

	entries := make([]*domain.MirrorEntry, 0, len(contents))
	for name, info := range contents {
		entry := &domain.MirrorEntry{
			FileName:   name,
			FolderName: folderName,
			LocalPath:  filepath.Join(folderPath, name),
			Size:       info.Size(),
		}
		if sidecars[name] {
			if meta, err := m.readSidecar(SidecarPath(entry.LocalPath)); err == nil && meta.Name == name {
				entry.SourceIdentity = meta.ID
				entry.MimeType = meta.MimeType
				syncedAt := meta.SyncedAt
				entry.SyncedAt = &syncedAt
			}
		}
		entries = append(entries, entry)
	}

	for name := range sidecars {
		if _, ok := contents[name]; ok {
			continue
		}
		entries = append(entries, &domain.MirrorEntry{
			FileName:   name,
			FolderName: folderName,
			LocalPath:  filepath.Join(folderPath, name),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].FileName < entries[j].FileName })
	return entries, nil
}

func (m *Manager) readSidecar(path string) (*sidecar, error) {
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, err
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.ID == "" {
		return nil, fmt.Errorf("sidecar %s has no id", path)
	}
	return &meta, nil
}

// ListFolders returns the names of the folder directories under rootDir
func (m *Manager) ListFolders(rootDir string) ([]string, error) {
	infos, err := afero.ReadDir(m.fs, rootDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list folders %s: %v", domain.ErrLocalStore, rootDir, err)
	}

	atRoot := m.isMirrorRoot(rootDir)
	var names []string
	for _, info := range infos {
		if !info.IsDir() || (atRoot && IsReservedName(info.Name())) {
			continue
		}
		names = append(names, info.Name())
	}
	return names, nil
}

// isMirrorRoot reports whether dir is the directory holding the lock and database files
func (m *Manager) isMirrorRoot(dir string) bool {
	return filepath.Clean(dir) == filepath.Clean(m.rootDir)
}

// Write streams content into a temp file next to the target, writes the
// sidecar to its own temp file, then renames content and sidecar into place.
// A sidecar is never committed for content that did not fully land.
func (m *Manager) Write(entry *domain.MirrorEntry, content io.Reader) (int64, error) {
	if entry.SourceIdentity == "" {
		return 0, fmt.Errorf("%w: entry %s has no source identity", domain.ErrInvalidInput, entry.FileName)
	}

	if err := m.fs.MkdirAll(filepath.Dir(entry.LocalPath), 0755); err != nil {
		return 0, fmt.Errorf("%w: create parent dir: %v", domain.ErrLocalStore, err)
	}

	contentTemp := entry.LocalPath + TempSuffix
	sidecarFinal := SidecarPath(entry.LocalPath)
	sidecarTemp := sidecarFinal + TempSuffix

	written, err := m.writeTemp(contentTemp, content)
	if err != nil {
		m.fs.Remove(contentTemp)
		return 0, err
	}

	now := m.now()
	entry.Size = written
	entry.SyncedAt = &now

	data, err := json.MarshalIndent(&sidecar{
		ID:       entry.SourceIdentity,
		Name:     entry.FileName,
		Folder:   entry.FolderName,
		MimeType: entry.MimeType,
		Size:     written,
		SyncedAt: now,
	}, "", "  ")
	if err != nil {
		m.fs.Remove(contentTemp)
		return 0, fmt.Errorf("%w: encode sidecar: %v", domain.ErrLocalStore, err)
	}

	if err := afero.WriteFile(m.fs, sidecarTemp, data, 0644); err != nil {
		m.fs.Remove(contentTemp)
		m.fs.Remove(sidecarTemp)
		return 0, fmt.Errorf("%w: write sidecar: %v", domain.ErrLocalStore, err)
	}

	if err := m.fs.Rename(contentTemp, entry.LocalPath); err != nil {
		m.fs.Remove(contentTemp)
		m.fs.Remove(sidecarTemp)
		return 0, fmt.Errorf("%w: commit content: %v", domain.ErrLocalStore, err)
	}

	if err := m.fs.Rename(sidecarTemp, sidecarFinal); err != nil {
		// Content without a sidecar reads back as unknown provenance
		// and is replaced on the next pass.
		m.fs.Remove(sidecarTemp)
		m.fs.Remove(entry.LocalPath)
		return 0, fmt.Errorf("%w: commit sidecar: %v", domain.ErrLocalStore, err)
	}

	return written, nil
}

func (m *Manager) writeTemp(path string, content io.Reader) (int64, error) {
	f, err := m.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %v", domain.ErrLocalStore, err)
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, content, buf)
	if err != nil {
		f.Close()
		if errors.Is(err, domain.ErrDownloadFailed) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: write temp file: %v", domain.ErrLocalStore, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("%w: sync temp file: %v", domain.ErrLocalStore, err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("%w: close temp file: %v", domain.ErrLocalStore, err)
	}

	return written, nil
}

// Remove deletes the sidecar and then the content of an entry
func (m *Manager) Remove(entry *domain.MirrorEntry) error {
	if err := m.removeIfExists(SidecarPath(entry.LocalPath)); err != nil {
		return fmt.Errorf("%w: remove sidecar: %v", domain.ErrLocalStore, err)
	}
	if err := m.removeIfExists(entry.LocalPath); err != nil {
		return fmt.Errorf("%w: remove content: %v", domain.ErrLocalStore, err)
	}
	return nil
}

// RemoveFolder deletes an emptied folder directory
func (m *Manager) RemoveFolder(folderPath string) error {
	infos, err := afero.ReadDir(m.fs, folderPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read folder: %v", domain.ErrLocalStore, err)
	}
	if len(infos) > 0 {
		return nil
	}
	if err := m.removeIfExists(folderPath); err != nil {
		return fmt.Errorf("%w: remove folder: %v", domain.ErrLocalStore, err)
	}
	return nil
}

func (m *Manager) removeIfExists(path string) error {
	if err := m.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := m.now().Add(-olderThan)

	err := afero.Walk(m.fs, m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, TempSuffix) && info.ModTime().Before(threshold) {
			if removeErr := m.fs.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

// MirrorSize returns total size of mirrored content, excluding sidecars and temp files
func (m *Manager) MirrorSize() (int64, error) {
	var size int64
	err := afero.Walk(m.fs, m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, SidecarSuffix) || strings.HasSuffix(path, TempSuffix) {
			return nil
		}
		if m.isMirrorRoot(filepath.Dir(path)) && strings.HasPrefix(info.Name(), lockPrefix) {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}

func newDiskUsage(total, free uint64) *port.DiskUsage {
	usage := &port.DiskUsage{Total: total, Free: free}
	if free < total {
		usage.Used = total - free
	}
	if total > 0 {
		usage.UsedPct = float64(usage.Used) / float64(total) * 100
	}
	return usage
}

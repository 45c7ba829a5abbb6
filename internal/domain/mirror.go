package domain

import "time"

// MirrorEntry is one locally mirrored file. SourceIdentity ties the
// local bytes to the exact remote object they came from; an empty
// identity means unknown provenance.
type MirrorEntry struct {
	FileName       string
	FolderName     string
	SourceIdentity string
	LocalPath      string
	MimeType       string
	Size           int64
	SyncedAt       *time.Time
}

// HasProvenance returns true if the entry's origin is known
func (e *MirrorEntry) HasProvenance() bool {
	return e.SourceIdentity != ""
}

// Matches returns true if the entry mirrors exactly the given remote file
func (e *MirrorEntry) Matches(f *RemoteFile) bool {
	return e.FileName == f.Name && e.SourceIdentity != "" && e.SourceIdentity == f.ID
}

// NewMirrorEntry builds the entry a download of f into localPath will record
func NewMirrorEntry(f *RemoteFile, localPath string) *MirrorEntry {
	return &MirrorEntry{
		FileName:       f.Name,
		FolderName:     f.FolderName,
		SourceIdentity: f.ID,
		LocalPath:      localPath,
		MimeType:       f.MimeType,
		Size:           f.Size,
	}
}

package domain

import "strings"

// RemoteFile describes one file in a remote folder. Produced fresh on
// every inventory read and never persisted.
type RemoteFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FolderName string `json:"folder"`
	MimeType   string `json:"-"`
	Size       int64  `json:"-"`
}

// RemoteFolder is a direct child folder of a managed root.
type RemoteFolder struct {
	ID   string
	Name string
}

// FolderRef identifies a reconcile scope: a single subfolder of a root,
// or the root itself when FolderID equals RootID.
type FolderRef struct {
	RootID     string
	FolderID   string
	FolderName string
}

// IsRoot returns true if the ref targets the whole root
func (r FolderRef) IsRoot() bool {
	return r.FolderID == r.RootID
}

// RootRef returns a ref that scopes a whole root
func RootRef(rootID string) FolderRef {
	return FolderRef{RootID: rootID, FolderID: rootID}
}

// ValidateName rejects names that cannot be stored as a single path
// element next to their sidecar.
func ValidateName(name string, reservedSuffixes ...string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidName
	}
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return ErrInvalidName
		}
	}
	return nil
}

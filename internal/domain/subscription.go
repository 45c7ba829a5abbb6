package domain

import "time"

// WatchSubscription is one registered notification channel for a folder.
// The remote drive expires it unilaterally at ExpiresAt.
type WatchSubscription struct {
	ID           string // channel id, unique per registration
	FolderID     string
	FolderName   string
	RootID       string
	ResourceID   string // opaque id assigned by the remote drive, needed to stop the channel
	RegisteredAt time.Time
	ExpiresAt    time.Time
}

// Ref returns the reconcile scope the subscription feeds
func (s *WatchSubscription) Ref() FolderRef {
	return FolderRef{RootID: s.RootID, FolderID: s.FolderID, FolderName: s.FolderName}
}

// IsExpired returns true if the remote drive no longer delivers on this channel
func (s *WatchSubscription) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRenewal returns true if the subscription expires within renewBefore
func (s *WatchSubscription) NeedsRenewal(now time.Time, renewBefore time.Duration) bool {
	return !now.Add(renewBefore).Before(s.ExpiresAt)
}

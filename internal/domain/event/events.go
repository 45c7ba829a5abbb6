package event

import (
	"time"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// FileMirrored is raised when a remote file is committed to the local mirror
type FileMirrored struct {
	BaseEvent
	RootID     string
	FolderName string
	FileName   string
	Identity   string
	Size       int64
	Replaced   bool // an entry with a different identity was removed first
}

// EventName returns the event name
func (e FileMirrored) EventName() string {
	return "file.mirrored"
}

// NewFileMirrored creates a new FileMirrored event
func NewFileMirrored(rootID, folderName, fileName, identity string, size int64, replaced bool) FileMirrored {
	return FileMirrored{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		RootID:     rootID,
		FolderName: folderName,
		FileName:   fileName,
		Identity:   identity,
		Size:       size,
		Replaced:   replaced,
	}
}

// FileRemoved is raised when a local entry is removed from the mirror
type FileRemoved struct {
	BaseEvent
	RootID     string
	FolderName string
	FileName   string
	Identity   string
	Reason     string // "orphan" or "stale"
}

// EventName returns the event name
func (e FileRemoved) EventName() string {
	return "file.removed"
}

// NewFileRemoved creates a new FileRemoved event
func NewFileRemoved(rootID, folderName, fileName, identity, reason string) FileRemoved {
	return FileRemoved{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		RootID:     rootID,
		FolderName: folderName,
		FileName:   fileName,
		Identity:   identity,
		Reason:     reason,
	}
}

// FileFailed is raised when one file could not be reconciled
type FileFailed struct {
	BaseEvent
	RootID     string
	FolderName string
	FileName   string
	Identity   string
	Reason     string
	Error      string
}

// EventName returns the event name
func (e FileFailed) EventName() string {
	return "file.failed"
}

// NewFileFailed creates a new FileFailed event
func NewFileFailed(rootID, folderName, fileName, identity, reason string, err error) FileFailed {
	return FileFailed{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		RootID:     rootID,
		FolderName: folderName,
		FileName:   fileName,
		Identity:   identity,
		Reason:     reason,
		Error:      err.Error(),
	}
}

// FolderReconciled is raised when a folder reconcile run finishes
type FolderReconciled struct {
	BaseEvent
	RootID     string
	FolderName string
	Downloaded int
	Removed    int
	Failed     int
	Aborted    bool
	Duration   time.Duration
}

// EventName returns the event name
func (e FolderReconciled) EventName() string {
	return "folder.reconciled"
}

// NewFolderReconciled creates a new FolderReconciled event
func NewFolderReconciled(rootID, folderName string, downloaded, removed, failed int, aborted bool, duration time.Duration) FolderReconciled {
	return FolderReconciled{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		RootID:     rootID,
		FolderName: folderName,
		Downloaded: downloaded,
		Removed:    removed,
		Failed:     failed,
		Aborted:    aborted,
		Duration:   duration,
	}
}

// SubscriptionRegistered is raised when a watch channel is registered or renewed
type SubscriptionRegistered struct {
	BaseEvent
	ChannelID  string
	FolderID   string
	FolderName string
	ExpiresAt  time.Time
	Renewal    bool
}

// EventName returns the event name
func (e SubscriptionRegistered) EventName() string {
	return "subscription.registered"
}

// NewSubscriptionRegistered creates a new SubscriptionRegistered event
func NewSubscriptionRegistered(channelID, folderID, folderName string, expiresAt time.Time, renewal bool) SubscriptionRegistered {
	return SubscriptionRegistered{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		ChannelID:  channelID,
		FolderID:   folderID,
		FolderName: folderName,
		ExpiresAt:  expiresAt,
		Renewal:    renewal,
	}
}

// SubscriptionFailed is raised when registration gave up after all attempts
type SubscriptionFailed struct {
	BaseEvent
	FolderID   string
	FolderName string
	Attempts   int
	Error      string
}

// EventName returns the event name
func (e SubscriptionFailed) EventName() string {
	return "subscription.failed"
}

// NewSubscriptionFailed creates a new SubscriptionFailed event
func NewSubscriptionFailed(folderID, folderName string, attempts int, err error) SubscriptionFailed {
	return SubscriptionFailed{
		BaseEvent:  BaseEvent{Timestamp: time.Now()},
		FolderID:   folderID,
		FolderName: folderName,
		Attempts:   attempts,
		Error:      err.Error(),
	}
}

// NotificationReceived is raised for every inbound change notification
type NotificationReceived struct {
	BaseEvent
	ChannelID string
	State     string
	Result    string // "dispatched", "ignored", "unknown_channel", "rejected"
}

// EventName returns the event name
func (e NotificationReceived) EventName() string {
	return "notification.received"
}

// NewNotificationReceived creates a new NotificationReceived event
func NewNotificationReceived(channelID, state, result string) NotificationReceived {
	return NotificationReceived{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		ChannelID: channelID,
		State:     state,
		Result:    result,
	}
}

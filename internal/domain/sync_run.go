package domain

import (
	"errors"
	"time"
)

// Trigger names what started a sync run
type Trigger string

const (
	TriggerStartup      Trigger = "startup"
	TriggerScheduled    Trigger = "scheduled"
	TriggerNotification Trigger = "notification"
	TriggerAdmin        Trigger = "admin"
	TriggerCLI          Trigger = "cli"
)

// FolderResult summarizes one reconcile(folder) call.
type FolderResult struct {
	RootID          string
	FolderName      string
	Downloaded      int
	Removed         int
	BytesDownloaded int64
	Errors          []*FileError
	// Err is set when the folder run aborted, e.g. the listing failed.
	Err       error
	Coalesced bool
	Duration  time.Duration
}

// Failed returns true if the folder run aborted
func (r *FolderResult) Failed() bool {
	return r.Err != nil
}

// Changed returns true if the run touched the mirror
func (r *FolderResult) Changed() bool {
	return r.Downloaded > 0 || r.Removed > 0
}

// SyncRun aggregates folder results for one trigger.
type SyncRun struct {
	ID         int64
	Trigger    Trigger
	Scope      string
	StartedAt  time.Time
	FinishedAt time.Time
	Folders    []*FolderResult
	// Err is set when the run could not enumerate its scope at all.
	Err error
}

// Totals returns downloaded, removed and per-file failure counts
func (r *SyncRun) Totals() (downloaded, removed, failed int) {
	for _, f := range r.Folders {
		downloaded += f.Downloaded
		removed += f.Removed
		failed += len(f.Errors)
	}
	return downloaded, removed, failed
}

// FolderFailures returns the number of folders whose run aborted
func (r *SyncRun) FolderFailures() int {
	n := 0
	for _, f := range r.Folders {
		if f.Failed() {
			n++
		}
	}
	return n
}

// Error joins every folder-level failure of the run, or nil
func (r *SyncRun) Error() error {
	errs := []error{r.Err}
	for _, f := range r.Folders {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

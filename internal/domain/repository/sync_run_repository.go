package repository

import (
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// RunRecord is the persisted summary of one sync run
type RunRecord struct {
	ID              int64     `json:"id"`
	Trigger         string    `json:"trigger"`
	Scope           string    `json:"scope"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Folders         int       `json:"folders"`
	Downloaded      int       `json:"downloaded"`
	Removed         int       `json:"removed"`
	FileFailures    int       `json:"file_failures"`
	FolderFailures  int       `json:"folder_failures"`
	BytesDownloaded int64     `json:"bytes_downloaded"`
	LastError       string    `json:"last_error,omitempty"`
}

// SyncRunRepository records sync run history
type SyncRunRepository interface {
	// RecordRun stores the summary of a finished run and sets run.ID
	RecordRun(run *domain.SyncRun) error

	// ListRecentRuns returns the newest runs first
	ListRecentRuns(limit int) ([]*RunRecord, error)

	// DeleteRunsBefore removes runs that finished before the given time
	DeleteRunsBefore(before time.Time) (int, error)
}

package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/domain/repository"
)

// RecordRun stores the summary of a finished run and sets run.ID
func (s *Store) RecordRun(run *domain.SyncRun) error {
	downloaded, removed, failed := run.Totals()

	var bytes int64
	for _, f := range run.Folders {
		bytes += f.BytesDownloaded
	}

	var lastError sql.NullString
	if err := run.Error(); err != nil {
		lastError = sql.NullString{String: err.Error(), Valid: true}
	}

	query := `
		INSERT INTO sync_runs (trigger_name, scope, started_at, finished_at, folders, downloaded, removed,
			file_failures, folder_failures, bytes_downloaded, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		string(run.Trigger), run.Scope, toMillis(run.StartedAt), toMillis(run.FinishedAt),
		len(run.Folders), downloaded, removed, failed, run.FolderFailures(), bytes, lastError,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

// ListRecentRuns returns the newest runs first
func (s *Store) ListRecentRuns(limit int) ([]*repository.RunRecord, error) {
	query := `
		SELECT id, trigger_name, scope, started_at, finished_at, folders, downloaded, removed,
			file_failures, folder_failures, bytes_downloaded, last_error
		FROM sync_runs
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*repository.RunRecord
	for rows.Next() {
		rec := &repository.RunRecord{}
		var startedAt, finishedAt int64
		var lastError sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.Trigger, &rec.Scope, &startedAt, &finishedAt, &rec.Folders,
			&rec.Downloaded, &rec.Removed, &rec.FileFailures, &rec.FolderFailures,
			&rec.BytesDownloaded, &lastError,
		); err != nil {
			return nil, err
		}

		rec.StartedAt = fromMillis(startedAt)
		rec.FinishedAt = fromMillis(finishedAt)
		if lastError.Valid {
			rec.LastError = lastError.String
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// DeleteRunsBefore removes runs that finished before the given time
func (s *Store) DeleteRunsBefore(before time.Time) (int, error) {
	result, err := s.db.Exec("DELETE FROM sync_runs WHERE finished_at < ?", toMillis(before))
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

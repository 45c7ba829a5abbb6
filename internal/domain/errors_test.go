package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFileError_Error(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		identity string
		err      error
		want     string
	}{
		{
			name:     "with identity",
			fileName: "logo.png",
			identity: "R1",
			err:      ErrDownloadFailed,
			want:     "logo.png (R1): download failed",
		},
		{
			name:     "without identity",
			fileName: "stray.jpg",
			err:      ErrLocalStore,
			want:     "stray.jpg: local store error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := NewFileError(tt.fileName, tt.identity, tt.err)
			if got := fe.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileError_Unwrap(t *testing.T) {
	wrapped := fmt.Errorf("%w: connection reset", ErrDownloadFailed)
	fe := NewFileError("clip.mp4", "V1", wrapped)

	if !errors.Is(fe, ErrDownloadFailed) {
		t.Error("FileError should unwrap to ErrDownloadFailed")
	}
}

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with underlying error",
			err:  errors.New("connection timeout"),
			want: "connection timeout",
		},
		{
			name: "nil error",
			err:  nil,
			want: "retryable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := NewRetryableError(tt.err, time.Second)
			if got := re.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  NewRetryableError(errors.New("err"), time.Second),
			want: true,
		},
		{
			name: "wrapped remote unavailable",
			err:  fmt.Errorf("list folders: %w", ErrRemoteUnavailable),
			want: true,
		},
		{
			name: "download failed",
			err:  NewFileError("a.png", "R1", ErrDownloadFailed),
			want: true,
		},
		{
			name: "local store error",
			err:  fmt.Errorf("%w: disk full", ErrLocalStore),
			want: false,
		},
		{
			name: "subscription failed",
			err:  ErrSubscriptionFailed,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetRetryAfter(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOk       bool
	}{
		{
			name:         "retryable error",
			err:          NewRetryableError(ErrRemoteUnavailable, 5*time.Minute),
			wantDuration: 5 * time.Minute,
			wantOk:       true,
		},
		{
			name:         "wrapped retryable error",
			err:          fmt.Errorf("wrapped: %w", NewRetryableError(errors.New("err"), 30*time.Second)),
			wantDuration: 30 * time.Second,
			wantOk:       true,
		},
		{
			name:         "plain sentinel",
			err:          ErrRemoteUnavailable,
			wantDuration: 0,
			wantOk:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, ok := GetRetryAfter(tt.err)
			if duration != tt.wantDuration || ok != tt.wantOk {
				t.Errorf("GetRetryAfter() = (%v, %v), want (%v, %v)",
					duration, ok, tt.wantDuration, tt.wantOk)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain", input: "logo.png"},
		{name: "spaces and unicode", input: "สบู่ 01.jpg"},
		{name: "empty", input: "", wantErr: true},
		{name: "dot", input: ".", wantErr: true},
		{name: "dotdot", input: "..", wantErr: true},
		{name: "slash", input: "a/b.png", wantErr: true},
		{name: "backslash", input: `a\b.png`, wantErr: true},
		{name: "reserved suffix", input: "x.meta.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, ".meta.json", ".downloading")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error = %v, want ErrInvalidName", tt.input, err)
			}
		})
	}
}

func TestWatchSubscription_NeedsRenewal(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	sub := &WatchSubscription{ID: "c1", ExpiresAt: now.Add(3 * time.Hour)}

	if sub.NeedsRenewal(now, 2*time.Hour) {
		t.Error("subscription expiring in 3h should not need renewal with 2h window")
	}
	if !sub.NeedsRenewal(now, 3*time.Hour) {
		t.Error("subscription expiring exactly at the window edge should need renewal")
	}
	if sub.IsExpired(now) {
		t.Error("subscription should not be expired yet")
	}
	if !sub.IsExpired(now.Add(3 * time.Hour)) {
		t.Error("subscription should be expired at ExpiresAt")
	}
}

func TestSyncRun_Totals(t *testing.T) {
	run := &SyncRun{
		Folders: []*FolderResult{
			{FolderName: "Logo", Downloaded: 2, Removed: 1},
			{FolderName: "Video", Downloaded: 1, Errors: []*FileError{NewFileError("a.mp4", "V1", ErrDownloadFailed)}},
			{FolderName: "Banner", Err: ErrRemoteUnavailable},
		},
	}

	downloaded, removed, failed := run.Totals()
	if downloaded != 3 || removed != 1 || failed != 1 {
		t.Errorf("Totals() = (%d, %d, %d), want (3, 1, 1)", downloaded, removed, failed)
	}
	if got := run.FolderFailures(); got != 1 {
		t.Errorf("FolderFailures() = %d, want 1", got)
	}
	if !errors.Is(run.Error(), ErrRemoteUnavailable) {
		t.Errorf("Error() = %v, want ErrRemoteUnavailable", run.Error())
	}

	clean := &SyncRun{Folders: []*FolderResult{{FolderName: "Logo"}}}
	if clean.Error() != nil {
		t.Errorf("Error() = %v, want nil", clean.Error())
	}
}

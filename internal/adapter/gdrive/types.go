package gdrive

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/vertextoedge/drive-mirror/internal/domain"
)

// FolderMimeType is the MIME type Drive assigns to folders
const FolderMimeType = "application/vnd.google-apps.folder"

const (
	listFields   = "nextPageToken, files(id, name, mimeType, size)"
	folderFields = "nextPageToken, files(id, name)"
	channelType  = "web_hook"
)

// wrapError classifies a Drive API error as remote unavailability.
// Throttling responses carry their Retry-After hint.
func wrapError(op string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %v", domain.ErrRemoteUnavailable, op, err)

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && isThrottled(apiErr) {
		return domain.NewRetryableError(wrapped, retryAfter(apiErr.Header))
	}
	return wrapped
}

func isThrottled(apiErr *googleapi.Error) bool {
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if apiErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// StatusCode returns the HTTP status of a Drive API error, or 0
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// Fetcher streams one remote file's content
type Fetcher struct {
	remote  port.RemoteDrive
	timeout time.Duration
}

// NewFetcher creates a Fetcher; timeout bounds the whole transfer
func NewFetcher(remote port.RemoteDrive, timeout time.Duration) *Fetcher {
	return &Fetcher{remote: remote, timeout: timeout}
}

// Fetch opens the content of f. Every error, from opening or from reading
// the returned stream, wraps domain.ErrDownloadFailed. A stream that ends
// short of its announced length fails instead of returning io.EOF.
func (f *Fetcher) Fetch(ctx context.Context, file *domain.RemoteFile) (io.ReadCloser, error) {
	var cancel context.CancelFunc
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	body, length, err := f.remote.GetFileContent(ctx, file.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrDownloadFailed, file.ID, err)
	}

	if length < 0 && file.Size > 0 {
		length = file.Size
	}

	return &verifiedReader{
		body:     body,
		expected: length,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// verifiedReader counts bytes and maps transport failures and truncation to ErrDownloadFailed
type verifiedReader struct {
	body     io.ReadCloser
	expected int64
	read     int64
	ctx      context.Context
	cancel   context.CancelFunc
}

func (r *verifiedReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.read += int64(n)

	switch {
	case err == nil:
		if r.expected >= 0 && r.read > r.expected {
			return n, fmt.Errorf("%w: received more than %d bytes", domain.ErrDownloadFailed, r.expected)
		}
		return n, nil
	case errors.Is(err, io.EOF):
		if r.expected >= 0 && r.read != r.expected {
			return n, fmt.Errorf("%w: truncated after %d of %d bytes: %w", domain.ErrDownloadFailed, r.read, r.expected, io.ErrUnexpectedEOF)
		}
		return n, io.EOF
	default:
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return n, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
}

func (r *verifiedReader) Close() error {
	defer r.cancel()
	return r.body.Close()
}

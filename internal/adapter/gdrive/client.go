package gdrive

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/vertextoedge/drive-mirror/internal/port"
)

// ClientConfig contains Drive client configuration
type ClientConfig struct {
	CredentialsFile string
	PageSize        int64
}

// Client is a Google Drive v3 client
type Client struct {
	svc      *drive.Service
	pageSize int64
	logger   *zap.Logger
}

// Ensure Client implements port.RemoteDrive
var _ port.RemoteDrive = (*Client)(nil)

// NewClient creates a Drive client authenticated with a service account key
func NewClient(ctx context.Context, cfg *ClientConfig, logger *zap.Logger) (*Client, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return NewClientWithService(svc, cfg.PageSize, logger), nil
}

// NewClientWithService wraps an existing Drive service
func NewClientWithService(svc *drive.Service, pageSize int64, logger *zap.Logger) *Client {
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 100
	}
	return &Client{
		svc:      svc,
		pageSize: pageSize,
		logger:   logger,
	}
}

package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/vertextoedge/drive-mirror/internal/domain"
	"github.com/vertextoedge/drive-mirror/internal/port"
)

// ListFolders returns the direct child folders of parentID
func (c *Client) ListFolders(ctx context.Context, parentID string) ([]domain.RemoteFolder, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", escapeQuery(parentID), FolderMimeType)

	var folders []domain.RemoteFolder
	err := c.list(ctx, q, folderFields, func(f *drive.File) {
		folders = append(folders, domain.RemoteFolder{ID: f.Id, Name: f.Name})
	})
	if err != nil {
		return nil, wrapError("list folders", err)
	}

	c.logger.Debug("listed folders",
		zap.String("parent_id", parentID),
		zap.Int("count", len(folders)))

	return folders, nil
}

// ListFiles returns the non-folder children of parentID
func (c *Client) ListFiles(ctx context.Context, parentID string, mimePrefixes []string) ([]domain.RemoteFile, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", escapeQuery(parentID), FolderMimeType)
	if len(mimePrefixes) > 0 {
		clauses := make([]string, len(mimePrefixes))
		for i, prefix := range mimePrefixes {
			clauses[i] = fmt.Sprintf("mimeType contains '%s'", escapeQuery(prefix))
		}
		q += " and (" + strings.Join(clauses, " or ") + ")"
	}

	var files []domain.RemoteFile
	err := c.list(ctx, q, listFields, func(f *drive.File) {
		// "contains" matches anywhere in the MIME type
		if !hasAnyPrefix(f.MimeType, mimePrefixes) {
			return
		}
		files = append(files, domain.RemoteFile{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	})
	if err != nil {
		return nil, wrapError("list files", err)
	}

	c.logger.Debug("listed files",
		zap.String("parent_id", parentID),
		zap.Int("count", len(files)))

	return files, nil
}

// list pages through every result of a files.list query
func (c *Client) list(ctx context.Context, q, fields string, fn func(*drive.File)) error {
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(q).
			Fields(googleapi.Field(fields)).
			PageSize(c.pageSize).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}

		for _, f := range resp.Files {
			if f == nil || f.Id == "" {
				continue
			}
			fn(f)
		}

		if resp.NextPageToken == "" {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetFileContent opens a stream of the file's bytes
func (c *Client) GetFileContent(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	resp, err := c.svc.Files.Get(fileID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, 0, wrapError("download", err)
	}
	return resp.Body, resp.ContentLength, nil
}

// Watch registers a web hook channel on a folder
func (c *Client) Watch(ctx context.Context, req *port.WatchRequest) (*port.WatchResponse, error) {
	channel := &drive.Channel{
		Id:      req.ChannelID,
		Type:    channelType,
		Address: req.Address,
		Token:   req.Token,
	}
	if req.TTL > 0 {
		channel.Expiration = time.Now().Add(req.TTL).UnixMilli()
	}

	resp, err := c.svc.Files.Watch(req.FolderID, channel).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("watch", err)
	}

	out := &port.WatchResponse{ResourceID: resp.ResourceId}
	if resp.Expiration > 0 {
		out.ExpiresAt = time.UnixMilli(resp.Expiration)
	} else {
		out.ExpiresAt = time.Now().Add(req.TTL)
	}

	c.logger.Debug("watch channel registered",
		zap.String("folder_id", req.FolderID),
		zap.String("channel_id", req.ChannelID),
		zap.Time("expires_at", out.ExpiresAt))

	return out, nil
}

// StopWatch stops a channel so Drive stops delivering to it
func (c *Client) StopWatch(ctx context.Context, channelID, resourceID string) error {
	err := c.svc.Channels.Stop(&drive.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
	if err != nil {
		return wrapError("stop channel", err)
	}
	return nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

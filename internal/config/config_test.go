package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
drive:
  credentials_file: /secrets/sa.json
mirror:
  root_dir: /srv/public
  roots:
    - folder_id: ROOT-A
      local_dir: site-a
      allowed_folders: [Logo, Video]
    - folder_id: ROOT-B
      local_dir: site-b
notify:
  callback_url: https://mirror.example.com/notifications
  channel_token: s3cret
logging:
  level: debug
  format: text
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	return cfg
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "/secrets/sa.json", cfg.Drive.CredentialsFile)
	assert.Equal(t, 100, cfg.Drive.PageSize)
	assert.Equal(t, []string{"image/", "video/"}, cfg.Drive.MediaPrefixes())
	require.Len(t, cfg.Mirror.Roots, 2)
	assert.Equal(t, []string{"Logo", "Video"}, cfg.Mirror.Roots[0].AllowedFolders)
	assert.Empty(t, cfg.Mirror.Roots[1].AllowedFolders)
	assert.Equal(t, 4, cfg.Mirror.FolderConcurrency)
	assert.Equal(t, 256*1024, cfg.Mirror.GetBufferSize())
	assert.Zero(t, cfg.Mirror.GetMaxSizeBytes())
	assert.Equal(t, 95, cfg.Mirror.MaxDiskUsagePercent)

	assert.True(t, cfg.Notify.Enabled())
	assert.Equal(t, []string{"update"}, cfg.Notify.AcceptedStates)
	assert.Equal(t, 24*time.Hour, cfg.Notify.GetSubscriptionTTL())
	assert.Equal(t, 30*time.Minute, cfg.Notify.GetRenewInterval())
	assert.Equal(t, time.Hour, cfg.Sync.GetFullScanInterval())
	assert.True(t, cfg.Sync.SyncOnStart)

	assert.Equal(t, 30*time.Second, cfg.HTTP.GetAdminSyncInterval())
	assert.Equal(t, 7*24*time.Hour, cfg.Maintenance.GetRunHistoryMaxAge())
	assert.Equal(t, filepath.Join("/srv/public", ".drive-mirror.db"), cfg.GetDatabasePath())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DRIVE_MIRROR_HTTP_BIND_ADDR", "127.0.0.1:9999")
	t.Setenv("DRIVE_MIRROR_NOTIFY_CHANNEL_TOKEN", "from-env")

	cfg := validConfig(t)
	assert.Equal(t, "127.0.0.1:9999", cfg.HTTP.BindAddr)
	assert.Equal(t, "from-env", cfg.Notify.ChannelToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing credentials", func(c *Config) { c.Drive.CredentialsFile = "" }, "credentials_file"},
		{"page size", func(c *Config) { c.Drive.PageSize = 5000 }, "page_size"},
		{"no roots", func(c *Config) { c.Mirror.Roots = nil }, "at least one root"},
		{"duplicate root id", func(c *Config) { c.Mirror.Roots[1].FolderID = "ROOT-A" }, "duplicate folder_id"},
		{"duplicate local dir", func(c *Config) { c.Mirror.Roots[1].LocalDir = "site-a/" }, "duplicate local_dir"},
		{"absolute local dir", func(c *Config) { c.Mirror.Roots[0].LocalDir = "/etc" }, "relative"},
		{"escaping local dir", func(c *Config) { c.Mirror.Roots[0].LocalDir = "../up" }, "relative"},
		{"local dir is mirror root", func(c *Config) { c.Mirror.Roots[0].LocalDir = "./" }, "subdirectory"},
		{"empty local dir", func(c *Config) { c.Mirror.Roots[0].LocalDir = "" }, "subdirectory"},
		{"concurrency", func(c *Config) { c.Mirror.FolderConcurrency = 0 }, "folder_concurrency"},
		{"negative max size", func(c *Config) { c.Mirror.MaxSizeGB = -1 }, "max_size_gb"},
		{"disk usage over 100", func(c *Config) { c.Mirror.MaxDiskUsagePercent = 101 }, "max_disk_usage_percent"},
		{"disk usage check disabled", func(c *Config) { c.Mirror.MaxDiskUsagePercent = 0 }, ""},
		{"bad duration", func(c *Config) { c.Drive.FetchTimeout = "soon" }, "drive.fetch_timeout"},
		{"plain http callback", func(c *Config) { c.Notify.CallbackURL = "http://x/notifications" }, "https"},
		{"renew interval too long", func(c *Config) { c.Notify.RenewInterval = "48h" }, "renew_interval"},
		{"renew before too long", func(c *Config) { c.Notify.RenewBefore = "24h" }, "renew_before"},
		{"renew interval beyond renew before", func(c *Config) {
			c.Notify.RenewInterval = "3h"
			c.Notify.RenewBefore = "2h"
		}, "must not exceed notify.renew_before"},
		{"renew interval equal to renew before", func(c *Config) {
			c.Notify.RenewInterval = "2h"
			c.Notify.RenewBefore = "2h"
		}, ""},
		{"no accepted states", func(c *Config) { c.Notify.AcceptedStates = nil }, "accepted_states"},
		{"notify disabled skips checks", func(c *Config) {
			c.Notify.CallbackURL = ""
			c.Notify.RenewInterval = "48h"
		}, ""},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMirrorConfig_GetMaxSizeBytes(t *testing.T) {
	c := &MirrorConfig{MaxSizeGB: 2}
	assert.Equal(t, int64(2*1024*1024*1024), c.GetMaxSizeBytes())
}

func TestParseOr(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseOr("5s", time.Minute))
	assert.Equal(t, time.Minute, parseOr("", time.Minute))
	assert.Equal(t, time.Minute, parseOr("junk", time.Minute))
	assert.Equal(t, time.Duration(0), (&SyncConfig{FullScanInterval: "0s"}).GetFullScanInterval())
}

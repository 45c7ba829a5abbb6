package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DRIVE_MIRROR_HTTP_BIND_ADDR
const EnvPrefix = "DRIVE_MIRROR"

// Config represents the entire application configuration
type Config struct {
	Drive       DriveConfig       `mapstructure:"drive"`
	Mirror      MirrorConfig      `mapstructure:"mirror"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// DriveConfig contains Google Drive API configuration
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	PageSize        int    `mapstructure:"page_size"`
	MediaOnly       bool   `mapstructure:"media_only"`
	ListTimeout     string `mapstructure:"list_timeout"`
	FetchTimeout    string `mapstructure:"fetch_timeout"`
}

// RootConfig is one remote root folder mirrored into a local directory
type RootConfig struct {
	FolderID       string   `mapstructure:"folder_id"`
	LocalDir       string   `mapstructure:"local_dir"`
	AllowedFolders []string `mapstructure:"allowed_folders"` // empty mirrors every subfolder
}

// MirrorConfig contains local mirror settings
type MirrorConfig struct {
	RootDir             string       `mapstructure:"root_dir"`
	Roots               []RootConfig `mapstructure:"roots"`
	FolderConcurrency   int          `mapstructure:"folder_concurrency"`
	BufferSizeKB        int          `mapstructure:"buffer_size_kb"`
	MaxSizeGB           int          `mapstructure:"max_size_gb"`            // 0 = unlimited
	MaxDiskUsagePercent int          `mapstructure:"max_disk_usage_percent"` // 0 = unlimited
}

// SyncConfig contains synchronization settings
type SyncConfig struct {
	FullScanInterval string `mapstructure:"full_scan_interval"`
	SyncOnStart      bool   `mapstructure:"sync_on_start"`
}

// NotifyConfig contains change notification settings
type NotifyConfig struct {
	CallbackURL         string   `mapstructure:"callback_url"`
	ChannelToken        string   `mapstructure:"channel_token"`
	AcceptedStates      []string `mapstructure:"accepted_states"`
	SubscriptionTTL     string   `mapstructure:"subscription_ttl"`
	RenewBefore         string   `mapstructure:"renew_before"`
	RenewInterval       string   `mapstructure:"renew_interval"`
	MaxRegisterAttempts int      `mapstructure:"max_register_attempts"`
	RegisterBackoff     string   `mapstructure:"register_backoff"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr          string `mapstructure:"bind_addr"`
	AdminUsername     string `mapstructure:"admin_username"`
	AdminPassword     string `mapstructure:"admin_password"`
	AdminSyncInterval string `mapstructure:"admin_sync_interval"`
	ReadTimeout       string `mapstructure:"read_timeout"`
	WriteTimeout      string `mapstructure:"write_timeout"`
	IdleTimeout       string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MaintenanceConfig contains cleanup settings
type MaintenanceConfig struct {
	CleanupInterval  string `mapstructure:"cleanup_interval"`
	TempFileMaxAge   string `mapstructure:"temp_file_max_age"`
	RunHistoryMaxAge string `mapstructure:"run_history_max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("drive.page_size", 100)
	v.SetDefault("drive.media_only", true)
	v.SetDefault("drive.list_timeout", "30s")
	v.SetDefault("drive.fetch_timeout", "10m")
	v.SetDefault("mirror.root_dir", "./public")
	v.SetDefault("mirror.folder_concurrency", 4)
	v.SetDefault("mirror.buffer_size_kb", 256)
	v.SetDefault("mirror.max_size_gb", 0)
	v.SetDefault("mirror.max_disk_usage_percent", 95)
	v.SetDefault("sync.full_scan_interval", "1h")
	v.SetDefault("sync.sync_on_start", true)
	v.SetDefault("notify.callback_url", "")
	v.SetDefault("notify.channel_token", "")
	v.SetDefault("notify.accepted_states", []string{"update"})
	v.SetDefault("notify.subscription_ttl", "24h")
	v.SetDefault("notify.renew_before", "2h")
	v.SetDefault("notify.renew_interval", "30m")
	v.SetDefault("notify.max_register_attempts", 5)
	v.SetDefault("notify.register_backoff", "2s")
	v.SetDefault("http.bind_addr", "0.0.0.0:8888")
	v.SetDefault("http.admin_username", "admin")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("http.admin_sync_interval", "30s")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "24h")
	v.SetDefault("maintenance.run_history_max_age", "168h")
}

// Load loads configuration from the specified file path.
// A .env file in the working directory is read first; environment
// variables prefixed with DRIVE_MIRROR_ override file values.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Drive.CredentialsFile == "" {
		return fmt.Errorf("drive.credentials_file is required")
	}
	if c.Drive.PageSize < 1 || c.Drive.PageSize > 1000 {
		return fmt.Errorf("drive.page_size must be between 1 and 1000")
	}

	if c.Mirror.RootDir == "" {
		return fmt.Errorf("mirror.root_dir is required")
	}
	if len(c.Mirror.Roots) == 0 {
		return fmt.Errorf("mirror.roots must list at least one root folder")
	}
	ids := mapset.NewThreadUnsafeSet[string]()
	dirs := mapset.NewThreadUnsafeSet[string]()
	for i, root := range c.Mirror.Roots {
		if root.FolderID == "" {
			return fmt.Errorf("mirror.roots[%d].folder_id is required", i)
		}
		if !ids.Add(root.FolderID) {
			return fmt.Errorf("mirror.roots[%d]: duplicate folder_id %s", i, root.FolderID)
		}
		dir := filepath.Clean(root.LocalDir)
		if filepath.IsAbs(dir) || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
			return fmt.Errorf("mirror.roots[%d].local_dir must be relative to mirror.root_dir", i)
		}
		if dir == "." {
			return fmt.Errorf("mirror.roots[%d].local_dir must name a subdirectory of mirror.root_dir", i)
		}
		if !dirs.Add(dir) {
			return fmt.Errorf("mirror.roots[%d]: duplicate local_dir %s", i, root.LocalDir)
		}
	}
	if c.Mirror.FolderConcurrency < 1 || c.Mirror.FolderConcurrency > 32 {
		return fmt.Errorf("mirror.folder_concurrency must be between 1 and 32")
	}
	if c.Mirror.MaxSizeGB < 0 {
		return fmt.Errorf("mirror.max_size_gb must not be negative")
	}
	if c.Mirror.MaxDiskUsagePercent < 0 || c.Mirror.MaxDiskUsagePercent > 100 {
		return fmt.Errorf("mirror.max_disk_usage_percent must be between 0 and 100")
	}

	durations := map[string]string{
		"drive.list_timeout":              c.Drive.ListTimeout,
		"drive.fetch_timeout":             c.Drive.FetchTimeout,
		"sync.full_scan_interval":         c.Sync.FullScanInterval,
		"notify.subscription_ttl":         c.Notify.SubscriptionTTL,
		"notify.renew_before":             c.Notify.RenewBefore,
		"notify.renew_interval":           c.Notify.RenewInterval,
		"notify.register_backoff":         c.Notify.RegisterBackoff,
		"http.admin_sync_interval":        c.HTTP.AdminSyncInterval,
		"maintenance.cleanup_interval":    c.Maintenance.CleanupInterval,
		"maintenance.temp_file_max_age":   c.Maintenance.TempFileMaxAge,
		"maintenance.run_history_max_age": c.Maintenance.RunHistoryMaxAge,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Notify.Enabled() {
		if !strings.HasPrefix(c.Notify.CallbackURL, "https://") {
			return fmt.Errorf("notify.callback_url must be an https address")
		}
		if c.Notify.GetRenewInterval() >= c.Notify.GetSubscriptionTTL() {
			return fmt.Errorf("notify.renew_interval must be shorter than notify.subscription_ttl")
		}
		if c.Notify.GetRenewBefore() >= c.Notify.GetSubscriptionTTL() {
			return fmt.Errorf("notify.renew_before must be shorter than notify.subscription_ttl")
		}
		if c.Notify.GetRenewInterval() > c.Notify.GetRenewBefore() {
			return fmt.Errorf("notify.renew_interval must not exceed notify.renew_before")
		}
		if c.Notify.MaxRegisterAttempts < 1 {
			return fmt.Errorf("notify.max_register_attempts must be positive")
		}
		if len(c.Notify.AcceptedStates) == 0 {
			return fmt.Errorf("notify.accepted_states must not be empty")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetDatabasePath returns the database path, defaulting into the mirror root
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Mirror.RootDir, ".drive-mirror.db")
}

// MediaPrefixes returns the MIME prefixes listing is restricted to
func (c *DriveConfig) MediaPrefixes() []string {
	if !c.MediaOnly {
		return nil
	}
	return []string{"image/", "video/"}
}

// GetListTimeout returns the per-call listing timeout
func (c *DriveConfig) GetListTimeout() time.Duration {
	return parseOr(c.ListTimeout, 30*time.Second)
}

// GetFetchTimeout returns the per-file download timeout
func (c *DriveConfig) GetFetchTimeout() time.Duration {
	return parseOr(c.FetchTimeout, 10*time.Minute)
}

// GetBufferSize returns the copy buffer size in bytes
func (c *MirrorConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 256 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetMaxSizeBytes returns the mirror size limit in bytes, 0 if unlimited
func (c *MirrorConfig) GetMaxSizeBytes() int64 {
	return int64(c.MaxSizeGB) * 1024 * 1024 * 1024
}

// GetFullScanInterval returns the full scan interval as time.Duration.
// Zero disables the periodic scan.
func (c *SyncConfig) GetFullScanInterval() time.Duration {
	d, _ := time.ParseDuration(c.FullScanInterval)
	return d
}

// Enabled reports whether change notifications are configured
func (c *NotifyConfig) Enabled() bool {
	return c.CallbackURL != ""
}

// GetSubscriptionTTL returns the requested channel lifetime
func (c *NotifyConfig) GetSubscriptionTTL() time.Duration {
	return parseOr(c.SubscriptionTTL, 24*time.Hour)
}

// GetRenewBefore returns how long before expiry a channel is renewed
func (c *NotifyConfig) GetRenewBefore() time.Duration {
	return parseOr(c.RenewBefore, 2*time.Hour)
}

// GetRenewInterval returns the renewal sweep interval
func (c *NotifyConfig) GetRenewInterval() time.Duration {
	return parseOr(c.RenewInterval, 30*time.Minute)
}

// GetRegisterBackoff returns the base backoff between registration attempts
func (c *NotifyConfig) GetRegisterBackoff() time.Duration {
	return parseOr(c.RegisterBackoff, 2*time.Second)
}

// GetAdminSyncInterval returns the minimum spacing of admin-triggered syncs
func (c *HTTPConfig) GetAdminSyncInterval() time.Duration {
	return parseOr(c.AdminSyncInterval, 30*time.Second)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseOr(c.IdleTimeout, 60*time.Second)
}

// GetCleanupInterval returns the maintenance interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseOr(c.CleanupInterval, time.Hour)
}

// GetTempFileMaxAge returns the age after which temp files are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	return parseOr(c.TempFileMaxAge, 24*time.Hour)
}

// GetRunHistoryMaxAge returns how long sync run records are kept
func (c *MaintenanceConfig) GetRunHistoryMaxAge() time.Duration {
	return parseOr(c.RunHistoryMaxAge, 7*24*time.Hour)
}

func parseOr(s string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(s)
	if d == 0 {
		return fallback
	}
	return d
}

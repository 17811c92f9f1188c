package farmsync

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/farmsync/farmsync/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Mode selects where record services read and write.
type Mode string

const (
	// ModeOffline keeps records in the local store and syncs them.
	ModeOffline Mode = "offline"
	// ModeDirect reads and writes the remote store with no local copy.
	ModeDirect Mode = "direct"
)

// Remote and storage backends.
const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// DefaultBucket is the object storage bucket for animal photos.
const DefaultBucket = "animal-photos"

// Config configures the farmsync client.
type Config struct {
	// Farm is the farm profile to operate against.
	// If empty, resolved as explicit > FARMSYNC_FARM env > "default".
	Farm string

	// LocalPath is the path to the local SQLite database.
	// Derived from Farm if empty.
	LocalPath string

	// Mode selects local (offline-first) or direct record services.
	// Defaults to ModeOffline.
	Mode Mode

	// Remote is the remote store backend: BackendREST or BackendPostgres.
	// Inferred from URL or PostgresDSN when empty. With neither set the
	// client runs without a remote.
	Remote string

	// URL is the base URL of the PostgREST/Supabase project.
	URL string

	// APIKey authenticates REST and storage requests.
	APIKey string

	// PostgresDSN connects directly to the remote Postgres database.
	PostgresDSN string

	// Storage is the photo object store backend: BackendREST or BackendS3.
	// Defaults to BackendREST when URL is set.
	Storage string

	// Bucket holds uploaded photos. Defaults to DefaultBucket.
	Bucket string

	S3Region   string
	S3Endpoint string

	// PublicURL overrides the URL prefix uploaded photos are served from.
	PublicURL string

	// PhotoDir is the local photo cache. Derived from Farm if empty.
	PhotoDir string

	// SyncInterval is how often background sync runs.
	// Defaults to 5 minutes.
	SyncInterval time.Duration

	// ProbeInterval is how often remote reachability is checked.
	// Defaults to 30 seconds.
	ProbeInterval time.Duration

	// AutoSync enables background syncing and connectivity probing.
	AutoSync bool

	// RowTimeout bounds the remote calls made for one record during a pass.
	RowTimeout time.Duration

	// LogLevel, LogFormat and LogFile configure NewLogger when Logger is nil.
	LogLevel  string
	LogFormat string
	LogFile   string

	// Logger receives client logs. Built from the Log* fields if nil.
	Logger *slog.Logger

	// MetricsRegisterer registers sync metrics. Metrics are collected but
	// not registered when nil.
	MetricsRegisterer prometheus.Registerer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Farm:          store.DefaultFarm,
		LocalPath:     store.FarmDBPath(store.DefaultFarm),
		PhotoDir:      store.FarmPhotoDir(store.DefaultFarm),
		Mode:          ModeOffline,
		Bucket:        DefaultBucket,
		SyncInterval:  5 * time.Minute,
		ProbeInterval: 30 * time.Second,
		RowTimeout:    DefaultRowTimeout,
		AutoSync:      true,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	FARMSYNC_FARM            → Farm
//	FARMSYNC_DB_PATH         → LocalPath
//	FARMSYNC_MODE            → Mode (offline | direct)
//	FARMSYNC_REMOTE          → Remote (rest | postgres)
//	FARMSYNC_URL             → URL
//	FARMSYNC_API_KEY         → APIKey
//	FARMSYNC_POSTGRES_DSN    → PostgresDSN
//	FARMSYNC_STORAGE         → Storage (rest | s3)
//	FARMSYNC_BUCKET          → Bucket
//	FARMSYNC_S3_REGION       → S3Region
//	FARMSYNC_S3_ENDPOINT     → S3Endpoint
//	FARMSYNC_PUBLIC_URL      → PublicURL
//	FARMSYNC_PHOTO_DIR       → PhotoDir
//	FARMSYNC_SYNC_INTERVAL   → SyncInterval (Go duration)
//	FARMSYNC_PROBE_INTERVAL  → ProbeInterval (Go duration)
//	FARMSYNC_AUTO_SYNC       → AutoSync (bool, default true)
//	FARMSYNC_LOG_LEVEL       → LogLevel
//	FARMSYNC_LOG_FORMAT      → LogFormat (text | json)
//	FARMSYNC_LOG_FILE        → LogFile
func ConfigFromEnv() Config {
	cfg := Config{
		Farm:        os.Getenv("FARMSYNC_FARM"),
		LocalPath:   os.Getenv("FARMSYNC_DB_PATH"),
		Mode:        Mode(os.Getenv("FARMSYNC_MODE")),
		Remote:      os.Getenv("FARMSYNC_REMOTE"),
		URL:         os.Getenv("FARMSYNC_URL"),
		APIKey:      os.Getenv("FARMSYNC_API_KEY"),
		PostgresDSN: os.Getenv("FARMSYNC_POSTGRES_DSN"),
		Storage:     os.Getenv("FARMSYNC_STORAGE"),
		Bucket:      os.Getenv("FARMSYNC_BUCKET"),
		S3Region:    os.Getenv("FARMSYNC_S3_REGION"),
		S3Endpoint:  os.Getenv("FARMSYNC_S3_ENDPOINT"),
		PublicURL:   os.Getenv("FARMSYNC_PUBLIC_URL"),
		PhotoDir:    os.Getenv("FARMSYNC_PHOTO_DIR"),
		LogLevel:    os.Getenv("FARMSYNC_LOG_LEVEL"),
		LogFormat:   os.Getenv("FARMSYNC_LOG_FORMAT"),
		LogFile:     os.Getenv("FARMSYNC_LOG_FILE"),
		AutoSync:    true,
	}
	if d, err := time.ParseDuration(os.Getenv("FARMSYNC_SYNC_INTERVAL")); err == nil {
		cfg.SyncInterval = d
	}
	if d, err := time.ParseDuration(os.Getenv("FARMSYNC_PROBE_INTERVAL")); err == nil {
		cfg.ProbeInterval = d
	}
	if b, err := strconv.ParseBool(os.Getenv("FARMSYNC_AUTO_SYNC")); err == nil {
		cfg.AutoSync = b
	}
	return cfg
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.Farm != "" {
		if err := store.ValidateFarmID(c.Farm); err != nil {
			return &ValidationError{Field: "Farm", Message: err.Error()}
		}
	}

	switch c.Mode {
	case "", ModeOffline:
	case ModeDirect:
		if c.IsOffline() {
			return &ValidationError{Field: "Mode", Message: "direct mode requires a remote store"}
		}
	default:
		return &ValidationError{Field: "Mode", Message: "must be offline or direct"}
	}

	if c.Mode != ModeDirect && c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	switch c.Remote {
	case "":
	case BackendREST:
		if c.URL == "" {
			return &ValidationError{Field: "URL", Message: "required for the rest remote"}
		}
		if c.APIKey == "" {
			return &ValidationError{Field: "APIKey", Message: "required when URL is set"}
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return &ValidationError{Field: "PostgresDSN", Message: "required for the postgres remote"}
		}
	default:
		return &ValidationError{Field: "Remote", Message: "must be rest or postgres"}
	}

	switch c.Storage {
	case "":
	case BackendREST:
		if c.URL == "" || c.APIKey == "" {
			return &ValidationError{Field: "Storage", Message: "rest storage requires URL and APIKey"}
		}
	case BackendS3:
		if c.Bucket == "" {
			return &ValidationError{Field: "Bucket", Message: "required for s3 storage"}
		}
	default:
		return &ValidationError{Field: "Storage", Message: "must be rest or s3"}
	}

	if c.SyncInterval < 0 {
		return &ValidationError{Field: "SyncInterval", Message: "must be non-negative"}
	}
	if c.ProbeInterval < 0 {
		return &ValidationError{Field: "ProbeInterval", Message: "must be non-negative"}
	}

	return nil
}

// IsOffline returns true if no remote store is configured.
func (c *Config) IsOffline() bool {
	return c.Remote == "" && c.URL == "" && c.PostgresDSN == ""
}

// WithDefaults fills in default values for unset fields.
// Farm resolution: explicit Farm field > FARMSYNC_FARM env > "default".
// LocalPath and PhotoDir are derived from the resolved farm.
//
// When the farm resolves to "default" and it has no database yet, a legacy
// ./data/farmsync.db is copied into place.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Farm == "" {
		resolved, err := store.ResolveFarm("")
		if err == nil {
			c.Farm = resolved
		} else {
			c.Farm = store.DefaultFarm
		}
	}

	// Best-effort; a failed copy leaves the default farm empty.
	if c.Farm == store.DefaultFarm && c.LocalPath == "" {
		_, _ = store.MigrateLegacyDatabase("", store.DefaultRoot())
	}

	if c.LocalPath == "" {
		c.LocalPath = store.FarmDBPath(c.Farm)
	}
	if c.PhotoDir == "" {
		c.PhotoDir = store.FarmPhotoDir(c.Farm)
	}
	if c.Mode == "" {
		c.Mode = defaults.Mode
	}

	if c.Remote == "" {
		switch {
		case c.URL != "":
			c.Remote = BackendREST
		case c.PostgresDSN != "":
			c.Remote = BackendPostgres
		}
	}
	if c.Storage == "" && c.URL != "" && c.APIKey != "" {
		c.Storage = BackendREST
	}
	if c.Bucket == "" {
		c.Bucket = defaults.Bucket
	}

	if c.SyncInterval == 0 {
		c.SyncInterval = defaults.SyncInterval
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = defaults.ProbeInterval
	}
	if c.RowTimeout == 0 {
		c.RowTimeout = defaults.RowTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}

	return c
}

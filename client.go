package farmsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/farmsync/farmsync/internal/photos"
	"github.com/farmsync/farmsync/internal/remote"
	"github.com/farmsync/farmsync/internal/remote/pg"
	"github.com/farmsync/farmsync/internal/remote/rest"
	s3store "github.com/farmsync/farmsync/internal/remote/s3"
)

// Client is the main interface for farm records and their sync.
type Client struct {
	config    Config
	logger    *slog.Logger
	logCloser io.Closer

	store   *Store
	remote  remote.Store
	objects remote.ObjectStore
	cache   *photos.Cache
	syncer  *Syncer
	monitor *Monitor
	metrics *Metrics
	records Records

	closers []io.Closer

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

// New creates a client from cfg, connecting the configured remote and
// object store backends.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser := cfg.Logger, io.Closer(nil)
	if logger == nil {
		l, closer, err := NewLogger(cfg)
		if err != nil {
			return nil, err
		}
		logger, logCloser = l, closer
	}

	var closers []io.Closer
	rs, err := openRemote(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if c, ok := rs.(io.Closer); ok {
		closers = append(closers, c)
	}
	objects, err := openObjects(context.Background(), cfg, logger)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("client: %w", err)
	}

	cfg.Logger = logger
	c, err := NewWithBackends(cfg, rs, objects)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	c.closers = closers
	c.logCloser = logCloser
	return c, nil
}

// NewWithBackends creates a client over explicit remote backends. rs and
// objects may be nil. cfg is defaulted and validated as in New, but the
// backend fields are ignored.
func NewWithBackends(cfg Config, rs remote.Store, objects remote.ObjectStore) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.Mode == ModeDirect && rs == nil {
		return nil, &ValidationError{Field: "Mode", Message: "direct mode requires a remote store"}
	}
	if cfg.Mode != ModeDirect && cfg.LocalPath == "" {
		return nil, &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		remote:  rs,
		objects: objects,
		metrics: NewMetrics(cfg.MetricsRegisterer),
	}

	if cfg.Mode == ModeDirect {
		c.records = Records{
			Animals:          NewRemoteRecords[Animal](rs, objects),
			BreedingServices: NewRemoteRecords[BreedingService](rs, objects),
			Diagnostics:      NewRemoteRecords[Diagnostic](rs, objects),
			Births:           NewRemoteRecords[Birth](rs, objects),
			Milkings:         NewRemoteRecords[Milking](rs, objects),
			Treatments:       NewRemoteRecords[Treatment](rs, objects),
			DryOffs:          NewRemoteRecords[DryOff](rs, objects),
		}
		return c, nil
	}

	store, err := Open(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.store = store

	publicBase := ""
	if objects != nil {
		publicBase = objects.PublicURL("")
	}
	c.cache = photos.New(cfg.PhotoDir, publicBase)

	c.records = Records{
		Animals:          NewLocalRecords[Animal](store, rs, c.cache),
		BreedingServices: NewLocalRecords[BreedingService](store, rs, c.cache),
		Diagnostics:      NewLocalRecords[Diagnostic](store, rs, c.cache),
		Births:           NewLocalRecords[Birth](store, rs, c.cache),
		Milkings:         NewLocalRecords[Milking](store, rs, c.cache),
		Treatments:       NewLocalRecords[Treatment](store, rs, c.cache),
		DryOffs:          NewLocalRecords[DryOff](store, rs, c.cache),
	}

	if rs != nil {
		c.syncer = NewSyncer(store, rs, objects, c.cache).
			WithLogger(logger).
			WithMetrics(c.metrics).
			WithRowTimeout(cfg.RowTimeout)
		c.monitor = NewMonitor(store, c.syncer, logger)
	}

	if c.syncer != nil && cfg.AutoSync {
		c.startBackground()
	}
	return c, nil
}

func openRemote(cfg Config, logger *slog.Logger) (remote.Store, error) {
	switch cfg.Remote {
	case BackendREST:
		return rest.NewClient(cfg.URL, cfg.APIKey).WithLogger(logger), nil
	case BackendPostgres:
		return pg.Dial(cfg.PostgresDSN)
	}
	return nil, nil
}

func openObjects(ctx context.Context, cfg Config, logger *slog.Logger) (remote.ObjectStore, error) {
	switch cfg.Storage {
	case BackendREST:
		return rest.NewStorage(cfg.URL, cfg.APIKey, cfg.Bucket).WithLogger(logger), nil
	case BackendS3:
		return s3store.New(ctx, s3store.Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.Bucket,
			Endpoint:      cfg.S3Endpoint,
			PathStyle:     cfg.S3Endpoint != "",
			PublicBaseURL: cfg.PublicURL,
		})
	}
	return nil, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// Records returns the record services for the configured mode.
func (c *Client) Records() Records { return c.records }

// Animals returns the animal record service.
func (c *Client) Animals() RecordService[Animal] { return c.records.Animals }

// Store returns the local store, or nil in direct mode.
func (c *Client) Store() *Store { return c.store }

// Metrics returns the client's sync metrics.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Sync uploads pending records and then downloads remote changes.
func (c *Client) Sync(ctx context.Context) (*SyncReport, error) {
	if c.syncer == nil {
		return nil, ErrOffline
	}
	return c.syncer.Sync(ctx)
}

// SyncPush uploads pending records.
func (c *Client) SyncPush(ctx context.Context) (*UploadReport, error) {
	if c.syncer == nil {
		return nil, ErrOffline
	}
	return c.syncer.SyncAll(ctx)
}

// SyncPull downloads remote records.
func (c *Client) SyncPull(ctx context.Context) (*DownloadReport, error) {
	if c.syncer == nil {
		return nil, ErrOffline
	}
	return c.syncer.DownloadAll(ctx)
}

// SetConnected forwards a connectivity change from an external observer.
// Regaining the connection with pending records triggers an upload pass.
func (c *Client) SetConnected(ctx context.Context, connected bool) {
	if c.monitor != nil {
		c.monitor.SetConnected(ctx, connected)
	}
}

// Status returns the current sync indicator.
func (c *Client) Status(ctx context.Context) (Status, error) {
	if c.store == nil {
		return ProjectStatus(false, 0, true), nil
	}
	if c.monitor == nil {
		pending, err := c.store.PendingCount(ctx)
		if err != nil {
			return Status{}, err
		}
		return ProjectStatus(false, pending, false), nil
	}
	if _, err := c.monitor.Refresh(ctx); err != nil {
		return Status{}, err
	}
	return c.monitor.Status(), nil
}

// Stats returns per-entity record counts. In direct mode the counts come
// from the remote store and nothing is pending.
func (c *Client) Stats(ctx context.Context) (*StoreStats, error) {
	if c.store != nil {
		return c.store.Stats(ctx)
	}
	stats := &StoreStats{Entities: make(map[EntityKind]EntityStats, len(syncTables))}
	for _, t := range syncTables {
		rows, err := c.remote.Select(ctx, t.remote(), nil)
		if err != nil {
			return nil, fmt.Errorf("stats %s: %w", t.kind, err)
		}
		stats.Entities[t.kind] = EntityStats{Total: len(rows)}
	}
	return stats, nil
}

// TestConnection checks that the remote store answers.
func (c *Client) TestConnection(ctx context.Context) error {
	if c.remote == nil {
		return ErrOffline
	}
	return c.remote.Ping(ctx)
}

// CleanupPhotos deletes cached photos no animal refers to and returns how
// many were removed.
func (c *Client) CleanupPhotos(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	rows, err := c.store.GetAll(ctx, "SELECT photo FROM Animales WHERE photo IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("list photos: %w", err)
	}
	refs := make([]string, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, asString(r["photo"]))
	}
	n, err := c.cache.CleanupOrphans(refs)
	if n > 0 {
		c.logger.Info("removed orphaned photos", "count", n)
	}
	return n, err
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		StoreOK: true,
	}

	if c.store != nil {
		if _, err := c.store.PendingCount(ctx); err != nil {
			status.StoreOK = false
			status.Healthy = false
			status.Error = err.Error()
			return status
		}
	}

	if c.remote != nil {
		err := c.remote.Ping(ctx)
		status.RemoteReachable = err == nil
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
		if err != nil && c.store == nil {
			status.Healthy = false
		}
	}

	return status
}

// Close stops background work and releases the store and backends.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Wait for background work to complete (with timeout)
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		c.logger.Warn("background sync did not stop in time")
	}

	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	if c.logCloser != nil {
		errs = append(errs, c.logCloser.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	prober := NewProber(c.remote, c.monitor, c.config.ProbeInterval)
	c.bg.Add(2)
	go func() {
		defer c.bg.Done()
		prober.Run(ctx)
	}()
	go func() {
		defer c.bg.Done()
		c.backgroundSync(ctx)
	}()
}

func (c *Client) backgroundSync(ctx context.Context) {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.monitor.Sync(ctx); err != nil {
				c.logger.Warn("background sync failed", "error", err)
			}
		}
	}
}

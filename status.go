package farmsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the categorical sync state shown to users.
type State string

const (
	StateSynced  State = "synced"
	StatePending State = "pending"
	StateSyncing State = "syncing"
	StateOffline State = "offline"
)

// Status is a projected sync indicator.
type Status struct {
	State   State  `json:"status"`
	Text    string `json:"text"`
	Pending int    `json:"pending"`
}

// ProjectStatus derives the sync indicator. A running pass wins over
// pending changes, and pending changes are shown as offline when there is
// no connection.
func ProjectStatus(syncing bool, pending int, connected bool) Status {
	switch {
	case syncing:
		return Status{State: StateSyncing, Text: "Syncing...", Pending: pending}
	case pending > 0 && connected:
		return Status{State: StatePending, Text: fmt.Sprintf("%d pending", pending), Pending: pending}
	case pending > 0:
		return Status{State: StateOffline, Text: "Offline", Pending: pending}
	default:
		return Status{State: StateSynced, Text: "Synced"}
	}
}

// Monitor tracks connectivity and pending changes, and starts an upload pass
// when the connection comes back with work waiting.
type Monitor struct {
	syncer *Syncer
	store  *Store
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	pending   int
}

// NewMonitor creates a monitor that starts out disconnected.
func NewMonitor(store *Store, syncer *Syncer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{store: store, syncer: syncer, logger: logger}
}

// SetConnected records a connectivity change. A transition from
// disconnected to connected with pending records runs an upload pass before
// returning.
func (m *Monitor) SetConnected(ctx context.Context, connected bool) {
	m.mu.Lock()
	wasConnected := m.connected
	m.connected = connected
	m.mu.Unlock()

	if !connected || wasConnected {
		return
	}
	pending, err := m.Refresh(ctx)
	if err != nil {
		m.logger.Warn("refresh pending count failed", "error", err)
		return
	}
	if pending == 0 {
		return
	}
	m.logger.Info("connection restored, syncing", "pending", pending)
	if _, err := m.Sync(ctx); err != nil {
		m.logger.Warn("reconnect sync failed", "error", err)
	}
}

// Connected reports the last connectivity state.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Refresh re-reads the pending count from the store.
func (m *Monitor) Refresh(ctx context.Context) (int, error) {
	n, err := m.store.PendingCount(ctx)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.pending = n
	m.mu.Unlock()
	return n, nil
}

// Status projects the current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ProjectStatus(m.syncer.Syncing(), m.pending, m.connected)
}

// Sync runs an upload pass if connected and work is pending. It returns a
// nil report when the pass was skipped, including when another pass is
// already running.
func (m *Monitor) Sync(ctx context.Context) (*UploadReport, error) {
	if !m.Connected() || m.syncer.Syncing() {
		return nil, nil
	}
	pending, err := m.Refresh(ctx)
	if err != nil || pending == 0 {
		return nil, err
	}

	report, err := m.syncer.SyncAll(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		return nil, nil
	}
	if _, rerr := m.Refresh(ctx); rerr != nil {
		m.logger.Warn("refresh pending count failed", "error", rerr)
	}
	return report, err
}

// Pinger is implemented by remote stores that can check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober reports remote reachability to a Monitor on an interval.
type Prober struct {
	remote   Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
}

// NewProber creates a prober. interval defaults to 30 seconds.
func NewProber(remote Pinger, monitor *Monitor, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{remote: remote, monitor: monitor, interval: interval, timeout: 5 * time.Second}
}

// Probe pings the remote once and forwards the result to the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.remote.Ping(pctx)
	cancel()
	p.monitor.SetConnected(ctx, err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

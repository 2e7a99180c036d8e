package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const checkpointFile = "checkpoint.json"

// Metrics are the Prometheus series the monitor maintains.
type Metrics struct {
	ActiveWorkflows  prometheus.Gauge
	CheckpointWrites prometheus.Counter
	EventsTotal      prometheus.Counter
}

// NewMetrics builds and registers the monitor's metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveWorkflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipelined",
			Subsystem: "monitor",
			Name:      "active_workflows",
			Help:      "Workflow directories still holding a checkpoint.",
		}),
		CheckpointWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipelined",
			Subsystem: "monitor",
			Name:      "checkpoint_writes_observed_total",
			Help:      "Checkpoint file writes observed on disk.",
		}),
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pipelined",
			Subsystem: "monitor",
			Name:      "fs_events_total",
			Help:      "Filesystem events received under the workflows root.",
		}),
	}
	reg.MustRegister(m.ActiveWorkflows, m.CheckpointWrites, m.EventsTotal)
	return m
}

// Monitor watches the workflows root with fsnotify.
type Monitor struct {
	root    string
	watcher *fsnotify.Watcher
	metrics *Metrics
	logger  *zap.Logger
	done    chan struct{}
}

// New creates a monitor over the workflows root, which must exist.
func New(root string, reg prometheus.Registerer, logger *zap.Logger) (*Monitor, error) {
	if root == "" {
		return nil, errors.New("workflows root is required")
	}
	if reg == nil {
		return nil, errors.New("prometheus registerer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &Monitor{
		root:    root,
		watcher: watcher,
		metrics: NewMetrics(reg),
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Existing workflow directories are watched too so checkpoint
	// writes inside them are seen.
	entries, err := os.ReadDir(root)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				logger.Warn("failed to watch workflow directory",
					zap.String("dir", entry.Name()),
					zap.Error(err),
				)
			}
		}
	}
	m.rescan()

	return m, nil
}

// Start consumes events until the context is canceled or Close is
// called.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handle(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (m *Monitor) handle(event fsnotify.Event) {
	m.metrics.EventsTotal.Inc()

	// New workflow directories get their own watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := m.watcher.Add(event.Name); err != nil {
				m.logger.Warn("failed to watch new directory",
					zap.String("dir", event.Name),
					zap.Error(err),
				)
			}
		}
	}

	if filepath.Base(event.Name) == checkpointFile {
		if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
			m.metrics.CheckpointWrites.Inc()
		}
		m.rescan()
	}
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		m.rescan()
	}
}

// rescan recounts workflow directories that still hold a checkpoint.
func (m *Monitor) rescan() {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		m.logger.Warn("failed to scan workflows root", zap.Error(err))
		return
	}

	active := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.root, entry.Name(), checkpointFile)); err == nil {
			active++
		}
	}
	m.metrics.ActiveWorkflows.Set(float64(active))
}

// Close stops the monitor and releases the watcher.
func (m *Monitor) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	return m.watcher.Close()
}

// Package supervisor composes the logger, config, watcher, and reconciler
// into the daemon's top-level process lifecycle: startup sequencing,
// signal-driven shutdown, periodic sweep scheduling, and status reporting.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/lexsync/isync-adapter/internal/config"
	"github.com/lexsync/isync-adapter/internal/logging"
	syncengine "github.com/lexsync/isync-adapter/internal/sync"
	"github.com/lexsync/isync-adapter/internal/watcher"
)

// statusReportInterval is how often the status reporter emits a log line
// and refreshes status.json (spec §4.5 step 7).
const statusReportInterval = 5 * time.Minute

// Supervisor owns the top-level control flow: it wires Logger, Config,
// Watcher, and Reconciler together and runs the startup/shutdown sequence
// spec §4.5 describes, in order.
type Supervisor struct {
	cfgPath string
	cfg     *config.Config

	logger *logging.Logger
	rec    *syncengine.Reconciler
	watch  *watcher.Watcher

	startTime time.Time
}

// New loads configuration from cfgPath and constructs a Supervisor. The
// logger is initialized at the default "info" level before config load (so
// a config-load failure is still logged), then re-initialized at the
// configured level once config is known — this is the order-critical
// sequence spec §4.5 and DESIGN NOTES §9 both require.
func New(cfgPath string) (*Supervisor, error) {
	logging.Init("info", "")
	logger := logging.L()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("startup: config load failed", "path", cfgPath, "error", err.Error())
		return nil, err
	}

	logDir := filepath.Join(filepath.Dir(cfgPath), "logs")
	logging.Init(cfg.LogLevel, logDir)
	logger = logging.L()

	if cloudPath, cerr := cfg.CloudPath(); cerr != nil {
		logger.Warn("startup: cloud root unavailable", "error", cerr.Error())
	} else if err := os.MkdirAll(cloudPath, 0o755); err != nil {
		logger.Warn("startup: failed to create cloud root", "path", cloudPath, "error", err.Error())
	}

	rec := syncengine.New(cfg, logger)

	// Watcher surfaces events only for cloudRoot and outputPath (spec §4.3);
	// localRoot is a sweep/event-copy destination only and is never itself
	// watched — watching it would burn fsnotify handles across the whole
	// local cases tree and compete for the shared bounded event channel
	// with events that actually drive reconciliation.
	roots := []string{cfg.OutputPath()}
	if cloudPath, cerr := cfg.CloudPath(); cerr == nil {
		roots = append(roots, cloudPath)
	}
	_ = os.MkdirAll(cfg.OutputPath(), 0o755)
	w := watcher.New(roots, logger)

	return &Supervisor{
		cfgPath:   cfgPath,
		cfg:       cfg,
		logger:    logger,
		rec:       rec,
		watch:     w,
		startTime: time.Now(),
	}, nil
}

// Run executes the startup sequence, blocks draining events and ticking
// sweeps until ctx is cancelled, then performs an orderly shutdown. It
// returns nil on graceful shutdown and a non-nil error if the watcher
// cannot be started. A failed initial sweep is logged, not returned.
func (s *Supervisor) Run(ctx context.Context) error {
	sweepStart := time.Now()
	if err := s.rec.FullSweep(ctx); err != nil {
		s.logger.Warn("startup: initial sweep failed", "error", err.Error())
	}
	snap := s.rec.Stats()
	s.logger.Info("startup: ready",
		"elapsed", time.Since(sweepStart).String(),
		"filesSynced", snap.FilesSynced,
		"directoriesSynced", snap.DirectoriesSynced,
		"errors", snap.Errors,
	)

	events, err := s.watch.Start()
	if err != nil {
		s.logger.Error("startup: watcher failed to start", "error", err.Error())
		return fmt.Errorf("start watcher: %w", err)
	}

	var wg stdsync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.drainEvents(ctx, events) }()
	go func() { defer wg.Done(); s.runSweepTicker(ctx) }()
	go func() { defer wg.Done(); s.runStatusReporter(ctx) }()

	<-ctx.Done()
	s.logger.Info("shutdown: signal received, draining in-flight work")
	wg.Wait()

	s.watch.Stop()
	s.writeStatus()
	snap = s.rec.Stats()
	s.logger.Info("shutdown: complete",
		"uptime", time.Since(s.startTime).String(),
		"filesSynced", snap.FilesSynced,
		"directoriesSynced", snap.DirectoriesSynced,
		"errors", snap.Errors,
	)
	return nil
}

// drainEvents consumes the Watcher's event stream into the Reconciler until
// ctx is cancelled or the channel closes.
func (s *Supervisor) drainEvents(ctx context.Context, events <-chan watcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.rec.HandleEvent(ctx, ev)
		}
	}
}

// runSweepTicker triggers a full sweep every sweepIntervalSeconds until ctx
// is cancelled.
func (s *Supervisor) runSweepTicker(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.rec.FullSweep(ctx); err != nil {
				s.logger.Warn("sweep: failed", "error", err.Error())
			}
		}
	}
}

// runStatusReporter emits a status log line and refreshes status.json every
// statusReportInterval until ctx is cancelled.
func (s *Supervisor) runStatusReporter(ctx context.Context) {
	ticker := time.NewTicker(statusReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.rec.Stats()
			s.logger.Info("status",
				"uptime", time.Since(s.startTime).String(),
				"filesSynced", snap.FilesSynced,
				"directoriesSynced", snap.DirectoriesSynced,
				"errors", snap.Errors,
				"lastSweepCompleted", snap.LastSweepCompleted.Format(time.RFC3339),
			)
			s.writeStatus()
		}
	}
}

// statusDocument is the shape of status.json, which the out-of-scope
// dashboard may read observationally (spec §6: "the upstream dashboard
// consumes only ... the status file if present").
type statusDocument struct {
	PID                int       `json:"pid"`
	StartTime          time.Time `json:"startTime"`
	LastSweepCompleted time.Time `json:"lastSweepCompleted"`
	FilesSynced        int64     `json:"filesSynced"`
	DirectoriesSynced  int64     `json:"directoriesSynced"`
	Errors             int64     `json:"errors"`
	CloudAvailable     bool      `json:"cloudAvailable"`
}

// writeStatus persists a status.json snapshot alongside the config file.
// Failures are logged, never fatal — this file is a convenience for an
// external observer, not load-bearing daemon state.
func (s *Supervisor) writeStatus() {
	snap := s.rec.Stats()
	_, cloudErr := s.cfg.CloudPath()

	doc := statusDocument{
		PID:                os.Getpid(),
		StartTime:          snap.StartTime,
		LastSweepCompleted: snap.LastSweepCompleted,
		FilesSynced:        snap.FilesSynced,
		DirectoriesSynced:  snap.DirectoriesSynced,
		Errors:             snap.Errors,
		CloudAvailable:     cloudErr == nil,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Warn("status: encode failed", "error", err.Error())
		return
	}
	data = append(data, '\n')

	path := filepath.Join(filepath.Dir(s.cfgPath), "status.json")
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("status: write failed", "path", path, "error", err.Error())
	}
}

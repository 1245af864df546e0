// Package sync implements the two-root reconciliation engine: the
// per-file decision algorithm, full-tree sweeps, and event-driven
// single-file reconciliation, all converging under a newest-wins policy.
package sync

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/lexsync/isync-adapter/internal/config"
	"github.com/lexsync/isync-adapter/internal/logging"
	"github.com/lexsync/isync-adapter/internal/watcher"
)

// Reconciler makes the cloud and local roots converge, both reactively
// (one event at a time) and proactively (periodic full sweep).
type Reconciler struct {
	cfg    *config.Config
	logger *logging.Logger
	stats  *Stats

	isSweeping atomic.Bool
}

// New constructs a Reconciler against cfg. logger may be nil, in which
// case logging.L() is used.
func New(cfg *config.Config, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.L()
	}
	return &Reconciler{cfg: cfg, logger: logger, stats: NewStats()}
}

// Stats returns a snapshot of the process-wide sync counters.
func (r *Reconciler) Stats() Snapshot { return r.stats.Snapshot() }

// FullSweep walks both roots and converges them per spec §4.4's full
// sweep algorithm. A sweep is atomic relative to itself: the isSweeping
// flag suppresses event-driven copies for its duration, and FullSweep
// itself is never invoked concurrently with another sweep by Supervisor's
// wiring (a single ticker/goroutine owns sweep scheduling).
func (r *Reconciler) FullSweep(ctx context.Context) error {
	r.isSweeping.Store(true)
	defer r.isSweeping.Store(false)

	cloudRoot, err := r.cfg.CloudPath()
	if err != nil {
		r.logger.Error("sweep: cloud root unavailable", "error", err.Error())
	} else {
		r.walkAndSync(ctx, cloudRoot, r.cfg.LocalRoot, DirCloudToLocal)
	}

	outputPath := r.cfg.OutputPath()
	if info, statErr := os.Stat(outputPath); statErr == nil && info.IsDir() && cloudRoot != "" {
		cloudOutputs := filepath.Join(cloudRoot, "outputs")
		if err := os.MkdirAll(cloudOutputs, 0o755); err != nil {
			r.logger.Warn("sweep: cannot create cloud outputs dir", "path", cloudOutputs, "error", err.Error())
		} else {
			r.walkAndSync(ctx, outputPath, cloudOutputs, DirLocalToCloud)
		}
	}

	r.stats.markSweepCompleted(time.Now())
	return nil
}

// walkAndSync walks srcRoot and, for every non-skipped file, computes the
// mirrored path under dstRoot and applies the per-file decision in the
// given direction. Individual-file errors are logged and counted; they
// never abort the walk.
func (r *Reconciler) walkAndSync(ctx context.Context, srcRoot, dstRoot string, direction Direction) {
	_ = filepath.Walk(srcRoot, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			r.logger.Warn("sweep: walk error", "path", path, "error", err.Error())
			return nil
		}
		if path == srcRoot {
			return nil
		}

		rel, relErr := filepath.Rel(srcRoot, path)
		if relErr != nil {
			r.logger.Warn("sweep: relative path error", "path", path, "error", relErr.Error())
			return nil
		}
		dst := filepath.Join(dstRoot, rel)

		base := filepath.Base(path)
		if info.IsDir() {
			if watcher.IsSkippedDir(base, false) {
				return filepath.SkipDir
			}
			if err := ensureDir(dst); err != nil {
				r.logger.Warn("sweep: mkdir failed", "path", dst, "error", err.Error())
				r.stats.incErrors()
				return nil
			}
			r.stats.incDirectoriesSynced()
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			r.logger.Debug("sweep: skipping symlink", "path", path)
			return nil
		}
		if watcher.IsSkippedFile(base) {
			return nil
		}

		r.syncOne(path, dst, direction)
		return nil
	})
}

// syncOne applies the per-file decision algorithm for a single (src, dst)
// pair and performs the copy if required.
func (r *Reconciler) syncOne(src, dst string, direction Direction) {
	decision, err := decide(src, dst, direction)
	if err != nil {
		r.logger.Warn("sync: decide failed", "src", src, "dst", dst, "error", err.Error())
		r.stats.incErrors()
		return
	}
	if decision.Direction == DirNone {
		return
	}
	if err := copyFile(src, dst); err != nil {
		r.logger.Warn("sync: copy failed", "src", src, "dst", dst, "reason", string(decision.Reason), "error", err.Error())
		r.stats.incErrors()
		return
	}
	r.stats.incFilesSynced()
	r.logger.Debug("sync: copied", "src", src, "dst", dst, "reason", string(decision.Reason))
}

// HandleEvent reconciles a single FileEvent. While a full sweep is in
// progress, event-driven copies are suppressed (the sweep is authoritative
// and will re-resolve any missed event); this is the loop-avoidance
// discipline of spec §4.4.
func (r *Reconciler) HandleEvent(ctx context.Context, ev watcher.Event) {
	if r.isSweeping.Load() {
		return
	}

	cloudRoot, cloudErr := r.cfg.CloudPath()
	localRoot := r.cfg.LocalRoot
	outputPath := r.cfg.OutputPath()

	switch {
	case cloudErr == nil && withinRoot(ev.Path, cloudRoot):
		r.handleUnderRoot(ctx, ev, cloudRoot, localRoot, DirCloudToLocal)
	case withinRoot(ev.Path, outputPath):
		if cloudErr != nil {
			return
		}
		cloudOutputs := filepath.Join(cloudRoot, "outputs")
		r.handleUnderRoot(ctx, ev, outputPath, cloudOutputs, DirLocalToCloud)
	}
}

func (r *Reconciler) handleUnderRoot(ctx context.Context, ev watcher.Event, srcRoot, dstRoot string, direction Direction) {
	rel, err := filepath.Rel(srcRoot, ev.Path)
	if err != nil {
		return
	}
	dst := filepath.Join(dstRoot, rel)
	base := filepath.Base(ev.Path)

	if ev.IsDir {
		if watcher.IsSkippedDir(base, false) {
			return
		}
		if ev.Op&watcher.Create != 0 {
			if err := ensureDir(dst); err != nil {
				r.logger.Warn("event: mkdir failed", "path", dst, "error", err.Error())
				r.stats.incErrors()
				return
			}
			r.stats.incDirectoriesSynced()
		}
		return
	}

	if watcher.IsSkippedFile(base) {
		return
	}

	if ev.Op&watcher.Remove != 0 {
		r.handleRemove(dst, ev, direction)
		return
	}

	if ev.Op&(watcher.Create|watcher.Write) != 0 {
		if info, err := os.Lstat(ev.Path); err == nil && info.Mode()&os.ModeSymlink != 0 {
			r.logger.Debug("event: skipping symlink", "path", ev.Path)
			return
		}
		r.syncOne(ev.Path, dst, direction)
	}
}

// handleRemove applies the conservative delete-propagation rule of spec
// §9: deletions are only propagated along the bidirectional path, and
// only when the mirrored destination file's mtime is older than the
// deletion's observed timestamp. The upload-only outputs path never
// propagates deletions at all.
func (r *Reconciler) handleRemove(dst string, ev watcher.Event, direction Direction) {
	if direction == DirLocalToCloud {
		// upload-only path: a cloud-side removal must never cascade to
		// destruction of local work, and a local removal of an uploaded
		// output is not propagated either — uploads are additive only.
		return
	}
	info, err := os.Stat(dst)
	if err != nil {
		return
	}
	if info.ModTime().Before(ev.At) {
		if err := os.Remove(dst); err != nil {
			r.logger.Warn("event: delete propagation failed", "path", dst, "error", err.Error())
			r.stats.incErrors()
			return
		}
		r.logger.Debug("event: propagated delete", "path", dst)
	} else {
		r.logger.Debug("event: withheld delete, destination newer than deletion", "path", dst)
	}
}

func withinRoot(path, root string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.' &&
		(len(rel) == 2 || rel[2] == os.PathSeparator)
}

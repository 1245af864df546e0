// Package watcher surfaces a single ordered stream of filesystem events for
// changes under one or more root directories, recursively enrolling new
// subtrees as they appear and filtering out well-known transient noise.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lexsync/isync-adapter/internal/logging"
)

// Op mirrors fsnotify's operation bitmask as the operations spec's
// FileEvent enumerates.
type Op uint32

const (
	Create Op = 1 << iota
	Write
	Chmod
	Remove
	Rename
)

func fromFsnotify(op fsnotify.Op) Op {
	var out Op
	if op&fsnotify.Create != 0 {
		out |= Create
	}
	if op&fsnotify.Write != 0 {
		out |= Write
	}
	if op&fsnotify.Chmod != 0 {
		out |= Chmod
	}
	if op&fsnotify.Remove != 0 {
		out |= Remove
	}
	if op&fsnotify.Rename != 0 {
		out |= Rename
	}
	return out
}

// Event is the FileEvent of spec §3.
type Event struct {
	Path string
	Op   Op
	IsDir bool
	At   time.Time
}

// queueCapacity is the bounded channel capacity spec §4.3 requires (>= 100).
const queueCapacity = 256

// transientDirNames are well-known directories whose churn must never be
// mirrored or even watched.
var transientDirNames = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "__pycache__": true, ".venv": true, "venv": true,
	".mypy_cache": true, ".pytest_cache": true, ".tox": true,
	".Trash": true, "$RECYCLE.BIN": true,
}

// transientFileSuffixes are editor swap/lock/temp file suffixes.
var transientFileSuffixes = []string{".tmp", ".temp", ".swp", ".swo", "~", ".lock", ".pid"}

// osMetadataNames are exact OS-metadata basenames.
var osMetadataNames = map[string]bool{"Thumbs.db": true, "desktop.ini": true}

// IsSkippedDir reports whether a directory (by basename) must never be
// enrolled. root directories themselves are never skipped by this check —
// callers pass isRoot for that exemption.
func IsSkippedDir(base string, isRoot bool) bool {
	if isRoot {
		return false
	}
	if strings.HasPrefix(base, ".") {
		return true
	}
	return transientDirNames[base]
}

// IsSkippedFile reports whether a file (by basename) must never be
// mirrored or surfaced as an event.
func IsSkippedFile(base string) bool {
	if base == ".DS_Store" || osMetadataNames[base] {
		return true
	}
	if strings.HasPrefix(base, "._") {
		return true
	}
	for _, suf := range transientFileSuffixes {
		if strings.HasSuffix(base, suf) {
			return true
		}
	}
	return false
}

// IsSkipped reports whether path (a file or directory, not a root) must be
// skipped entirely by both the Watcher and the Reconciler.
func IsSkipped(path string, isDir bool) bool {
	base := filepath.Base(path)
	if isDir {
		return IsSkippedDir(base, false)
	}
	return IsSkippedFile(base)
}

// Watcher recursively watches one or more root directories via fsnotify,
// auto-enrolling newly created subtrees and delivering a single ordered
// event stream.
type Watcher struct {
	roots  []string
	logger *logging.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	watched map[string]bool

	out  chan Event
	done chan struct{}
}

// New constructs a Watcher over roots. logger may be nil, in which case
// logging.L() is used.
func New(roots []string, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.L()
	}
	return &Watcher{
		roots:   roots,
		logger:  logger,
		watched: make(map[string]bool),
	}
}

// Start enrolls every existing directory under the configured roots and
// begins delivering events on the returned channel. The channel is closed
// by Stop.
func (w *Watcher) Start() (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	w.out = make(chan Event, queueCapacity)
	w.done = make(chan struct{})

	for _, root := range w.roots {
		if err := w.enrollTree(root); err != nil {
			w.logger.Warn("watcher: error enrolling root", "root", root, "error", err.Error())
		}
	}

	go w.loop()
	return w.out, nil
}

// Stop releases OS handles and closes the output channel.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	if w.done != nil {
		<-w.done
	}
}

// enrollTree recursively registers every non-skipped directory under root
// with the underlying fsnotify watcher. Walk errors are logged and walking
// continues — partial enrollment beats none.
func (w *Watcher) enrollTree(root string) error {
	isRoot := true
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("watcher: walk error", "path", path, "error", err.Error())
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if IsSkippedDir(base, isRoot && path == root) {
			return filepath.SkipDir
		}
		w.addDir(path)
		return nil
	})
}

func (w *Watcher) addDir(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[path] {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("watcher: add failed", "path", path, "error", err.Error())
		return
	}
	w.watched[path] = true
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer close(w.out)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher: fsnotify error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(raw fsnotify.Event) {
	base := filepath.Base(raw.Name)
	info, statErr := os.Lstat(raw.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir {
		if IsSkippedDir(base, false) {
			return
		}
	} else if IsSkippedFile(base) {
		return
	}

	// Dynamic enrollment: a new directory must be registered before this
	// handler returns, so events under the new subtree are never lost.
	if raw.Op&fsnotify.Create != 0 && isDir {
		if err := w.enrollTree(raw.Name); err != nil {
			w.logger.Warn("watcher: enroll new subtree failed", "path", raw.Name, "error", err.Error())
		}
	}

	ev := Event{
		Path:  raw.Name,
		Op:    fromFsnotify(raw.Op),
		IsDir: isDir,
		At:    time.Now(),
	}
	w.push(ev)
}

// push delivers ev, dropping the oldest queued event and logging at warn
// when the bounded queue is full. The periodic full sweep is the
// authoritative convergence mechanism, so a dropped event is tolerable.
func (w *Watcher) push(ev Event) {
	select {
	case w.out <- ev:
		return
	default:
	}
	select {
	case <-w.out:
		w.logger.Warn("watcher: event queue full, dropped oldest event")
	default:
	}
	select {
	case w.out <- ev:
	default:
		w.logger.Warn("watcher: event queue full, dropped event", "path", ev.Path)
	}
}

package sync

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is the process-wide SyncStats of spec §3: monotonically updated
// counters plus two timestamps, safe for concurrent access from whichever
// task currently holds the single-writer role (sweep or event handler).
type Stats struct {
	filesSynced       atomic.Int64
	directoriesSynced atomic.Int64
	errors            atomic.Int64

	mu                 sync.RWMutex
	startTime          time.Time
	lastSweepCompleted time.Time
}

// NewStats returns a Stats with StartTime set to now.
func NewStats() *Stats {
	s := &Stats{}
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()
	return s
}

func (s *Stats) incFilesSynced()       { s.filesSynced.Add(1) }
func (s *Stats) incDirectoriesSynced() { s.directoriesSynced.Add(1) }
func (s *Stats) incErrors()            { s.errors.Add(1) }

func (s *Stats) markSweepCompleted(t time.Time) {
	s.mu.Lock()
	s.lastSweepCompleted = t
	s.mu.Unlock()
}

// Snapshot is an immutable read of Stats at a point in time.
type Snapshot struct {
	FilesSynced        int64
	DirectoriesSynced  int64
	Errors             int64
	StartTime          time.Time
	LastSweepCompleted time.Time
}

// Snapshot returns the current values of every field without tearing.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		FilesSynced:        s.filesSynced.Load(),
		DirectoriesSynced:  s.directoriesSynced.Load(),
		Errors:             s.errors.Load(),
		StartTime:          s.startTime,
		LastSweepCompleted: s.lastSweepCompleted,
	}
}

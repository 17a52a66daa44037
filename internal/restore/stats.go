package restore

import (
	"sync"
	"time"
)

// Stats tracks restore activity across objects (thread-safe).
type Stats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	RecordsRestored int64
	RecordsFailed   int64
	BatchesWritten  int64
	Retries         int64
	JobsCreated     int64
	ObjectsRestored int64
}

// StatsSnapshot is a point-in-time copy of stats.
type StatsSnapshot struct {
	Uptime          time.Duration
	RecordsRestored int64
	RecordsFailed   int64
	BatchesWritten  int64
	Retries         int64
	JobsCreated     int64
	ObjectsRestored int64
}

// NewStats creates stats anchored at now.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

func (s *Stats) AddRestored(n int) {
	s.mu.Lock()
	s.RecordsRestored += int64(n)
	s.mu.Unlock()
}

func (s *Stats) AddFailed(n int) {
	s.mu.Lock()
	s.RecordsFailed += int64(n)
	s.mu.Unlock()
}

func (s *Stats) IncrBatches() {
	s.mu.Lock()
	s.BatchesWritten++
	s.mu.Unlock()
}

func (s *Stats) IncrRetries() {
	s.mu.Lock()
	s.Retries++
	s.mu.Unlock()
}

func (s *Stats) IncrJobs() {
	s.mu.Lock()
	s.JobsCreated++
	s.mu.Unlock()
}

func (s *Stats) IncrObjects() {
	s.mu.Lock()
	s.ObjectsRestored++
	s.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the stats.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		Uptime:          time.Since(s.StartTime),
		RecordsRestored: s.RecordsRestored,
		RecordsFailed:   s.RecordsFailed,
		BatchesWritten:  s.BatchesWritten,
		Retries:         s.Retries,
		JobsCreated:     s.JobsCreated,
		ObjectsRestored: s.ObjectsRestored,
	}
}

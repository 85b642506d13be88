package monitoring

import (
	"sort"
	"sync"
	"time"
)

// JobStatus summarises the run history of one background job.
type JobStatus struct {
	Job                 string        `json:"job"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastSuccessAt       time.Time     `json:"last_success_at,omitempty"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// JobTracker records background job outcomes for the maintenance health probe.
type JobTracker struct {
	mu   sync.Mutex
	now  func() time.Time
	jobs map[string]*JobStatus
}

// NewJobTracker constructs a tracker. A nil clock uses time.Now.
func NewJobTracker(now func() time.Time) *JobTracker {
	if now == nil {
		now = time.Now
	}
	return &JobTracker{now: now, jobs: make(map[string]*JobStatus)}
}

// Register makes a job visible before its first run.
func (t *JobTracker) Register(job string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(job)
}

// Record stores the outcome of one run. A nil err counts as success.
func (t *JobTracker) Record(job string, err error, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.entry(job)
	now := t.now()
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.TotalRuns++

	if err != nil {
		entry.LastError = err.Error()
		entry.ConsecutiveFailures++
		return
	}
	entry.LastError = ""
	entry.ConsecutiveFailures = 0
	entry.LastSuccessAt = now
}

// Snapshot returns a copy of every job status ordered by name.
func (t *JobTracker) Snapshot() []JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobStatus, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// Now exposes the tracker clock so probes judge staleness consistently.
func (t *JobTracker) Now() time.Time { return t.now() }

func (t *JobTracker) entry(job string) *JobStatus {
	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobStatus{Job: job}
		t.jobs[job] = entry
	}
	return entry
}

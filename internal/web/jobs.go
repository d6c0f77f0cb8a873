package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lvcoi/ytdl-web/internal/downloader"
	"github.com/lvcoi/ytdl-web/internal/selector"
	"github.com/lvcoi/ytdl-web/internal/ws"
)

const (
	statusQueued   = "queued"
	statusRunning  = "running"
	statusComplete = "complete"
	statusError    = "error"
	statusTaken    = "delivered"
)

// jobView is the serialized form of a Job.
type jobView struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	URL         string           `json:"url"`
	Request     selector.Request `json:"request"`
	Percent     float64          `json:"percent"`
	Filename    string           `json:"filename,omitempty"`
	Size        int64            `json:"size,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
}

// Job is an asynchronous download.
type Job struct {
	jobView

	file      *downloader.File
	published float64
	mu        sync.RWMutex
}

// jobTracker holds jobs until their TTL runs out.
type jobTracker struct {
	jobs sync.Map
}

func (jt *jobTracker) Create(url string, req selector.Request) *Job {
	job := &Job{jobView: jobView{
		ID:        uuid.NewString(),
		Status:    statusQueued,
		URL:       url,
		Request:   req,
		CreatedAt: time.Now(),
	}}
	jt.jobs.Store(job.ID, job)
	return job
}

func (jt *jobTracker) Get(id string) (*Job, bool) {
	v, ok := jt.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Job), true
}

func (jt *jobTracker) Delete(id string) {
	jt.jobs.Delete(id)
}

func (jt *jobTracker) ActiveCount() int {
	count := 0
	jt.jobs.Range(func(_, v any) bool {
		if v.(*Job).isActive() {
			count++
		}
		return true
	})
	return count
}

// RemoveExpired drops finished jobs older than their TTL and deletes any
// file nobody collected.
func (jt *jobTracker) RemoveExpired(now time.Time, completedTTL, erroredTTL time.Duration) int {
	removed := 0
	jt.jobs.Range(func(key, value any) bool {
		job := value.(*Job)
		if !job.isExpired(now, completedTTL, erroredTTL) {
			return true
		}
		jt.jobs.Delete(key)
		if f := job.takeFile(); f != nil {
			f.Remove()
		}
		removed++
		return true
	})
	return removed
}

func (jt *jobTracker) StartCleanup(ctx context.Context, interval, completedTTL, erroredTTL time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				jt.RemoveExpired(now, completedTTL, erroredTTL)
			}
		}
	}()
}

func (j *Job) isActive() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == statusQueued || j.Status == statusRunning
}

func (j *Job) isExpired(now time.Time, completedTTL, erroredTTL time.Duration) bool {
	j.mu.RLock()
	status, completedAt := j.Status, j.CompletedAt
	j.mu.RUnlock()
	if completedAt.IsZero() {
		return false
	}
	ttl := completedTTL
	if status == statusError {
		ttl = erroredTTL
	}
	return ttl > 0 && now.Sub(completedAt) > ttl
}

// Snapshot returns a copy safe to serialize.
func (j *Job) Snapshot() jobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jobView
}

func (j *Job) update() ws.JobUpdate {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return ws.JobUpdate{ID: j.ID, Status: j.Status, Percent: j.Percent, Filename: j.Filename, Message: j.Error}
}

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = statusRunning
}

// setPercent reports whether the change is large enough to publish.
func (j *Job) setPercent(p float64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if p < j.Percent {
		return false
	}
	j.Percent = p
	if p-j.published >= 1 || (p == 100 && j.published != 100) {
		j.published = p
		return true
	}
	return false
}

func (j *Job) finish(file *downloader.File, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.CompletedAt = time.Now()
	if err != nil {
		j.Status = statusError
		j.Error = err.Error()
		return
	}
	j.Status = statusComplete
	j.Percent = 100
	j.Filename = file.Name
	j.Size = file.Size
	j.file = file
}

// takeFile hands the finished file out exactly once.
func (j *Job) takeFile() *downloader.File {
	j.mu.Lock()
	defer j.mu.Unlock()
	f := j.file
	j.file = nil
	if f != nil && j.Status == statusComplete {
		j.Status = statusTaken
	}
	return f
}

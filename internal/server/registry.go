package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"capline/internal/engine"
)

var (
	errRunNotFound      = errors.New("run not found")
	errArchiveDisabled  = errors.New("archive is not configured")
	errReceiptsDisabled = errors.New("receipts are disabled; set CAPLINE_RECEIPT_SECRET")
)

const (
	finishedRunTTL = time.Hour
	idleRunTTL     = 24 * time.Hour
)

type registryEntry struct {
	run     *engine.Run
	touched time.Time
}

// registry holds live runs by handle. One mutex serializes every call into
// the engine, which is not safe for concurrent use. Finished runs are dropped
// an hour after their last use, unfinished ones after a day.
type registry struct {
	mu          sync.Mutex
	runs        map[string]*registryEntry
	now         func() time.Time
	finishedTTL time.Duration
	idleTTL     time.Duration
}

func newRegistry() *registry {
	return &registry{
		runs:        map[string]*registryEntry{},
		now:         time.Now,
		finishedTTL: finishedRunTTL,
		idleTTL:     idleRunTTL,
	}
}

func (r *registry) add(run *engine.Run) string {
	key := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	r.runs[key] = &registryEntry{run: run, touched: now}
	return key
}

func (r *registry) with(key string, fn func(*engine.Run) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	e, ok := r.runs[key]
	if !ok {
		return errRunNotFound
	}
	e.touched = now
	return fn(e.run)
}

func (r *registry) remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[key]; !ok {
		return false
	}
	delete(r.runs, key)
	return true
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// sweep drops expired runs. Callers hold mu.
func (r *registry) sweep(now time.Time) {
	for key, e := range r.runs {
		ttl := r.idleTTL
		if e.run.Finished() {
			ttl = r.finishedTTL
		}
		if now.Sub(e.touched) > ttl {
			delete(r.runs, key)
		}
	}
}

package reducer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/metrics"
)

// Dispatcher serializes reducer work per (user, ayah) key. At most one
// reduction runs per key; enqueues that land while one is in flight mark the
// key for a trailing rerun instead of stacking goroutines. Because the
// reduction is a full replay, one trailing run absorbs any number of missed
// enqueues.
type Dispatcher struct {
	service *Service
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu       sync.Mutex
	inflight map[string]*slot
	wg       sync.WaitGroup
}

type slot struct {
	rerun bool
}

// NewDispatcher builds a dispatcher around a reducer service.
func NewDispatcher(service *Service, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		service:  service,
		logger:   logger,
		metrics:  m,
		timeout:  30 * time.Second,
		inflight: make(map[string]*slot),
	}
}

// WithTimeout overrides the per-run deadline.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

func itemKey(userID uuid.UUID, ayahID int) string {
	return fmt.Sprintf("%s:%d", userID, ayahID)
}

// Enqueue schedules a reduction for the pair. Non-blocking.
func (d *Dispatcher) Enqueue(userID uuid.UUID, ayahID int) {
	key := itemKey(userID, ayahID)

	d.mu.Lock()
	if s, ok := d.inflight[key]; ok {
		s.rerun = true
		d.mu.Unlock()
		return
	}
	d.inflight[key] = &slot{}
	if d.metrics != nil {
		d.metrics.ReducerQueueLag.Set(float64(len(d.inflight)))
	}
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(key, userID, ayahID)
}

func (d *Dispatcher) run(key string, userID uuid.UUID, ayahID int) {
	defer d.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.service.Reduce(ctx, userID, ayahID); err != nil {
			// The reduce is a pure replay; the next event for this pair
			// re-enqueues it, so a failed run is not retried in a loop here.
			d.logger.Warn("reducer run failed, deferring to next enqueue",
				zap.String("key", key), zap.Error(err))
		}
		cancel()

		d.mu.Lock()
		s := d.inflight[key]
		if s != nil && s.rerun {
			s.rerun = false
			d.mu.Unlock()
			continue
		}
		delete(d.inflight, key)
		if d.metrics != nil {
			d.metrics.ReducerQueueLag.Set(float64(len(d.inflight)))
		}
		d.mu.Unlock()
		return
	}
}

// Wait blocks until all in-flight reductions drain. Used on shutdown and in
// tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

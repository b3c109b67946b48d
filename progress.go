package verimail

import (
	"sync"
	"sync/atomic"
	"time"
)

// Progress is a point-in-time snapshot of a batch run: processed count
// (monotonically increasing), throughput and an estimate of the time
// remaining. Remaining is zero until enough addresses completed for a
// usable rate.
type Progress struct {
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	Rate      float64       `json:"rate"` // addresses per second
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

// progressTracker counts finalized addresses for one batch run.
type progressTracker struct {
	total     int
	start     time.Time
	processed atomic.Int64
}

func newProgressTracker(total int) *progressTracker {
	return &progressTracker{total: total, start: time.Now()}
}

func (t *progressTracker) add(n int) {
	t.processed.Add(int64(n))
}

func (t *progressTracker) snapshot() Progress {
	processed := int(t.processed.Load())
	elapsed := time.Since(t.start)

	p := Progress{
		Processed: processed,
		Total:     t.total,
		Elapsed:   elapsed,
	}
	if processed > 0 && elapsed > 0 {
		p.Rate = float64(processed) / elapsed.Seconds()
		remaining := t.total - processed
		p.Remaining = time.Duration(float64(remaining) / p.Rate * float64(time.Second))
	}
	return p
}

// observe starts the coarse-interval reporter. The returned stop
// function emits one final snapshot; it is safe to call twice.
func (t *progressTracker) observe(interval time.Duration, fn func(Progress)) func() {
	if fn == nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(t.snapshot())
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			fn(t.snapshot())
		})
	}
}

package metrics

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallKind identifies which external capability a metric belongs to.
type CallKind string

const (
	KindListingExtract CallKind = "listing_extract"
	KindDetailExtract  CallKind = "detail_extract"
	KindClassify       CallKind = "classify"
)

// Call records one model-backed external call.
type Call struct {
	RequestID string
	Kind      CallKind
	Model     string
	URL       string
	Tokens    int
	Duration  time.Duration
	Err       string
	At        time.Time
}

// Summary aggregates the calls currently retained in the buffer.
type Summary struct {
	Calls       int
	Failures    int
	TotalTokens int
	AvgLatency  time.Duration
}

// Recorder is a size-bounded ring buffer of model-call metrics. It is
// created once at process start and passed to whatever makes model calls;
// the oldest entries are overwritten when capacity is reached.
type Recorder struct {
	mu       sync.Mutex
	buf      []Call
	next     int
	filled   bool
	capacity int
}

// NewRecorder creates a recorder retaining at most capacity calls.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Recorder{
		buf:      make([]Call, capacity),
		capacity: capacity,
	}
}

// Record stores one call, stamping it with a request ID and timestamp.
// It returns the request ID for correlation in logs.
func (r *Recorder) Record(c Call) string {
	c.RequestID = uuid.NewString()
	c.At = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = c
	r.next++
	if r.next == r.capacity {
		r.next = 0
		r.filled = true
	}
	return c.RequestID
}

// Snapshot returns retained calls, oldest first.
func (r *Recorder) Snapshot() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]Call, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]Call, 0, r.capacity)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Summarize aggregates the retained calls.
func (r *Recorder) Summarize() Summary {
	calls := r.Snapshot()

	var s Summary
	var total time.Duration
	for _, c := range calls {
		s.Calls++
		s.TotalTokens += c.Tokens
		total += c.Duration
		if c.Err != "" {
			s.Failures++
		}
	}
	if s.Calls > 0 {
		s.AvgLatency = total / time.Duration(s.Calls)
	}
	return s
}

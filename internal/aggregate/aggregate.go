// Package aggregate keeps running statistics over a stream of observations,
// with optional quantiles backed by DDSketch.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the relative accuracy of quantile estimates.
const DefaultAccuracy = 0.01

// Stream maintains count, sum, min, max and optionally quantiles.
// It is safe for concurrent use.
type Stream struct {
	mu sync.Mutex

	count int64
	sum   float64
	min   float64
	max   float64
	last  float64

	// DDSketch for quantiles (nil if disabled)
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// New creates a Stream. When withQuantiles is set, quantiles are estimated
// with DefaultAccuracy.
func New(withQuantiles bool) *Stream {
	if !withQuantiles {
		return newStream(0)
	}
	return newStream(DefaultAccuracy)
}

// NewWithAccuracy creates a Stream with quantiles at the given relative accuracy.
func NewWithAccuracy(accuracy float64) *Stream {
	return newStream(accuracy)
}

func newStream(accuracy float64) *Stream {
	s := &Stream{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}
	s.sketch = s.newSketch()
	return s
}

func (s *Stream) newSketch() *ddsketch.DDSketch {
	if s.accuracy <= 0 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(s.accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add records one observation.
func (s *Stream) Add(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.sum += value
	s.last = value

	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}

	if s.sketch != nil {
		s.sketch.Add(value)
	}
}

// Count returns the number of observations.
func (s *Stream) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Result returns a snapshot of the statistics. Zero-valued when empty.
func (s *Stream) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Result{Count: s.count, Sum: s.sum}
	if s.count == 0 {
		return r
	}

	r.Avg = s.sum / float64(s.count)
	r.Min = s.min
	r.Max = s.max
	r.Last = s.last

	if s.sketch != nil {
		r.P50, _ = s.sketch.GetValueAtQuantile(0.50)
		r.P90, _ = s.sketch.GetValueAtQuantile(0.90)
		r.P95, _ = s.sketch.GetValueAtQuantile(0.95)
		r.P99, _ = s.sketch.GetValueAtQuantile(0.99)
		r.Quantiles = true
	}

	return r
}

// Quantile returns the estimated value at q, or 0 when empty or disabled.
func (s *Stream) Quantile(q float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sketch == nil || s.count == 0 {
		return 0
	}
	v, err := s.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}

// Reset discards all observations.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count = 0
	s.sum = 0
	s.last = 0
	s.min = math.MaxFloat64
	s.max = -math.MaxFloat64

	// DDSketch has no Clear method
	s.sketch = s.newSketch()
}

// Merge folds other into s.
func (s *Stream) Merge(other *Stream) {
	if other == nil || other == s {
		return
	}

	other.mu.Lock()
	if other.count == 0 {
		other.mu.Unlock()
		return
	}
	count, sum, min, max, last := other.count, other.sum, other.min, other.max, other.last
	var otherSketch *ddsketch.DDSketch
	if other.sketch != nil {
		otherSketch = other.sketch.Copy()
	}
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.count += count
	s.sum += sum
	s.last = last
	if min < s.min {
		s.min = min
	}
	if max > s.max {
		s.max = max
	}
	if s.sketch != nil && otherSketch != nil {
		s.sketch.MergeWith(otherSketch)
	}
}

// Result is a point-in-time view of a Stream.
type Result struct {
	Count int64
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
	Last  float64

	// Quantiles reports whether the P* fields are populated.
	Quantiles bool
	P50       float64
	P90       float64
	P95       float64
	P99       float64
}

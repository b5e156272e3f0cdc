package canopy

import "time"

// Statter receives the counters and timings a job emits. Names are dotted,
// e.g. "stage.tree_parse.in". Implementations must be safe for concurrent
// use; stages report from many goroutines.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter discards everything.
type NopStatter struct{}

func (NopStatter) Count(name string, value int64, rate float64, tags ...string)          {}
func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Timed reports the time since it was called as name when the returned func
// runs.
//
//	defer canopy.Timed(stats, "stage.x")()
func Timed(s Statter, name string) func() {
	start := time.Now()
	return func() { s.Timing(name, time.Since(start), 1) }
}

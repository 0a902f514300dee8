package pipeline

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/atomic"
)

// latencyWindow is how many recent inference latencies feed the summary.
const latencyWindow = 256

type runStats struct {
	startedAt         time.Time
	framesRead        atomic.Int64
	framesPublished   atomic.Int64
	readFailures      atomic.Int64
	inferenceFailures atomic.Int64

	mu        sync.Mutex
	latencies []float64
	next      int
}

func newRunStats(startedAt time.Time) *runStats {
	return &runStats{startedAt: startedAt, latencies: make([]float64, 0, latencyWindow)}
}

func (rs *runStats) observeInference(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.latencies) < latencyWindow {
		rs.latencies = append(rs.latencies, float64(d))
		return
	}
	rs.latencies[rs.next] = float64(d)
	rs.next = (rs.next + 1) % latencyWindow
}

func (rs *runStats) snapshot(overruns int64) Stats {
	out := Stats{
		StartedAt:         rs.startedAt,
		FramesRead:        rs.framesRead.Load(),
		FramesPublished:   rs.framesPublished.Load(),
		ReadFailures:      rs.readFailures.Load(),
		InferenceFailures: rs.inferenceFailures.Load(),
		Overruns:          overruns,
	}

	rs.mu.Lock()
	window := stats.Float64Data(append([]float64(nil), rs.latencies...))
	rs.mu.Unlock()
	if len(window) == 0 {
		return out
	}
	if mean, err := window.Mean(); err == nil {
		out.MeanInference = time.Duration(mean)
	}
	if p95, err := window.Percentile(95); err == nil {
		out.P95Inference = time.Duration(p95)
	}
	return out
}

package pipeline

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestRunStatsSnapshot(t *testing.T) {
	started := time.Unix(1700000000, 0)
	rs := newRunStats(started)

	st := rs.snapshot(0)
	test.That(t, st.StartedAt, test.ShouldEqual, started)
	test.That(t, st.MeanInference, test.ShouldEqual, time.Duration(0))

	for i := 1; i <= 4; i++ {
		rs.observeInference(time.Duration(i) * 10 * time.Millisecond)
	}
	rs.framesRead.Add(4)
	rs.framesPublished.Add(3)
	rs.inferenceFailures.Inc()

	st = rs.snapshot(2)
	test.That(t, st.FramesRead, test.ShouldEqual, 4)
	test.That(t, st.FramesPublished, test.ShouldEqual, 3)
	test.That(t, st.InferenceFailures, test.ShouldEqual, 1)
	test.That(t, st.Overruns, test.ShouldEqual, 2)
	test.That(t, st.MeanInference, test.ShouldEqual, 25*time.Millisecond)
	test.That(t, st.P95Inference, test.ShouldBeGreaterThanOrEqualTo, 30*time.Millisecond)
	test.That(t, st.P95Inference, test.ShouldBeLessThanOrEqualTo, 40*time.Millisecond)
}

func TestRunStatsWindowWraps(t *testing.T) {
	rs := newRunStats(time.Time{})
	for i := 0; i < latencyWindow; i++ {
		rs.observeInference(time.Second)
	}
	for i := 0; i < latencyWindow; i++ {
		rs.observeInference(time.Millisecond)
	}
	test.That(t, len(rs.latencies), test.ShouldEqual, latencyWindow)
	test.That(t, rs.snapshot(0).MeanInference, test.ShouldEqual, time.Millisecond)
}

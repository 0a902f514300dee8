package main

import (
	"sync"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/pipeline"
)

// terminalSink logs the count when it changes and every state transition.
type terminalSink struct {
	logger logging.Logger

	mu        sync.Mutex
	lastRunID string
	lastCount int
}

func newTerminalSink(logger logging.Logger) *terminalSink {
	return &terminalSink{logger: logger, lastCount: -1}
}

func (ts *terminalSink) Publish(tick pipeline.Tick) {
	ts.mu.Lock()
	changed := tick.RunID != ts.lastRunID || tick.Count != ts.lastCount
	ts.lastRunID = tick.RunID
	ts.lastCount = tick.Count
	ts.mu.Unlock()

	if changed {
		ts.logger.Infow("people in frame", "count", tick.Count, "seq", tick.Seq)
	}
}

func (ts *terminalSink) StateChanged(st pipeline.State) {
	if st.LastError != nil {
		ts.logger.Warnw("run "+st.Status.String(), "kind", st.LastError.Kind, "error", st.LastError.Message,
			"guidance", st.LastError.Guidance)
		return
	}
	ts.logger.Infow("run "+st.Status.String(), "frames_published", st.Stats.FramesPublished)
}

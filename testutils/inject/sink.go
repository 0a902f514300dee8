package inject

import (
	"go.viam.com/peoplecount/pipeline"
)

// Sink is an injected pipeline.Sink. Nil funcs ignore the call.
type Sink struct {
	PublishFunc      func(tick pipeline.Tick)
	StateChangedFunc func(state pipeline.State)
}

// Publish calls the injected Publish.
func (s *Sink) Publish(tick pipeline.Tick) {
	if s.PublishFunc != nil {
		s.PublishFunc(tick)
	}
}

// StateChanged calls the injected StateChanged.
func (s *Sink) StateChanged(state pipeline.State) {
	if s.StateChangedFunc != nil {
		s.StateChangedFunc(state)
	}
}

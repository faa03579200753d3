package sink

import "github.com/skypro1111/live-translator/internal/pipeline"

// Multi forwards every event to each of its sinks in order
type Multi []pipeline.ResultSink

func (m Multi) OnStatus(status pipeline.Status) {
	for _, s := range m {
		s.OnStatus(status)
	}
}

func (m Multi) OnResult(result pipeline.Result) {
	for _, s := range m {
		s.OnResult(result)
	}
}

package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/skypro1111/live-translator/internal/pipeline"
)

// statusColors maps status colour names to terminal colours
var statusColors = map[string]lipgloss.Color{
	"blue":   lipgloss.Color("#268BD2"),
	"green":  lipgloss.Color("#859900"),
	"orange": lipgloss.Color("#CB4B16"),
	"red":    lipgloss.Color("#DC322F"),
}

// Writer presents results as two text streams: the recognized speech and
// its translation. Statuses go to a separate status stream when one is set.
type Writer struct {
	mu         sync.Mutex
	original   io.Writer
	translated io.Writer
	status     io.Writer

	// Colour is only emitted when status is a terminal
	renderer *lipgloss.Renderer
}

// NewWriter creates a console sink. status may be nil to hide statuses.
// original and translated may be the same writer.
func NewWriter(original, translated, status io.Writer) *Writer {
	w := &Writer{
		original:   original,
		translated: translated,
		status:     status,
	}
	if status != nil {
		w.renderer = lipgloss.NewRenderer(status)
	}
	return w
}

func (w *Writer) OnStatus(status pipeline.Status) {
	if w.status == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	line := fmt.Sprintf("[%s] %s", status.Color(), status.Message)
	if color, ok := statusColors[status.Color()]; ok {
		line = w.renderer.NewStyle().Foreground(color).Render(line)
	}
	fmt.Fprintln(w.status, line)
}

func (w *Writer) OnResult(result pipeline.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintf(w.original, "%s\n", result.Original)
	fmt.Fprintf(w.translated, "%s: %s\n", result.Language, result.Translated)
}

// Drain writes events from ch to sink until ch is closed or done is closed
func Drain(ch <-chan Event, sink pipeline.ResultSink, done <-chan struct{}) {
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Status != nil {
				sink.OnStatus(*event.Status)
			}
			if event.Result != nil {
				sink.OnResult(*event.Result)
			}
		case <-done:
			return
		}
	}
}

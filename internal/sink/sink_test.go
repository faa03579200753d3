package sink

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/live-translator/internal/pipeline"
	"github.com/skypro1111/live-translator/internal/translation"
)

func result(seq uint64, original string) pipeline.Result {
	return pipeline.Result{
		ChunkID:    "chunk",
		Seq:        seq,
		Original:   original,
		Translated: "pt:" + original,
		Language:   translation.Portuguese,
		CapturedAt: time.Now(),
	}
}

func TestChannelDeliversResultsAndDropsStatuses(t *testing.T) {
	c := NewChannel(2)

	c.OnStatus(pipeline.Status{Kind: pipeline.StatusListening})
	c.OnResult(result(1, "hello"))

	// Buffer is full; the status is dropped instead of blocking
	c.OnStatus(pipeline.Status{Kind: pipeline.StatusProcessing})
	if c.DroppedStatuses() != 1 {
		t.Errorf("Expected 1 dropped status, got %d", c.DroppedStatuses())
	}

	done := make(chan struct{})
	go func() {
		c.OnResult(result(2, "goodbye"))
		close(done)
	}()

	first := <-c.Events()
	if first.Status == nil || first.Status.Kind != pipeline.StatusListening {
		t.Errorf("Expected listening status first, got %+v", first)
	}

	second := <-c.Events()
	if second.Result == nil || second.Result.Original != "hello" {
		t.Errorf("Expected result hello, got %+v", second)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Blocked OnResult did not complete after the buffer drained")
	}

	third := <-c.Events()
	if third.Result == nil || third.Result.Original != "goodbye" {
		t.Errorf("Expected result goodbye, got %+v", third)
	}
}

func TestTranscriptSince(t *testing.T) {
	tr := NewTranscript(3)

	if tr.LastIndex() != 0 {
		t.Errorf("Expected last index 0, got %d", tr.LastIndex())
	}
	if _, ok := tr.LastStatus(); ok {
		t.Error("Expected no status before any was received")
	}

	for i := uint64(1); i <= 5; i++ {
		tr.OnResult(result(i, "text"))
	}

	if tr.Len() != 3 {
		t.Errorf("Expected 3 retained entries, got %d", tr.Len())
	}

	if tr.LastIndex() != 5 {
		t.Errorf("Expected last index 5, got %d", tr.LastIndex())
	}

	tests := []struct {
		since    uint64
		expected []uint64
	}{
		{0, []uint64{3, 4, 5}},
		{3, []uint64{4, 5}},
		{5, nil},
		{10, nil},
	}

	for _, tt := range tests {
		entries := tr.Since(tt.since)
		if len(entries) != len(tt.expected) {
			t.Errorf("Since(%d): expected %d entries, got %d", tt.since, len(tt.expected), len(entries))
			continue
		}
		for i, entry := range entries {
			if entry.Index != tt.expected[i] {
				t.Errorf("Since(%d): expected index %d, got %d", tt.since, tt.expected[i], entry.Index)
			}
		}
	}

	tr.OnStatus(pipeline.Status{Kind: pipeline.StatusStopped, Message: "Stopped"})
	status, ok := tr.LastStatus()
	if !ok || status.Kind != pipeline.StatusStopped {
		t.Errorf("Expected last status stopped, got %+v", status)
	}
}

func TestWriter(t *testing.T) {
	var original, translated, status bytes.Buffer
	w := NewWriter(&original, &translated, &status)

	w.OnStatus(pipeline.Status{Kind: pipeline.StatusListening, Message: "Listening..."})
	w.OnResult(result(1, "hello"))

	if got := original.String(); got != "hello\n" {
		t.Errorf("Expected original stream %q, got %q", "hello\n", got)
	}
	if got := translated.String(); got != "pt: pt:hello\n" {
		t.Errorf("Expected translated stream %q, got %q", "pt: pt:hello\n", got)
	}
	if got := status.String(); got != "[green] Listening...\n" {
		t.Errorf("Expected status stream %q, got %q", "[green] Listening...\n", got)
	}

	// Statuses are optional
	quiet := NewWriter(&original, &translated, nil)
	quiet.OnStatus(pipeline.Status{Kind: pipeline.StatusReady})
}

func TestDrain(t *testing.T) {
	c := NewChannel(4)
	var out bytes.Buffer
	w := NewWriter(&out, &out, &out)

	c.OnStatus(pipeline.Status{Kind: pipeline.StatusProcessing, Message: "Processing..."})
	c.OnResult(result(1, "hello"))
	close(c.events)

	Drain(c.Events(), w, make(chan struct{}))

	expected := "[orange] Processing...\nhello\npt: pt:hello\n"
	if out.String() != expected {
		t.Errorf("Expected %q, got %q", expected, out.String())
	}
}

func TestMultiAndLog(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	tr := NewTranscript(10)
	m := Multi{tr, NewLog(logger)}

	m.OnStatus(pipeline.Status{Kind: pipeline.StatusError, Message: "boom"})
	m.OnResult(result(1, "hello"))

	if tr.Len() != 1 {
		t.Errorf("Expected transcript to receive the result, got %d entries", tr.Len())
	}

	if !strings.Contains(logs.String(), "original=hello") {
		t.Errorf("Expected result in log output, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), "message=boom") {
		t.Errorf("Expected error status in log output, got %q", logs.String())
	}
}

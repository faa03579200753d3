// Command mockbackend serves fake recognition and translation endpoints for
// running the translator locally without real models.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/live-translator/internal/audio"
	"github.com/skypro1111/live-translator/internal/recognition"
)

// silenceThreshold is the peak amplitude below which a chunk counts as silent
const silenceThreshold = 500

var opts struct {
	addr    string
	delay   time.Duration
	phrases []string
}

var rootCmd = &cobra.Command{
	Use:   "mockbackend",
	Short: "Fake speech recognition and translation backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		b := &backend{logger: logger, delay: opts.delay, phrases: opts.phrases}

		logger.Info("Mock backend starting",
			slog.String("address", opts.addr),
			slog.String("recognition", "/v1/audio/transcriptions"),
			slog.String("translation", "/translate"),
		)
		return http.ListenAndServe(opts.addr, b.routes())
	},
}

func init() {
	rootCmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:9000", "Listen address")
	rootCmd.Flags().DurationVar(&opts.delay, "delay", 200*time.Millisecond, "Simulated processing time")
	rootCmd.Flags().StringSliceVar(&opts.phrases, "phrase", []string{"hello", "how are you", "goodbye"}, "Phrases returned in turn for non-silent audio")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// backend implements both fake APIs
type backend struct {
	logger  *slog.Logger
	delay   time.Duration
	phrases []string
	next    atomic.Uint64
}

func (b *backend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", b.handleTranscribe)
	mux.HandleFunc("/translate", b.handleTranslate)
	return mux
}

// handleTranscribe answers like a Whisper verbose_json endpoint. Silent
// audio yields empty text; other chunks get the next configured phrase.
func (b *backend) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	samples, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid WAV file: %v", err), http.StatusBadRequest)
		return
	}

	duration := float64(len(samples)) / float64(sampleRate)
	text := ""
	if peak(samples) >= silenceThreshold && len(b.phrases) > 0 {
		text = b.phrases[(b.next.Add(1)-1)%uint64(len(b.phrases))]
	}

	b.logger.Info("Transcription request",
		slog.String("filename", header.Filename),
		slog.String("model", r.FormValue("model")),
		slog.String("language", r.FormValue("language")),
		slog.Float64("duration", duration),
		slog.String("text", text),
	)

	time.Sleep(b.delay)

	response := recognition.Response{Text: text, Language: "en", Duration: duration}
	if text != "" {
		response.Segments = []recognition.Segment{{Start: 0, End: duration, Text: " " + text}}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleTranslate answers like LibreTranslate with "<target>:<text>"
func (b *backend) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Q      string `json:"q"`
		Source string `json:"source"`
		Target string `json:"target"`
	}
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "target is required"})
		return
	}

	b.logger.Info("Translation request",
		slog.String("source", req.Source),
		slog.String("target", req.Target),
		slog.String("text", req.Q),
	)

	json.NewEncoder(w).Encode(map[string]string{"translatedText": req.Target + ":" + req.Q})
}

func peak(samples []int16) int {
	m := 0
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

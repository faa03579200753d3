package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/live-translator/internal/config"
	"github.com/skypro1111/live-translator/internal/metrics"
	"github.com/skypro1111/live-translator/internal/pipeline"
	"github.com/skypro1111/live-translator/internal/recognition"
	"github.com/skypro1111/live-translator/internal/sink"
	"github.com/skypro1111/live-translator/internal/translation"
)

// Version is reported by /health and the API index
var Version = "dev"

// Controller is the part of the pipeline driven over HTTP
type Controller interface {
	Start(ctx context.Context, target translation.Language) error
	Stop()
	State() pipeline.State
	Stats() pipeline.Stats
}

// RecognitionStats reports on the recognition backend client
type RecognitionStats interface {
	GetStats() recognition.ClientStats
}

// TranslationStats reports on the translation backend client
type TranslationStats interface {
	GetStats() translation.ClientStats
}

// HTTPDeps are the components the HTTP API reports on. Everything but the
// Controller is optional.
type HTTPDeps struct {
	Controller  Controller
	Transcript  *sink.Transcript
	Receiver    *UDPReceiver
	Events      *EventHub
	Recognition RecognitionStats
	Translation TranslationStats
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics

	// BaseContext bounds pipeline runs started over HTTP; request contexts
	// end with the request. Defaults to context.Background().
	BaseContext context.Context
}

// HTTPServer provides HTTP API endpoints for control and monitoring
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger
	config  *config.Config
	deps    HTTPDeps

	startTime time.Time
}

// startRequest is the optional JSON body of POST /start
type startRequest struct {
	TargetLanguage string `json:"target_language"`
}

// languageInfo describes one supported target language
type languageInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, deps HTTPDeps) *HTTPServer {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Pipeline control
	mux.HandleFunc("/start", h.withMetrics("/start", h.handleStart))
	mux.HandleFunc("/stop", h.withMetrics("/stop", h.handleStop))

	// Monitoring
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/results", h.withMetrics("/results", h.handleResults))
	mux.HandleFunc("/languages", h.withMetrics("/languages", h.handleLanguages))
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Unwrapped: the WebSocket upgrade needs the original ResponseWriter
	if h.deps.Events != nil {
		mux.Handle("/ws", h.deps.Events)
	}

	if h.deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleStart implements POST /start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("lang")
	if code == "" && r.Body != nil {
		var req startRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		code = req.TargetLanguage
	}
	if code == "" {
		code = h.config.Translation.DefaultLanguage
	}

	lang, err := translation.ParseLanguage(code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.Controller.Start(h.deps.BaseContext, lang); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, pipeline.ErrUnsupportedLanguage):
			status = http.StatusBadRequest
		case errors.Is(err, pipeline.ErrStopping), errors.Is(err, pipeline.ErrLanguageLocked):
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	h.logger.Info("Pipeline start requested", slog.String("language", lang.String()))

	writeJSON(w, http.StatusOK, h.deps.Controller.Stats())
}

// handleStop implements POST /stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.deps.Controller.Stop()
	h.logger.Info("Pipeline stop requested")

	writeJSON(w, http.StatusOK, h.deps.Controller.Stats())
}

// handleStatus implements GET /status
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"pipeline":  h.deps.Controller.Stats(),
	}

	if h.deps.Transcript != nil {
		if status, ok := h.deps.Transcript.LastStatus(); ok {
			response["last_status"] = NewStatusView(status)
		}
		response["last_result_index"] = h.deps.Transcript.LastIndex()
	}

	if h.deps.Receiver != nil {
		response["udp"] = h.deps.Receiver.GetStatistics()
	}

	if h.deps.Recognition != nil {
		response["recognition"] = h.deps.Recognition.GetStats()
	}

	if h.deps.Translation != nil {
		response["translation"] = h.deps.Translation.GetStats()
	}

	if h.deps.Events != nil {
		response["websocket"] = map[string]interface{}{
			"clients": h.deps.Events.ClientCount(),
			"dropped": h.deps.Events.Dropped(),
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleResults implements GET /results?since=N
func (h *HTTPServer) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.deps.Transcript == nil {
		writeError(w, http.StatusNotFound, "transcript is not enabled")
		return
	}

	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since: %q", s))
			return
		}
		since = n
	}

	entries := h.deps.Transcript.Since(since)
	if entries == nil {
		entries = []sink.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":    entries,
		"last_index": h.deps.Transcript.LastIndex(),
	})
}

// handleLanguages implements GET /languages
func (h *HTTPServer) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	langs := translation.SupportedLanguages()
	infos := make([]languageInfo, 0, len(langs))
	for _, lang := range langs {
		infos = append(infos, languageInfo{Code: lang.String(), Name: lang.Name()})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default":   h.config.Translation.DefaultLanguage,
		"languages": infos,
	})
}

// handleHealth implements GET /health
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := map[string]interface{}{
		"pipeline": map[string]interface{}{
			"status": h.deps.Controller.State().String(),
		},
	}
	if h.deps.Receiver != nil {
		udpStats := h.deps.Receiver.GetStatistics()
		components["udp_receiver"] = map[string]interface{}{
			"status":            "running",
			"stream_active":     udpStats.StreamActive,
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "live-translator",
			"version": Version,
		},
		"components": components,
	})
}

// handleConfig implements GET /config with secrets masked
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := yaml.Marshal(h.config.Redacted())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode config: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Live Translator",
		"version": Version,
		"endpoints": map[string]interface{}{
			"GET /":          "API documentation",
			"POST /start":    "Start listening; body {\"target_language\":\"pt\"} or ?lang=pt",
			"POST /stop":     "Stop listening",
			"GET /status":    "Pipeline state, counters and last status",
			"GET /results":   "Results after ?since=<index>",
			"GET /languages": "Supported target languages",
			"GET /health":    "Service health check",
			"GET /config":    "Service configuration with secrets masked",
			"GET /metrics":   "Prometheus metrics",
			"GET /ws":        "WebSocket stream of statuses and results",
		},
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ampere-labs/poolbot/internal/bot"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/state"
	"github.com/ampere-labs/poolbot/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// ReceiptLister serves recent swap outcomes for the dashboard.
type ReceiptLister interface {
	ListRecent(ctx context.Context, limit int) ([]types.SwapReceipt, error)
}

// StatsSource reports trading counters.
type StatsSource interface {
	Stats() bot.Stats
}

// WebServer exposes the bot's read-only dashboard API
type WebServer struct {
	router    *mux.Router
	port      string
	receipts  ReceiptLister
	stats     StatsSource
	db        *sql.DB
	startTime time.Time
}

// Config holds the dependencies for creating a new web server
type Config struct {
	Port     string
	Receipts ReceiptLister
	Stats    StatsSource
	DB       *sql.DB
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		receipts:  cfg.Receipts,
		stats:     cfg.Stats,
		db:        cfg.DB,
		startTime: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/status", ws.handleGetStatus).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server and database health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := true
	if ws.db != nil {
		if err := state.Ping(ws.db); err != nil {
			dbHealthy = false
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":         overallStatus,
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(ws.startTime).Seconds()),
		"database": map[string]interface{}{
			"healthy": dbHealthy,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetReceipts returns recent swap receipts, newest first
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if ws.receipts == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt store not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	receipts, err := ws.receipts.ListRecent(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to list swap receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	response := map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStatus returns cumulative trading counters
func (ws *WebServer) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Stats source not configured")
		return
	}

	response := map[string]interface{}{
		"stats":          ws.stats.Stats(),
		"uptime_seconds": int64(time.Since(ws.startTime).Seconds()),
		"timestamp":      time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

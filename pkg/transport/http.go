package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/Azure/btumor-intake/pkg/intake"
	"github.com/Azure/btumor-intake/pkg/monitoring"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPTransport serves the intake API
type HTTPTransport struct {
	server         *http.Server
	router         chi.Router
	service        *intake.Service
	metrics        *monitoring.MetricsCollector
	logger         zerolog.Logger
	addr           string
	port           int
	corsOrigins    []string
	serviceName    string
	serviceVersion string
	requestTimeout time.Duration
}

// HTTPTransportConfig holds configuration for HTTP transport
type HTTPTransportConfig struct {
	Addr           string
	Port           int
	CORSOrigins    []string
	ServiceName    string
	ServiceVersion string
	RequestTimeout time.Duration // applies to every route except upload and download
	Service        *intake.Service
	Metrics        *monitoring.MetricsCollector // optional
	Logger         zerolog.Logger
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(config HTTPTransportConfig) *HTTPTransport {
	if config.Port == 0 {
		config.Port = 5001
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.ServiceName == "" {
		config.ServiceName = "btumor-intake"
	}

	transport := &HTTPTransport{
		service:        config.Service,
		metrics:        config.Metrics,
		logger:         config.Logger.With().Str("component", "http_transport").Logger(),
		addr:           config.Addr,
		port:           config.Port,
		corsOrigins:    config.CORSOrigins,
		serviceName:    config.ServiceName,
		serviceVersion: config.ServiceVersion,
		requestTimeout: config.RequestTimeout,
	}

	transport.setupRouter()
	return transport
}

// setupRouter initializes the HTTP router and middleware
func (t *HTTPTransport) setupRouter() {
	t.router = chi.NewRouter()

	t.setupMiddlewareChain()

	// Must be set before the /api subrouter is mounted so it inherits them
	t.router.NotFound(t.handleNotFound)
	t.router.MethodNotAllowed(t.handleMethodNotAllowed)

	t.registerRoutes(t.router)
	t.router.Route("/api", t.registerRoutes)

	if t.metrics != nil && t.metrics.IsEnabled() {
		t.router.Method(http.MethodGet, "/metrics", t.metrics.Handler())
	}
}

func (t *HTTPTransport) registerRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(t.requestTimeout))

		r.Get("/health", t.handleHealth)
		r.Post("/session/create", t.handleCreateSession)
		r.Post("/session/{sessionID}/analyze", t.handleAnalyze)
		r.Get("/session/{sessionID}/analysis", t.handleGetAnalysis)
		r.Get("/session/{sessionID}/files", t.handleGetFiles)
		r.Get("/session/{sessionID}", t.handleGetSession)
		r.Get("/sessions", t.handleListSessions)
	})

	// Large bodies in either direction; bounded by the upload cap instead
	r.Post("/session/{sessionID}/upload", t.handleUpload)
	r.Get("/session/{sessionID}/seg-file", t.handleSegFile)
}

// setupMiddlewareChain configures the middleware chain in the proper order
func (t *HTTPTransport) setupMiddlewareChain() {
	t.router.Use(middleware.RequestID)
	t.router.Use(middleware.RealIP)

	// CORS before anything that could reject a preflight
	t.router.Use(t.setupCORS())

	t.router.Use(t.loggingMiddleware)
	t.router.Use(t.recoverMiddleware)
}

// setupCORS creates and configures the CORS middleware
func (t *HTTPTransport) setupCORS() func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   t.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	// If no origins specified, allow all (for development)
	if len(t.corsOrigins) == 0 || (len(t.corsOrigins) == 1 && t.corsOrigins[0] == "*") {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false // Cannot use credentials with wildcard origin
	}

	return cors.Handler(corsOptions)
}

// Handler exposes the router, mainly for tests
func (t *HTTPTransport) Handler() http.Handler {
	return t.router
}

// ListenAddr is the host:port the server binds to
func (t *HTTPTransport) ListenAddr() string {
	return net.JoinHostPort(t.addr, strconv.Itoa(t.port))
}

// Serve starts the HTTP server and blocks until ctx is done or the server fails
func (t *HTTPTransport) Serve(ctx context.Context) error {
	if t.service == nil {
		return fmt.Errorf("intake service not set")
	}
	t.server = &http.Server{
		Addr:              t.ListenAddr(),
		Handler:           t.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info().Str("addr", t.server.Addr).Msg("Starting HTTP transport")
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return t.Close()
	case err := <-errCh:
		return err
	}
}

// Close gracefully shuts down the HTTP server
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.logger.Info().Msg("Stopping HTTP transport")
	return t.server.Shutdown(ctx)
}

func (t *HTTPTransport) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = uuid.New().String()
		}

		t.logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("HTTP request received")

		wrapped := &loggingResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := routePattern(r)

		event := t.logger.Info()
		if wrapped.statusCode >= http.StatusInternalServerError {
			event = t.logger.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", wrapped.statusCode).
			Dur("duration", duration).
			Int("response_size", wrapped.bytesWritten).
			Msg("HTTP response sent")

		if t.metrics != nil {
			t.metrics.RecordRequest(r.Method, route, wrapped.statusCode, duration)
		}
	})
}

// recoverMiddleware turns a handler panic into the JSON error envelope
func (t *HTTPTransport) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			t.logger.Error().
				Str("request_id", middleware.GetReqID(r.Context())).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from handler panic")
			t.sendError(w, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern keeps metric labels bounded to registered routes
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Helper methods

func (t *HTTPTransport) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (t *HTTPTransport) sendError(w http.ResponseWriter, status int, message string) {
	t.sendJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// loggingResponseWriter captures status and size for logging
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(data []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(data)
	w.bytesWritten += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/emitter"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

// Panel is the simulation panel served by the API.
type Panel interface {
	Emitter(name string) (*emitter.Emitter, error)
	Emitters() []*emitter.Emitter
	Devices() []models.Device
	ConfigSnippet(name string) (string, error)
	Reset() error
}

// StatusCollector reports host status.
type StatusCollector interface {
	Collect(ctx context.Context) *models.HostStatus
}

// Options configures the control API.
type Options struct {
	Listen          string
	ManualSendRate  float64 // Manual sends per second across all emitters, 0 for unlimited
	ManualSendBurst int
	CORSOrigins     []string
	Gatherer        prometheus.Gatherer // Served on /metrics when set
}

// APIService serves the control API over HTTP.
type APIService struct {
	opts    Options
	handler http.Handler
	logger  zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewAPIService initializes an APIService for panel.
func NewAPIService(opts Options, panel Panel, status StatusCollector, logger zerolog.Logger) *APIService {
	return &APIService{
		opts:    opts,
		handler: NewRouter(opts, panel, status, logger),
		logger:  logger,
	}
}

// NewRouter builds the control API handler.
func NewRouter(opts Options, panel Panel, status StatusCollector, logger zerolog.Logger) http.Handler {
	limit := rate.Inf
	if opts.ManualSendRate > 0 {
		limit = rate.Limit(opts.ManualSendRate)
	}
	burst := opts.ManualSendBurst
	if burst < 1 {
		burst = 1
	}

	h := &apiHandlers{
		panel:   panel,
		status:  status,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/emitters", h.listEmitters).Methods(http.MethodGet)
	api.HandleFunc("/emitters/{name}", h.getEmitter).Methods(http.MethodGet)
	api.HandleFunc("/emitters/{name}", h.patchEmitter).Methods(http.MethodPatch)
	api.HandleFunc("/emitters/{name}/toggle", h.toggleEmitter).Methods(http.MethodPost)
	api.HandleFunc("/emitters/{name}/send", h.sendEmitter).Methods(http.MethodPost)
	api.HandleFunc("/emitters/{name}/history", h.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/emitters/{name}/config", h.getConfigSnippet).Methods(http.MethodGet)
	api.HandleFunc("/devices", h.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/panel/reset", h.resetPanel).Methods(http.MethodPost)
	api.HandleFunc("/status", h.getStatus).Methods(http.MethodGet)

	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = router
	handler = handlers.CompressHandler(handler)
	if len(opts.CORSOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(handler)
	}
	handler = handlers.CustomLoggingHandler(io.Discard, handler, func(_ io.Writer, p handlers.LogFormatterParams) {
		logger.Debug().
			Str("method", p.Request.Method).
			Str("path", p.URL.Path).
			Int("status", p.StatusCode).
			Int("size", p.Size).
			Msg("API request")
	})
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger}))(handler)
}

// Start listens on the configured address and serves in the background.
func (a *APIService) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.logger.Warn().Msg("APIService is already running")
		return errors.New("api service is already running")
	}

	ln, err := net.Listen("tcp", a.opts.Listen)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("API server failed")
		}
	}()

	a.server = server
	a.listener = ln
	a.done = done
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("APIService started successfully")
	return nil
}

// Stop shuts the server down, waiting for active requests up to a timeout.
func (a *APIService) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		a.logger.Warn().Msg("APIService is not running")
		return errors.New("api service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.server.Shutdown(ctx)
	<-a.done

	a.server = nil
	a.listener = nil
	a.logger.Info().Msg("APIService stopped successfully")
	return err
}

// Addr returns the address the API listens on, or "" when stopped.
func (a *APIService) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Interface("panic", v).Msg("API handler panicked")
}

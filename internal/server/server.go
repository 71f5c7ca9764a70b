// Package server serves interactive charts and JSON views of sweep result
// files, plus the sweep history when a history database is attached.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/banshee-data/throughput.report/internal/chart"
	"github.com/banshee-data/throughput.report/internal/fsutil"
	"github.com/banshee-data/throughput.report/internal/history"
	"github.com/banshee-data/throughput.report/internal/monitoring"
	"github.com/banshee-data/throughput.report/internal/results"
	"github.com/banshee-data/throughput.report/internal/sweep"
)

var logf = monitoring.Component("server")

// DefaultCacheTTL is how long a parsed result file is kept before it is read
// again even if unchanged on disk.
const DefaultCacheTTL = 5 * time.Minute

// Config configures a Server.
type Config struct {
	Address string
	// Inputs are result files, addressed in requests by base name. The first
	// is the default.
	Inputs []string
	// History, when set, enables /api/runs and the /debug/ pages.
	History  *history.DB
	CacheTTL time.Duration
	// FS reads the inputs; nil uses the OS filesystem.
	FS fsutil.FileSystem
	// Chart holds the default chart labelling.
	Chart chart.Options
}

// Server is the report HTTP server.
type Server struct {
	address   string
	inputs    map[string]string
	names     []string
	history   *history.DB
	fs        fsutil.FileSystem
	chartOpts chart.Options
	tables    *ttlcache.Cache[string, *cachedTable]
	server    *http.Server
}

type cachedTable struct {
	table    *sweep.Table
	modTime  time.Time
	warnings int
}

// New validates cfg and builds the server. Nothing is read until the first
// request.
func New(cfg Config) (*Server, error) {
	if len(cfg.Inputs) == 0 {
		return nil, errors.New("no result files to serve")
	}
	s := &Server{
		address:   cfg.Address,
		inputs:    make(map[string]string, len(cfg.Inputs)),
		history:   cfg.History,
		fs:        cfg.FS,
		chartOpts: cfg.Chart,
	}
	if s.fs == nil {
		s.fs = fsutil.OSFileSystem{}
	}
	for _, path := range cfg.Inputs {
		name := filepath.Base(path)
		if prev, dup := s.inputs[name]; dup {
			return nil, fmt.Errorf("inputs %s and %s share the name %q", prev, path, name)
		}
		s.inputs[name] = path
		s.names = append(s.names, name)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	s.tables = ttlcache.New(
		ttlcache.WithTTL[string, *cachedTable](ttl),
		ttlcache.WithDisableTouchOnHit[string, *cachedTable](),
	)
	s.tables.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *cachedTable]) {
		if reason == ttlcache.EvictionReasonExpired {
			logf("dropped cached table %s", item.Key())
		}
	})

	mux, err := s.setupRoutes()
	if err != nil {
		return nil, err
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.tables.Start()
	defer s.tables.Stop()

	errCh := make(chan error, 1)
	go func() {
		logf("listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/chart", s.handleChart)
	mux.HandleFunc("/api/inputs", s.handleInputs)
	mux.HandleFunc("/api/series", s.handleSeries)
	if s.history != nil {
		mux.HandleFunc("/api/runs", s.handleRuns)
		mux.HandleFunc("/api/runs/", s.handleRun)
		if err := s.history.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// errUnknownInput is returned for a request naming an input not served.
var errUnknownInput = errors.New("unknown input")

// resolveInput maps a request's input name to its path; empty selects the
// default input.
func (s *Server) resolveInput(name string) (string, string, error) {
	if name == "" {
		name = s.names[0]
	}
	path, ok := s.inputs[name]
	if !ok {
		return "", "", fmt.Errorf("%w %q", errUnknownInput, name)
	}
	return name, path, nil
}

// table returns the parsed result file at path, re-reading it when the
// cached copy has expired or the file changed on disk.
func (s *Server) table(path string, reload bool) (*cachedTable, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	if !reload {
		if item := s.tables.Get(path); item != nil && item.Value().modTime.Equal(info.ModTime()) {
			return item.Value(), nil
		}
	}

	res, err := results.Load(path, results.WithFileSystem(s.fs))
	if err != nil {
		return nil, err
	}
	ct := &cachedTable{table: res.Table, modTime: info.ModTime(), warnings: len(res.Warnings)}
	s.tables.Set(path, ct, ttlcache.DefaultTTL)
	logf("loaded %s: %d rows, %d skipped", path, len(res.Table.Rows), ct.warnings)
	return ct, nil
}

// loggingResponseWriter records the status for LoggingMiddleware.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %.1fms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

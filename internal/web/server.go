// Package web exposes the JSON, CSV and WebSocket endpoints the site calls.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Deps are the data sources behind each route. WS may be nil to disable /ws.
type Deps struct {
	Quotes     QuoteSource
	Live       SnapshotSource
	Historical HistorySource
	News       NewsSource
	Calendar   CalendarSource
	WS         http.Handler
}

type Server struct {
	port   int
	deps   Deps
	log    *zap.Logger
	server *http.Server
	now    func() time.Time
}

func NewServer(port int, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{port: port, deps: deps, log: log, now: time.Now}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	health := &HealthHandler{live: s.deps.Live}
	mux.HandleFunc("/health", health.Handle)

	if s.deps.Quotes != nil {
		mux.HandleFunc("/api/market", (&MarketHandler{src: s.deps.Quotes}).Handle)
	}
	if s.deps.Live != nil {
		mux.HandleFunc("/api/market/live", (&LiveHandler{src: s.deps.Live}).Handle)
	}
	if s.deps.Historical != nil {
		hh := &HistoricalHandler{src: s.deps.Historical, log: s.log, now: s.now}
		mux.HandleFunc("/api/historical", hh.Handle)
		mux.HandleFunc("/api/historical/export", hh.HandleExport)
	}
	if s.deps.News != nil {
		mux.HandleFunc("/api/news", (&NewsHandler{src: s.deps.News}).Handle)
	}
	if s.deps.Calendar != nil {
		mux.HandleFunc("/api/calendar", (&CalendarHandler{src: s.deps.Calendar, log: s.log}).Handle)
	}
	if s.deps.WS != nil {
		mux.Handle("/ws", s.deps.WS)
	}
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// Start blocks until the server stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("starting HTTP server", zap.Int("port", s.port))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

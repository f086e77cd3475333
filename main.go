package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"quotedesk/internal/cache"
	"quotedesk/internal/calendar"
	"quotedesk/internal/config"
	"quotedesk/internal/feed"
	"quotedesk/internal/historical"
	"quotedesk/internal/hub"
	"quotedesk/internal/logger"
	"quotedesk/internal/market"
	"quotedesk/internal/news"
	"quotedesk/internal/quotes"
	"quotedesk/internal/symbols"
	"quotedesk/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the optional YAML config")
	portOverride := flag.Int("port", 0, "override server.port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *portOverride != 0 {
		cfg.Server.Port = *portOverride
	}

	lg, err := logger.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	store, closeStore := openStore(cfg.Redis, lg)
	defer closeStore()

	h := hub.New(lg.Named("hub"))
	pipeline := market.New(symbols.Default(), h, lg.Named("market"))
	disconnect := feed.Connect(cfg.Feed.URL, pipeline.Handlers(),
		feed.WithReconnectDelay(cfg.Feed.ReconnectDelay),
		feed.WithLogger(lg.Named("feed")),
	)

	srv := web.NewServer(cfg.Server.Port, web.Deps{
		Quotes: quotes.NewClient(cfg.Quotes.URL, cfg.Quotes.Timeout, lg.Named("quotes")),
		Live:   pipeline,
		Historical: historical.NewClient(historical.Config{
			URL:      cfg.Historical.URL,
			Token:    cfg.Historical.Token,
			CacheTTL: cfg.Historical.CacheTTL,
		}, nil, store, lg.Named("historical")),
		News:     news.NewClient(news.Config{URL: cfg.News.URL, Token: cfg.News.Token}, store, lg.Named("news")),
		Calendar: calendar.NewClient(cfg.Calendar.BaseURL, lg.Named("calendar")),
		WS:       h.ServeWS(func() any { return pipeline.Snapshot() }),
	}, lg.Named("web"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server stopped", zap.Error(err))
		}
	}

	disconnect()
	if err := srv.Shutdown(context.Background()); err != nil {
		lg.Warn("shutdown", zap.Error(err))
	}
}

// openStore picks Redis when an address is configured and falls back to the
// in-process cache when it is not, or when Redis is unreachable at startup.
func openStore(cfg config.RedisConfig, lg *zap.Logger) (cache.Store, func()) {
	if cfg.Addr == "" {
		return cache.NewMemory(), func() {}
	}
	r, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err != nil {
		lg.Warn("redis unavailable, using memory cache", zap.String("addr", cfg.Addr), zap.Error(err))
		return cache.NewMemory(), func() {}
	}
	lg.Info("using redis cache", zap.String("addr", cfg.Addr))
	return r, func() { _ = r.Close() }
}

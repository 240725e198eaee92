// Command eccentric receives mail and spools every message to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matoous/eccentric"
	"github.com/matoous/eccentric/config"
	"github.com/matoous/eccentric/spool"
)

// shutdownTimeout is how long live sessions get to finish after a signal
const shutdownTimeout = 30 * time.Second

var configFile = flag.String("config", "eccentric.yml", "path to the configuration file")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run serves until ctx is done and then shuts the server down
func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	var metrics *http.Server
	if cfg.Metrics.Addr != "" {
		metrics = serveMetrics(cfg.Metrics, logger)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metrics != nil {
		_ = metrics.Shutdown(sctx)
	}
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, 0)
	}
	if err := <-errc; !errors.Is(err, eccentric.ErrServerClosed) {
		return err
	}
	return nil
}

// newServer wires the spool, the resolver and the limits from cfg into a server
func newServer(cfg *config.Config, logger *zap.Logger) (*eccentric.Server, error) {
	limits, err := cfg.ToLimits()
	if err != nil {
		return nil, err
	}
	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}
	resolver, err := cfg.DNSResolver()
	if err != nil {
		return nil, err
	}
	store, err := spool.New(cfg.Spool.Dir, logger.Named("spool"))
	if err != nil {
		return nil, err
	}

	srv, err := eccentric.NewServer(cfg.Hostname, logger.Named("smtp"), limits)
	if err != nil {
		return nil, err
	}
	srv.Addr = cfg.Server.Addr
	srv.TLSConfig = tlsConfig
	srv.Resolver = resolver
	srv.Handler = store
	return srv, nil
}

func serveMetrics(cfg config.MetricsConfig, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return hs
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/blob/httpstore"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// Ready, if set, receives the bound address once the server listens.
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured store's files over HTTP",
		Long: `Serve the configured store read-only under /files/{key}, with Prometheus
metrics (sync counters, served files, Go runtime) under /metrics. Set the store's public_url to "<address>/files" so
saved indexes carry URLs that resolve through this server.

Example:
  minisync serve --addr :8080 --config alice.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:8080", "listen address")

	return cmd
}

// countingStore counts files returned from a served store.
type countingStore struct {
	blob.Store
	served prometheus.Counter
}

func (s countingStore) GetFile(ctx context.Context, h blob.FileHandle) (*blob.FileData, error) {
	fd, err := s.Store.GetFile(ctx, h)
	if err == nil && fd != nil {
		s.served.Inc()
	}
	return fd, err
}

// newServeHandler routes file downloads and metrics.
func newServeHandler(store blob.Store, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	served := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "minisync_files_served_total",
		Help: "Files returned by the HTTP file server.",
	})
	reg.MustRegister(served)

	r := mux.NewRouter()
	httpstore.Register(r, countingStore{Store: store, served: served}, logger)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parentCtx := commandContext(cmd)
	e, err := openEnv(parentCtx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	reg := e.reg
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           newServeHandler(e.store, reg, e.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			e.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	e.logger.Info("serving", "addr", addr, "store", e.cfg.Store.Kind)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving files on http://%s/files/\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case err := <-errc:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	e.logger.Info("server stopped")
	return nil
}

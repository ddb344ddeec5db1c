package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/blob/boltstore"
	"github.com/roach88/minisync/internal/blob/httpstore"
	"github.com/roach88/minisync/internal/blob/redisstore"
	"github.com/roach88/minisync/internal/blob/sqlitestore"
	"github.com/roach88/minisync/internal/kvdoc"
	"github.com/roach88/minisync/internal/remote"
)

// env is what a sync command needs: configuration, a logger, the opened
// primary store and the sync counters.
type env struct {
	cfg     *Config
	logger  *slog.Logger
	store   blob.RemoteStore
	close   func() error
	reg     *prometheus.Registry
	metrics *remote.Metrics
}

// newLogger returns a text logger on w; verbose enables debug output.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openEnv loads the configuration and opens the primary store. Callers
// must call env.Close.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	store, closeFn, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger.Debug("store opened", "kind", cfg.Store.Kind)
	reg := prometheus.NewRegistry()
	return &env{
		cfg:     cfg,
		logger:  logger,
		store:   blob.WithRemoteLogging(store, logger),
		close:   closeFn,
		reg:     reg,
		metrics: remote.NewMetrics(reg),
	}, nil
}

func (e *env) Close() {
	if err := e.close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}

// openStore opens the store selected by sc.
func openStore(ctx context.Context, sc StoreConfig) (blob.RemoteStore, func() error, error) {
	noop := func() error { return nil }
	switch sc.Kind {
	case StoreMemory:
		var opts []blob.InMemOption
		if sc.ID != "" {
			opts = append(opts, blob.WithStoreID(sc.ID))
		}
		if sc.PublicURL != "" {
			opts = append(opts, blob.WithPublicURL(sc.PublicURL))
		}
		return blob.NewInMem(opts...), noop, nil

	case StoreSQLite:
		var opts []sqlitestore.Option
		if sc.PublicURL != "" {
			opts = append(opts, sqlitestore.WithPublicURL(sc.PublicURL))
		}
		s, err := sqlitestore.Open(sc.Path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case StoreBolt:
		var opts []boltstore.Option
		if sc.PublicURL != "" {
			opts = append(opts, boltstore.WithPublicURL(sc.PublicURL))
		}
		s, err := boltstore.Open(sc.Path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case StoreRedis:
		s, err := redisstore.Open(ctx, redisstore.Options{
			Addr:       sc.Addr,
			Password:   sc.Password,
			DB:         sc.DB,
			Namespace:  sc.Namespace,
			PublicBase: sc.PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, errors.Newf("unknown store kind %q", sc.Kind)
}

// syncer returns a Syncer over the primary store that builds documents
// with factory.
func (e *env) syncer(factory remote.Factory) *remote.Syncer {
	var stores []blob.Downloader
	if e.cfg.Resolve.HTTP {
		var opts []httpstore.ClientOption
		if len(e.cfg.Resolve.Prefixes) > 0 {
			opts = append(opts, httpstore.WithPrefixes(e.cfg.Resolve.Prefixes...))
		}
		if e.cfg.Resolve.MaxBodyBytes > 0 {
			opts = append(opts, httpstore.WithMaxBodyBytes(e.cfg.Resolve.MaxBodyBytes))
		}
		stores = append(stores, httpstore.NewClient(opts...))
	}
	return remote.New(e.store, remote.Config{
		PartSizeLimit: e.cfg.PartSizeLimit,
		ClientName:    e.cfg.Client.Name,
		Label:         e.cfg.Client.Label,
		Stores:        stores,
		Factory:       factory,
		Logger:        e.logger,
		Metrics:       e.metrics,
		Progress: func(p float64) {
			e.logger.Debug("progress", "done", p)
		},
	})
}

// kvFactory builds working documents. With an empty clientID a restored
// document resumes as the client that wrote it.
func kvFactory(clientID string) remote.Factory {
	return func(changes []byte) (remote.Document, error) {
		d, err := kvdoc.Load(changes, clientID)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func asKV(d remote.Document) (*kvdoc.Doc, error) {
	kd, ok := d.(*kvdoc.Doc)
	if !ok {
		return nil, errors.Newf("unexpected document type %T", d)
	}
	return kd, nil
}

package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Bigouden/openstack-swift-exporter/internal/collector"
	"github.com/Bigouden/openstack-swift-exporter/internal/objectstore"
	"github.com/Bigouden/openstack-swift-exporter/internal/registry"
	"github.com/Bigouden/openstack-swift-exporter/internal/scheduler"
	"github.com/Bigouden/openstack-swift-exporter/internal/server"
)

func NewApp() *cobra.Command {
	builder := newConfigBuilder(os.Getenv)

	cmd := &cobra.Command{
		Use:           "openstack-swift-exporter",
		Short:         "Expose OpenStack Swift object metrics via Prometheus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := builder.finalize(cmd.Flags()); err != nil {
				return err
			}
			return Start(cmd.Context(), builder.cfg)
		},
	}

	builder.bindFlags(cmd.Flags())

	return cmd
}

// Start runs the exporter until ctx is done, a termination signal arrives
// or, in fail-fast mode, a container listing fails.
func Start(ctx context.Context, config Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a := newApp(config, objectstore.NewSwiftSource(config.Auth, config.Retries, nil), os.Stdout)
	slog.SetDefault(a.logger)
	a.logger.Info("Starting openstack-swift-exporter", "config", config)

	if config.Oneshot {
		return a.collectOnce(ctx, os.Stdout)
	}

	ln, err := net.Listen("tcp", config.ListenAddress())
	if err != nil {
		return err
	}
	return a.serve(ctx, ln)
}

type app struct {
	config Config
	source objectstore.Source
	logger *slog.Logger
	level  *slog.LevelVar
}

func newApp(config Config, source objectstore.Source, logOutput io.Writer) *app {
	level := new(slog.LevelVar)
	logger := NewLogger(logOutput, level, config.location)
	if l, err := parseLevel(config.LogLevel); err != nil {
		logger.Error("invalid log level, using INFO", "log_level", config.LogLevel, "err", err)
	} else {
		level.Set(l)
	}
	return &app{config: config, source: source, logger: logger, level: level}
}

// exporter is the scrape pipeline wired for one run.
type exporter struct {
	registry *registry.Registry
	handler  http.Handler
	fatal    chan error
}

func (a *app) build() *exporter {
	var (
		registerer prometheus.Registerer
		additional prometheus.Gatherer
		metrics    *collector.Metrics
	)
	if a.config.ExporterMetrics {
		self := prometheus.NewRegistry()
		self.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = collector.NewMetrics(self)
		registerer, additional = self, self
	}

	reg := registry.New()
	reg.Register(collector.NewContainerCollector(a.source, collector.Options{
		Job:       a.config.Name,
		Container: a.config.Container,
		List:      a.config.ListOptions(),
		Coalesce:  a.config.CoalesceScrapes,
		Metrics:   metrics,
		Logger:    a.logger,
	}))

	ex := &exporter{registry: reg, fatal: make(chan error, 1)}
	metricsHandler := server.MetricsHandler(reg, server.HandlerOpts{
		DisableCompression: a.config.DisableCompression,
		EnableOpenMetrics:  a.config.EnableOpenMetrics,
		Timeout:            a.config.ScrapeTimeout,
		Additional:         additional,
		OnGatherError:      ex.onGatherError(a.config.FailFast),
		Logger:             a.logger,
	})
	ex.handler = server.NewRouter(metricsHandler, registerer, a.logger)
	return ex
}

// onGatherError reports listing failures as fatal in fail-fast mode.
// Cancelled scrapes never are.
func (ex *exporter) onGatherError(failFast bool) func(error) {
	return func(err error) {
		var lerr *collector.ListingError
		if !failFast || !errors.As(err, &lerr) {
			return
		}
		select {
		case ex.fatal <- err:
		default:
		}
	}
}

func (a *app) serve(ctx context.Context, ln net.Listener) error {
	ex := a.build()
	srv := server.NewMetricServer(ex.handler, ln.Addr().String())
	sched := scheduler.NewScheduler(a.config.Heartbeat, scheduler.Heartbeat(a.logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case err := <-ex.fatal:
			a.logger.Error("container listing failed, shutting down", "err", err)
			return err
		case <-gctx.Done():
			return nil
		}
	})
	if a.config.EnvFile != "" {
		g.Go(func() error {
			if err := watchEnvFile(gctx, a.config.EnvFile, a.reloadEnvFile); err != nil {
				a.logger.Warn("env file reloads disabled", "err", err)
			}
			return nil
		})
	}

	a.logger.Info("Listening", "address", ln.Addr().String(), "path", server.MetricsPath)
	return g.Wait()
}

// reloadEnvFile applies the reloadable settings of the env file.
func (a *app) reloadEnvFile(values map[string]string) {
	if a.config.logLevelPinned {
		return
	}
	raw, ok := values[envLogLevel]
	if !ok {
		return
	}
	l, err := parseLevel(raw)
	if err != nil {
		a.logger.Error("invalid log level in env file", "log_level", raw, "err", err)
		return
	}
	if l != a.level.Level() {
		a.level.Set(l)
		a.logger.Info("log level changed", "log_level", l.String())
	}
}

// collectOnce lists the container once and writes the metrics in the text
// format.
func (a *app) collectOnce(ctx context.Context, w io.Writer) error {
	ex := a.build()
	if a.config.ScrapeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.ScrapeTimeout)
		defer cancel()
	}
	mfs, err := ex.registry.GatherContext(ctx)
	if err != nil {
		return err
	}
	return server.Encode(w, mfs, expfmt.NewFormat(expfmt.TypeTextPlain))
}

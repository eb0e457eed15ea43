// Command bedrock-monitor runs example Bedrock invocations through an
// instrumented client and reports the telemetry they produced.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/common/graceful"
	"github.com/nrbedrock/bedrock-observability/common/logger"
	"github.com/nrbedrock/bedrock-observability/instrument"
	"github.com/nrbedrock/bedrock-observability/monitor"
)

type runOptions struct {
	app          string
	region       string
	scenarioFile string
	only         string
	dryRun       bool
	metricsAddr  string
	logDir       string
	concurrency  int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bedrock-monitor",
		Short:         "Bedrock observability for New Relic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run example invocations through the instrumented client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), cmd, opts)
			if err != nil {
				logger.Logger.Error("run failed", zap.Error(err))
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.app, "app", "bedrock-monitor-example", "application name attached to telemetry")
	flags.StringVar(&opts.region, "region", config.AWSRegion, "AWS region of the Bedrock runtime")
	flags.StringVar(&opts.scenarioFile, "scenario", "", "YAML file with scenarios to run instead of the built-in ones")
	flags.StringVar(&opts.only, "only", "", "comma separated scenario keys to run, e.g. claude,stream")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "record telemetry locally without sending it to New Relic")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address, e.g. :9464")
	flags.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs into this directory")
	flags.IntVar(&opts.concurrency, "concurrency", 2, "scenarios running at the same time")

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts runOptions) error {
	if opts.logDir != "" {
		if err := os.MkdirAll(opts.logDir, 0o755); err != nil {
			return errors.Wrapf(err, "create log dir %q", opts.logDir)
		}
		logger.LogDir = opts.logDir
		logger.SetupLogger()
		logger.StartLogRetentionCleaner(ctx, opts.logDir)
	}
	logger.SetupEnhancedLogger(ctx)
	ctx = gmw.SetLogger(ctx, logger.Logger)

	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	all, metadata, err := loadScenarios(opts.scenarioFile)
	if err != nil {
		return errors.Wrap(err, "load scenarios")
	}
	selected, err := selectScenarios(all, opts.only)
	if err != nil {
		return errors.Wrap(err, "select scenarios")
	}

	logger.Logger.Info("bedrock-monitor started",
		zap.String("version", config.Version),
		zap.String("app", opts.app),
		zap.String("region", opts.region),
		zap.Int("scenarios", len(selected)),
		zap.Bool("dry_run", opts.dryRun),
	)

	registry := prometheus.NewRegistry()
	rec := monitor.NewRecorderSink()
	sinks := []monitor.Sink{rec}
	if config.DebugEnabled {
		sinks = append(sinks, monitor.NewLogSink())
	}

	mon, err := monitor.Initialization(ctx, monitor.Options{
		ApplicationName: opts.app,
		Metadata:        metadata,
		UseLogger:       true,
		Sinks:           sinks,
		DisableNewRelic: opts.dryRun,
		Registerer:      registry,
	})
	if err != nil {
		return errors.Wrap(err, "initialize monitor")
	}

	var srv *http.Server
	if opts.metricsAddr != "" {
		srv = newMetricsServer(opts.metricsAddr, registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Logger.Info("metrics endpoint available", zap.String("addr", opts.metricsAddr))
	}

	client, err := instrument.NewClient(ctx, mon, opts.region)
	if err != nil {
		return errors.Wrap(err, "new bedrock client")
	}

	results := runScenarios(ctx, logger.Logger, client, selected, opts.concurrency)

	graceful.GoCritical(context.WithoutCancel(ctx), "flush telemetry", func(ctx context.Context) {
		if err := mon.Flush(ctx); err != nil {
			logger.Logger.Warn("flush telemetry", zap.Error(err))
		}
	})

	rep := buildReport(results, rec)
	renderReport(cmd.OutOrStdout(), rep)

	shutdown(ctx, mon, srv)

	if rep.failedCount > 0 {
		return errors.Errorf("%d of %d scenarios failed", rep.failedCount, len(rep.results))
	}
	return nil
}

// shutdown drains in-flight work, then stops the monitor and the metrics server.
func shutdown(ctx context.Context, mon *monitor.Monitor, srv *http.Server) {
	graceful.SetDraining()

	timeout := time.Duration(config.ShutdownTimeoutSec) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := graceful.Drain(shutdownCtx); err != nil {
		logger.Logger.Warn("drain did not complete", zap.Error(err))
	}
	if err := mon.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn("monitor shutdown", zap.Error(err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

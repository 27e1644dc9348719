package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/pkg/config"
	"github.com/marmos91/dittohttp/pkg/server"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "init":
			return runInit(args[1:], stdout, stderr)
		case "audit":
			return runAudit(args[1:], stdout, stderr)
		}
	}

	opts, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "dittohttp: %v\n", err)
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, opts); err != nil {
		fmt.Fprintf(stderr, "dittohttp: %v\n", err)
		return 1
	}
	return 0
}

func runInit(args []string, stdout, stderr io.Writer) int {
	opts, err := parseInitArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "dittohttp init: %v\n", err)
		}
		return 1
	}

	path := opts.configPath
	if path == "" {
		path, err = config.InitConfig(opts.force)
	} else {
		err = config.InitConfigToPath(path, opts.force)
	}
	if err != nil {
		fmt.Fprintf(stderr, "dittohttp init: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Configuration written to %s\n", path)
	return 0
}

// runAudit prints the newest entries of the persisted audit trail in the
// same format the file sink writes.
func runAudit(args []string, stdout, stderr io.Writer) int {
	opts, err := parseAuditArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "dittohttp audit: %v\n", err)
		}
		return 1
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "dittohttp audit: %v\n", err)
		return 1
	}

	trail, err := config.OpenAuditTrail(&cfg.Audit)
	if err != nil {
		fmt.Fprintf(stderr, "dittohttp audit: %v\n", err)
		return 1
	}
	defer func() { _ = trail.Close() }()

	entries, err := trail.Entries(opts.limit)
	if err != nil {
		fmt.Fprintf(stderr, "dittohttp audit: %v\n", err)
		return 1
	}
	for _, e := range entries {
		if _, err := stdout.Write(e.Line()); err != nil {
			fmt.Fprintf(stderr, "dittohttp audit: %v\n", err)
			return 1
		}
	}
	return 0
}

// serve loads the configuration, builds the store, audit sink, metrics and
// adapters, and blocks until ctx is cancelled or an adapter fails.
// A shutdown caused by ctx is not an error.
func serve(ctx context.Context, opts *options) error {
	cfg, err := config.LoadUnvalidated(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	logger.Info("DittoHTTP - concurrent file server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	store, err := config.CreateStore(&cfg.Storage)
	if err != nil {
		return err
	}

	sink, err := config.CreateAuditSink(&cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to create audit sink: %w", err)
	}

	// From here on the server owns the sink and closes it when Serve returns.
	srv := server.New(store, sink)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		_ = sink.Close()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = sink.Close()
			return err
		}
	}

	http := cfg.Adapters.HTTP
	logger.Info("HTTP configuration:")
	logger.Info("  Port: %d", http.Port)
	logger.Info("  Threads: %d", http.Threads)
	logger.Info("  Queue capacity: %d", http.QueueCapacity)
	logger.Info("  Header buffer: %d bytes", http.HeaderBufferSize)
	logger.Info("  Response lock: %s", http.ResponseLock)
	logger.Info("  Audit: %s", cfg.Audit.Type)

	err = srv.Serve(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Info("Server stopped gracefully")
		return nil
	}
	return err
}

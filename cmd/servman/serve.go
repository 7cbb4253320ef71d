package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/servman/servman"
	"github.com/servman/servman/internal/event"
	"github.com/servman/servman/internal/history"
	"github.com/servman/servman/internal/history/clickhouse"
	"github.com/servman/servman/internal/history/factory"
	"github.com/servman/servman/internal/logger"
	"github.com/servman/servman/internal/sigguard"
	"github.com/servman/servman/internal/supervisor"
	"github.com/spf13/cobra"
)

// ServeFlags configures the daemon.
type ServeFlags struct {
	Listen          string
	BasePath        string
	ConfigPath      string
	Command         string
	Entry           string
	LogLevel        string
	LogColor        bool
	LogDir          string
	HistoryDSN      string
	ClickhouseAddr  string
	ClickhouseTable string
}

func createServeCommand() *cobra.Command {
	flags := &ServeFlags{}
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervision daemon",
		Long: `Run the supervision daemon: the REST API, the output relay,
metrics, optional history storage, and the signal guard that kills the
supervised server before the daemon dies.

Examples:
  servman serve
  servman serve --listen=0.0.0.0:9090 --history-dsn=sqlite:///var/lib/servman/history.db
  servman serve --clickhouse-addr=localhost:9000`,
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
	c.Flags().StringVar(&flags.Listen, "listen", "127.0.0.1:9090", "address for the management API")
	c.Flags().StringVar(&flags.BasePath, "base-path", "/api", "base path for the management API")
	c.Flags().StringVar(&flags.ConfigPath, "config", "", "config file path (defaults to the user config dir)")
	c.Flags().StringVar(&flags.Command, "command", "", "server launch command (default \""+supervisor.DefaultCommand+"\")")
	c.Flags().StringVar(&flags.Entry, "entry", "", "entry artifact checked before launch (default "+supervisor.DefaultEntry+")")
	c.Flags().StringVar(&flags.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	c.Flags().BoolVar(&flags.LogColor, "log-color", false, "colorize log output")
	c.Flags().StringVar(&flags.LogDir, "log-dir", "", "directory for rotating stdout/stderr mirrors (disabled when empty)")
	c.Flags().StringVar(&flags.HistoryDSN, "history-dsn", "", "output history DSN: sqlite://path or postgres://...")
	c.Flags().StringVar(&flags.ClickhouseAddr, "clickhouse-addr", "", "ClickHouse address for lifecycle export (disabled when empty)")
	c.Flags().StringVar(&flags.ClickhouseTable, "clickhouse-table", "", "ClickHouse table for lifecycle export")
	return c
}

func runServe(flags *ServeFlags) error {
	log := logger.New(os.Stderr, flags.LogLevel, flags.LogColor)

	hist, err := factory.New(flags.HistoryDSN)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	if hist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := hist.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("prepare history schema: %w", err)
		}
	}

	var exports []history.Sink
	if flags.ClickhouseAddr != "" {
		ch, err := clickhouse.New(flags.ClickhouseAddr, flags.ClickhouseTable)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = ch.EnsureTable(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("prepare clickhouse table: %w", err)
		}
		exports = append(exports, ch)
	}

	bus := event.NewBus(256)
	sink := event.MultiSink{
		event.SlogSink{Logger: log},
		bus,
		history.NewRecorder(hist, log),
	}

	m, err := servman.New(servman.Options{
		ConfigPath: flags.ConfigPath,
		Spec: servman.ServiceSpec{
			Command: flags.Command,
			Entry:   flags.Entry,
			Mirror:  logger.MirrorConfig{Dir: flags.LogDir},
		},
		Sink:    sink,
		History: hist,
		Exports: exports,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	if err := servman.RegisterMetricsDefault(); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	srv := servman.NewHTTPServer(flags.Listen, flags.BasePath, m, bus, hist, log)
	log.Info("management API listening", "addr", flags.Listen, "base_path", flags.BasePath)

	// The guard owns shutdown: the first fatal signal kills the
	// supervised server, closes the API, and re-raises; a repeat exits
	// immediately. The daemon then dies from the re-raised signal, so
	// this function never returns.
	g := sigguard.New(func() {
		m.Cleanup()
		_ = srv.Close()
		if hist != nil {
			_ = hist.Close()
		}
	}, log)
	g.Start()
	select {}
}

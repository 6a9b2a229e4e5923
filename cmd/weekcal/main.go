package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/scheduler"
	"weekcal/internal/storage"
	"weekcal/internal/store"
	"weekcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	dataDir    string
	reset      bool
	clear      bool
	info       bool
	exportPath string
}

func main() {
	os.Exit(run())
}

// run wires the application and returns the process exit code.
func run() int {
	appLog.Info("weekcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI flags override the config file when set.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dataDir != "" {
		conf.DataDir = flags.dataDir
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"data_dir", conf.DataDir,
		"seed_on_empty", conf.Seed(),
		"correct_offset", conf.Layout.CorrectOffset,
		"export_cron", conf.Export.Cron,
		"subscriptions", len(conf.Subscriptions),
	)

	kv, err := storage.OpenBadger(conf.DataDir)
	if err != nil {
		appLog.Error("failed to open storage", err, "data_dir", conf.DataDir)
		return 1
	}
	defer func() {
		if err := kv.Close(); err != nil {
			appLog.Error("failed to close storage", err)
		}
	}()

	adapter := storage.New(kv, conf.Location())
	st := store.New(adapter, store.Options{
		Location:  conf.Location(),
		WeekStart: conf.FirstWeekday(),
		Seed:      conf.Seed(),
	})

	// One-shot maintenance commands.
	if flags.clear {
		st.ClearAll()
		return 0
	}
	st.Init()

	switch {
	case flags.reset:
		st.ResetToSeed()
		return 0
	case flags.info:
		printInfo(adapter)
		return 0
	case flags.exportPath != "":
		if err := exportSnapshot(st, flags.exportPath); err != nil {
			appLog.Error("export failed", err, "path", flags.exportPath)
			return 1
		}
		return 0
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(conf, st, adapter, ics.NewFetcher(kv, nil))
	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Start(ctx) }()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, st, adapter).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-schedErr:
		if err != nil {
			appLog.Error("scheduler failed", err)
			exitCode = 1
		}
	case err := <-srvErr:
		if err != nil {
			appLog.Error("HTTP server failed", err)
			exitCode = 1
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	sched.Stop()

	appLog.Info("weekcal exiting")
	return exitCode
}

func printInfo(adapter storage.Adapter) {
	info, ok := adapter.Info()
	if !ok {
		appLog.Warn("storage info unavailable")
		return
	}
	appLog.Info("storage info",
		"count", info.Count,
		"size_bytes", info.SizeBytes,
		"last_modified", info.LastModified.Format(time.RFC3339),
	)
}

func exportSnapshot(st *store.Store, path string) error {
	events := st.Events()
	body := ics.Export(events, time.Now())
	if err := config.WriteFileAtomic(path, body, 0o600); err != nil {
		return err
	}
	appLog.Info("ics snapshot written", "path", path, "events", len(events))
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./weekcal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.dataDir, "data-dir", "", "Storage directory (overrides config if set)")
	flag.BoolVar(&cfg.reset, "reset", false, "Replace stored events with the example week and exit")
	flag.BoolVar(&cfg.clear, "clear", false, "Delete all stored events and exit")
	flag.BoolVar(&cfg.info, "info", false, "Print storage info and exit")
	flag.StringVar(&cfg.exportPath, "export", "", "Write an .ics snapshot to this path and exit")

	flag.Parse()

	return cfg
}

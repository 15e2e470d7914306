package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"rfid_session_go/internal/config"
	"rfid_session_go/internal/logging"
	"rfid_session_go/internal/runner"
	"rfid_session_go/internal/sink"
	"rfid_session_go/internal/tui"
)

const eventBuffer = 256

func main() {
	var (
		configFile string
		envFile    string
		uri        string
		logFile    string
		autostart  bool
	)
	flag.StringVar(&configFile, "config", "", "path to YAML config")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before config")
	flag.StringVar(&uri, "uri", "", "reader URI, overrides reader.uri")
	flag.StringVar(&logFile, "log", "", "write logs to this file instead of discarding them")
	flag.BoolVar(&autostart, "autostart", true, "start reading as soon as the monitor opens")
	flag.Parse()

	if _, err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env load warning: %v\n", err)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if uri != "" {
		cfg.Reader.URI = uri
	}

	var out *os.File
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "log dir: %v\n", err)
			os.Exit(2)
		}
		out, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			os.Exit(2)
		}
		defer out.Close()
		logging.Configure(logging.ProfileTUI, cfg.Log.Level, cfg.Log.Format, out)
	} else {
		logging.Configure(logging.ProfileTUI, cfg.Log.Level, cfg.Log.Format, nil)
	}

	opts, err := runner.FromConfig(cfg, "tmrmon")
	if err != nil {
		fmt.Fprintf(os.Stderr, "reader setup: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan sink.Event, eventBuffer)
	pub := sink.NewMulti()
	pub.Add("log", sink.NewLog(logging.Component("tags")))
	pub.Add("tui", sink.Func(func(ctx context.Context, ev sink.Event) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	mgr := runner.New(opts, pub, logging.Component("runner"))
	if autostart {
		if err := mgr.Start(ctx); err != nil {
			log.Error().Err(err).Msg("autostart failed")
		}
	}

	runErr := tui.Run(ctx, mgr, events)

	stop()
	mgr.Stop()
	close(events)
	_ = pub.Close()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "tmrmon: %v\n", runErr)
		os.Exit(1)
	}
}

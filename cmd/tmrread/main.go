package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"rfid_session_go/internal/config"
	"rfid_session_go/internal/httpapi"
	"rfid_session_go/internal/logging"
	"rfid_session_go/internal/runner"
	"rfid_session_go/internal/sink"
	"rfid_session_go/sdk"
)

func main() {
	var (
		configFile string
		envFile    string
		uri        string
		planFile   string
		aliasFile  string
		name       string
		once       bool
		duration   time.Duration
		trace      bool
	)
	flag.StringVar(&configFile, "config", "", "path to YAML config")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before config")
	flag.StringVar(&uri, "uri", "", "reader URI, overrides reader.uri")
	flag.StringVar(&planFile, "plan", "", "read plan YAML, overrides reader.plan_file")
	flag.StringVar(&aliasFile, "aliases", "", "model alias TOML, overrides reader.alias_file")
	flag.StringVar(&name, "name", "tmrread", "reader name used in event subjects")
	flag.BoolVar(&once, "once", false, "run a single synchronous read and exit")
	flag.DurationVar(&duration, "duration", 0, "synchronous read window, overrides read.duration")
	flag.BoolVar(&trace, "trace", false, "log raw transport frames at trace level")
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
	if planFile != "" {
		cfg.Reader.PlanFile = planFile
	}
	if aliasFile != "" {
		cfg.Reader.AliasFile = aliasFile
	}
	if duration > 0 {
		cfg.Read.Duration = duration
	}
	if once {
		cfg.Read.Mode = config.ModeSync
	}

	level := cfg.Log.Level
	if trace {
		level = "trace"
	}
	logging.Configure(logging.ProfileRuntime, level, cfg.Log.Format, nil)

	opts, err := runner.FromConfig(cfg, name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid reader setup")
	}
	if trace {
		opts.Session = append(opts.Session, sdk.WithTrace(traceFrames(logging.Component("wire"))))
	}

	pub, err := buildSinks(cfg, name)
	if err != nil {
		log.Fatal().Err(err).Msg("sink setup failed")
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := runner.New(opts, pub, logging.Component("runner"))

	if cfg.Read.Mode == config.ModeSync {
		if err := readOnce(ctx, mgr, cfg.Read.Duration); err != nil {
			log.Error().Err(err).Msg("read failed")
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, mgr, pub); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("tmrread stopped")
		os.Exit(1)
	}
	log.Info().Msg("tmrread stopped")
}

func buildSinks(cfg *config.Config, name string) (*sink.Multi, error) {
	pub := sink.NewMulti()
	pub.Add("log", sink.NewLog(logging.Component("tags")))

	if cfg.NATS.URL != "" {
		nc, err := sink.DialNATS(cfg.NATS.URL, cfg.NATS.Subject, name)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		pub.Add("nats", nc)
		log.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("nats sink ready")
	}
	if cfg.MQTT.Broker != "" {
		mc, err := sink.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID, cfg.MQTT.QoS)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		pub.Add("mqtt", mc)
		log.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("mqtt sink ready")
	}
	return pub, nil
}

func readOnce(ctx context.Context, mgr *runner.Manager, d time.Duration) error {
	res, err := mgr.ReadOnce(ctx, d)
	if err != nil {
		return err
	}
	fmt.Printf("tags: %d buffer_full=%v\n", len(res.Tags), res.BufferFull)
	for i, tag := range res.Tags {
		line := fmt.Sprintf("%2d) %s", i+1, tag.EPCHex())
		if tag.Antenna != nil {
			line += fmt.Sprintf(" ant=%d", *tag.Antenna)
		}
		if tag.RSSI != nil {
			line += fmt.Sprintf(" rssi=%d", *tag.RSSI)
		}
		if tag.ReadCount != nil {
			line += fmt.Sprintf(" reads=%d", *tag.ReadCount)
		}
		if len(tag.Data) > 0 {
			line += " data=" + strings.ToUpper(hex.EncodeToString(tag.Data))
		}
		if tag.OpErr != nil {
			line += " op_error=" + tag.OpErr.Error()
		}
		fmt.Println(line)
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, mgr *runner.Manager, pub *sink.Multi) error {
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		hub := httpapi.NewHub(logging.Component("hub"))
		pub.Add("ws", hub)
		srv := httpapi.New(cfg.HTTP.Addr, mgr, hub, logging.Component("http"))
		srv.SetShutdownTimeout(cfg.HTTP.ShutdownTimeout)

		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		if err := mgr.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		mgr.Stop()
		return gctx.Err()
	})
	return g.Wait()
}

func traceFrames(logger zerolog.Logger) sdk.TraceFunc {
	return func(tx bool, data []byte) {
		dir := "rx"
		if tx {
			dir = "tx"
		}
		logger.Trace().Str("dir", dir).Str("frame", strings.ToUpper(hex.EncodeToString(data))).Msg("frame")
	}
}

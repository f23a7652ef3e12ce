package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/host/v3"

	"github.com/coreman2200/ledmatrix/internal/config"
	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/diagnostics"
	"github.com/coreman2200/ledmatrix/internal/led"
	"github.com/coreman2200/ledmatrix/internal/mqttctl"
	"github.com/coreman2200/ledmatrix/internal/pipeline"
	"github.com/coreman2200/ledmatrix/internal/render"
	"github.com/coreman2200/ledmatrix/internal/server"
	"github.com/coreman2200/ledmatrix/internal/show"
)

// statusEvery is how often, in frames, /stats is refreshed.
const statusEvery = 30

func main() {
	// ---- Flags (config.yaml fills in whatever is not given here) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		document   = flag.String("json", "", "pipeline document (overrides config)")
		driver     = flag.String("driver", "", "driver: fpga | sim | nrz")
		frames     = flag.Uint64("frame-cnt", 0, "frames to render, 0 = until signalled")
		addr       = flag.String("addr", "", "HTTP listen address")
		broker     = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
		showPath   = flag.String("show", "", "show program to play")
		preview    = flag.Bool("preview", false, "console preview (sim driver)")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; using defaults")
		cfg = config.Default()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "json":
			cfg.Document = *document
		case "driver":
			cfg.Driver = *driver
		case "frame-cnt":
			cfg.Frames = *frames
		case "addr":
			cfg.HTTP.Addr = *addr
		case "mqtt":
			cfg.MQTT.Broker = *broker
		case "show":
			cfg.Show = *showPath
		case "preview":
			cfg.Sim.Preview = *preview
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	l, _ := cfg.Layout()

	// ---- Initial document; failing here is fatal ----
	builder := pipeline.NewBuilder()
	raw, err := pipeline.LoadFile(cfg.Document)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Document).Msg("load document")
	}
	pipe, err := builder.Build(raw)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Document).Msg("build document")
	}

	// ---- Device ----
	if cfg.Driver != "sim" {
		if _, err := host.Init(); err != nil {
			log.Fatal().Err(err).Msg("periph host init")
		}
	}
	var dev led.Device
	switch cfg.Driver {
	case "fpga":
		d, err := led.OpenFPGA(cfg.FPGAConfig())
		if err != nil {
			log.Fatal().Err(err).Msg("open fpga")
		}
		dev = d
	case "nrz":
		d, err := led.OpenNRZ(cfg.NRZ.Port, l.Count(), cfg.NRZFrequency())
		if err != nil {
			log.Fatal().Err(err).Str("port", cfg.NRZ.Port).Msg("open nrz")
		}
		dev = d
	default:
		opts := cfg.SimOptions()
		if cfg.Sim.Preview {
			pv := led.NewConsolePreview(l)
			pv.Every = cfg.Sim.PreviewEvery
			opts.OnFlush = func(frame []byte) {
				if err := pv.Show(frame); err != nil {
					log.Debug().Err(err).Msg("preview")
				}
			}
		}
		dev = led.NewSim(opts)
	}
	out, err := led.NewSync(dev, l.Geometry, cfg.SyncOptions())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Driver).Msg("led sync")
	}

	// ---- Control plane ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := control.NewBus(cfg.ChannelCapacity)
	events, err := bus.Subscribe("engine")
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe engine")
	}
	hub := diagnostics.NewHub(0)

	var srv *server.Server
	var httpSrv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = server.New(bus, hub, server.Options{
			Layout:       l,
			Driver:       cfg.Driver,
			Builder:      builder,
			PreviewEvery: cfg.Sim.PreviewEvery,
		})
		httpSrv = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      srv.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Str("instance", srv.ID().String()).Msg("HTTP server starting")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("http server crashed")
			}
		}()
	}

	var sub *mqttctl.Subscriber
	if cfg.MQTT.Broker != "" {
		sub = mqttctl.New(bus, mqttctl.Options{
			Broker:   cfg.MQTT.Broker,
			Prefix:   cfg.MQTT.Prefix,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
		})
		if err := sub.Connect(ctx); err != nil {
			// the client keeps retrying in the background
			log.Warn().Err(err).Msg("mqtt not connected yet")
		}
	}

	if cfg.Show != "" {
		prog, err := show.LoadFile(cfg.Show, builder)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Show).Msg("load show")
		}
		player := show.NewPlayer(show.BusHooks(bus))
		if err := player.Load(prog); err != nil {
			log.Fatal().Err(err).Msg("show")
		}
		go show.Run(ctx, player, 20*time.Millisecond)
	}

	// ---- Frame loop ----
	var eng *render.Engine
	eng, err = render.NewEngine(pipe, out, render.Options{
		Layout:      l,
		Events:      events,
		Diag:        hub,
		Builder:     builder,
		PatternHold: cfg.PatternHold,
		OnFrame: func(frame uint64, fb []byte) {
			if srv == nil {
				return
			}
			srv.PublishFrame(frame, fb)
			if frame%statusEvery == 0 {
				srv.SetStatus(server.Status{
					Frame:       frame,
					Fingerprint: eng.Pipeline().Fingerprint,
					Engine:      eng.Stats(),
					Last:        eng.Last,
					Sync:        out.Stats(),
				})
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine")
	}

	start := time.Now()
	st, err := eng.Run(ctx, cfg.Frames)
	if err != nil {
		log.Fatal().Err(err).Msg("frame loop")
	}

	// ---- Exit sequence ----
	stop()
	printSummary(os.Stdout, summary{
		Driver:   cfg.Driver,
		Elapsed:  time.Since(start),
		Engine:   st,
		Sync:     out.Stats(),
		Bus:      bus.Stats(),
		Pipeline: eng.Pipeline(),
	})
	if sub != nil {
		sub.Close()
	}
	if httpSrv != nil {
		_ = httpSrv.Close()
		srv.Close()
	}
	_ = bus.Close()

	time.Sleep(5 * time.Millisecond)
	if err := out.Blank(); err != nil {
		log.Error().Err(err).Msg("blank")
	}
	if err := out.Settle(l.FrameWords(), cfg.SettleTimeout()); err != nil {
		log.Warn().Err(err).Msg("settle")
	}
	if err := out.Close(); err != nil {
		log.Warn().Err(err).Msg("close device")
	}
	log.Info().Msg("bye")
}

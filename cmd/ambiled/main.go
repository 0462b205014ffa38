package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ambiled/internal/ambilight"
	"github.com/coreman2200/ambiled/internal/capture"
	"github.com/coreman2200/ambiled/internal/capture/pattern"
	"github.com/coreman2200/ambiled/internal/capture/screen"
	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/diagnostics"
	"github.com/coreman2200/ambiled/internal/status"
	"github.com/coreman2200/ambiled/internal/transport"
)

func main() {
	// ---- Flags (given flags win over config.yaml) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		address    = flag.String("address", "127.0.0.1", "device address")
		port       = flag.String("port", "20434", "device TCP port")
		width      = flag.Int("width", 16, "LEDs along the top and bottom edges")
		height     = flag.Int("height", 11, "LEDs along the left and right edges")
		source     = flag.String("source", "pattern", "frame source: pattern | screen")
		pat        = flag.String("pattern", "gradient", "test pattern: solid | gradient | sweep | rgb")
		colorName  = flag.String("color", "white", "pattern color (name or #rrggbb)")
		display    = flag.Int("display", 0, "display index for -source=screen")
		fps        = flag.Int("fps", 30, "capture frames per second")
		eager      = flag.Bool("eager-reconnect", false, "reconnect right after a failed send")
		statusAddr = flag.String("status", ":8080", "status HTTP listen address; empty disables")
		broker     = flag.String("mqtt", "", "MQTT broker host:port for diagnostics")
		dryRun     = flag.Bool("dry-run", false, "do not open a connection; record frames in memory")
		debug      = flag.Bool("debug", false, "debug logging (dumps grid coordinates and sample rectangles)")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// ---- Load config.yaml (optional) ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
		cfg = config.Default()
	}
	// given flags are re-applied whenever config.yaml is reloaded
	overrides := func(c *config.Config) {
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "address":
				c.Device.Address = *address
			case "port":
				c.Device.Port = *port
			case "width":
				c.Grid.Width = *width
			case "height":
				c.Grid.Height = *height
			case "source":
				c.Capture.Source = *source
			case "pattern":
				c.Capture.Pattern = *pat
			case "color":
				c.Capture.Color = *colorName
			case "display":
				c.Capture.Display = *display
			case "fps":
				c.Capture.FPS = *fps
			case "eager-reconnect":
				c.Loop.EagerReconnect = *eager
			case "status":
				c.Status.Addr = *statusAddr
			case "mqtt":
				c.Status.MQTT.Broker = *broker
			}
		})
	}
	store := config.NewStore(cfg, *configPath)
	store.SetOverrides(overrides)
	live := store.Get()
	cfg = &live

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Frame source ----
	var producer capture.Producer
	switch cfg.Capture.Source {
	case "screen":
		producer = &screen.Grabber{Display: cfg.Capture.Display}
	case "pattern", "":
		producer, err = pattern.New(cfg.Capture.Pattern, cfg.Capture.Color)
		if err != nil {
			log.Fatal().Err(err).Msg("pattern")
		}
	default:
		log.Fatal().Str("source", cfg.Capture.Source).Msg("unknown frame source")
	}
	surface := capture.NewSurface()
	pump := &capture.Pump{Surface: surface, Producer: producer, FPS: cfg.Capture.FPS}
	go pump.Run(ctx)

	// ---- Device link ----
	var conn transport.Conn = transport.NewTCP()
	if *dryRun {
		conn = &transport.Recorder{Keep: 1}
		log.Info().Msg("dry run; frames are not sent anywhere")
	}

	// ---- Status and diagnostics ----
	var sinks diagnostics.Fanout
	var hub *status.Hub
	if cfg.Status.Addr != "" {
		hub = status.NewHub(store)
		sinks = append(sinks, hub)
	}
	var mq *status.MQTTSink
	if cfg.Status.MQTT.Broker != "" {
		mq = status.NewMQTTSink(cfg.Status.MQTT)
		if err := mq.Connect(ctx); err != nil {
			log.Warn().Err(err).Str("broker", cfg.Status.MQTT.Broker).Msg("mqtt unavailable; diagnostics stay local")
		}
		sinks = append(sinks, mq)
	}

	deps := ambilight.Deps{
		Source:   surface,
		Conn:     conn,
		Settings: store,
		Diag:     sinks,
	}
	if hub != nil {
		deps.OnFrame = hub.FrameSent
	}
	ctl := ambilight.New(deps)

	if hub != nil {
		hub.Attach(ctl)
		go func() {
			if err := hub.Serve(ctx, cfg.Status.Addr); err != nil {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	if err := ctl.Initialize(ctx, cfg.Device.Enabled); err != nil {
		log.Fatal().Err(err).Msg("capture loop failed to start")
	}
	if !cfg.Device.Enabled {
		log.Info().Msg("device disabled in config; waiting for settings")
	}

	// one restart per reload, however many settings it touched
	go store.Watch(ctx, time.Second, func(changed []string) {
		if err := ctl.OnSettingChanged(ctx, changed[0]); err != nil {
			log.Error().Err(err).Strs("settings", changed).Msg("restart after config change failed")
		}
	})

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	ctl.Shutdown()
	cancel()
	if mq != nil {
		mq.Close()
	}
	st := ctl.Stats()
	log.Info().Uint64("sent", st.Sent).Uint64("send_failures", st.SendFailures).Msg("bye")
}

package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/host/v3"

	"github.com/coreman2200/ambiled/internal/config"
	"github.com/coreman2200/ambiled/internal/device"
	"github.com/coreman2200/ambiled/internal/grid"
)

// ambisim stands in for the LED controller board: it listens for frames and
// shows them on an SPI strip, or on the console when there is no SPI port.
func main() {
	var (
		addr     = flag.String("listen", net.JoinHostPort("", strconv.Itoa(config.DefaultPort)), "TCP listen address")
		width    = flag.Int("width", 16, "LEDs along the top and bottom edges")
		height   = flag.Int("height", 11, "LEDs along the left and right edges")
		whiteCap = flag.Float64("white-cap", 0.85, "per-LED channel sum cap as a fraction of full white; 0 disables")
		budget   = flag.Float64("budget-ma", 0, "strip current budget in mA; 0 disables")
		debug    = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if _, err := host.Init(); err != nil {
		log.Fatal().Err(err).Msg("periph host init")
	}
	n := grid.Count(*width, *height)
	strip, spi, err := device.OpenStrip(n, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("open strip")
	}
	defer strip.Close()
	strip.Limit = &device.Limiter{WhiteCap: *whiteCap, BudgetmA: *budget}
	log.Info().Int("pixels", n).Bool("spi", spi).Msg("strip ready")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &device.Server{Renderer: strip}
	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		log.Error().Err(err).Msg("device server")
	}
	frames, errs := srv.Counts()
	log.Info().Uint64("frames", frames).Uint64("errors", errs).Msg("bye")
}

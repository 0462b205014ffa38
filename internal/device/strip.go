// Package device is the receiving end of the LED link: it accepts frames from
// the controller over TCP and shows them on a strip.
package device

import (
	"image"
	"image/color"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/ambiled/internal/wire"
)

// DefaultFreq is the SPI clock for WS281x style strips.
const DefaultFreq = 2500 * physic.KiloHertz

// Renderer shows one received frame.
type Renderer interface {
	Show(tiles []wire.TileData) error
}

// Strip draws tiles onto a display.Drawer one pixel per tile, in the order
// they were received. Tiles beyond the drawer's length are dropped.
type Strip struct {
	// Limit, when set, scales colors down before they reach the LEDs.
	Limit *Limiter

	mu     sync.Mutex
	drawer display.Drawer
	port   spi.PortCloser
	img    *image.NRGBA
	px     []color.NRGBA
	mA     float64
	last   []wire.TileData
	frames uint64
}

func NewStrip(d display.Drawer) *Strip {
	n := d.Bounds().Dx()
	return &Strip{drawer: d, img: image.NewNRGBA(image.Rect(0, 0, n, 1)), px: make([]color.NRGBA, n)}
}

// OpenStrip drives an nrzled strip of n pixels over the first SPI port, or
// prints to the console when there is none. host.Init must have run.
func OpenStrip(n int, freq physic.Frequency) (*Strip, bool, error) {
	if freq == 0 {
		freq = DefaultFreq
	}
	p, err := spireg.Open("")
	if err != nil {
		log.Warn().Err(err).Msg("no SPI port, printing at the console")
		return NewStrip(screen.New(n)), false, nil
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: n, Channels: 3, Freq: freq})
	if err != nil {
		p.Close()
		return nil, false, err
	}
	if err := d.Halt(); err != nil {
		log.Debug().Err(err).Msg("halt")
	}
	s := NewStrip(d)
	s.port = p
	log.Info().Str("strip", d.String()).Int("pixels", n).Msg("SPI strip ready")
	return s, true, nil
}

func (s *Strip) Show(tiles []wire.TileData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.px {
		c := color.NRGBA{A: 255}
		if i < len(tiles) {
			c.R, c.G, c.B = tiles[i].R, tiles[i].G, tiles[i].B
		}
		s.px[i] = c
	}
	if s.Limit != nil {
		s.mA = s.Limit.Apply(s.px)
	}
	for i, c := range s.px {
		s.img.SetNRGBA(i, 0, c)
	}
	s.last = append(s.last[:0], tiles...)
	s.frames++
	return s.drawer.Draw(s.drawer.Bounds(), s.img, image.Point{})
}

// Last returns the most recent frame and how many frames were shown.
func (s *Strip) Last() ([]wire.TileData, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.TileData(nil), s.last...), s.frames
}

// Current is the estimated draw of the last frame in mA, when limiting.
func (s *Strip) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mA
}

// Close blanks the strip and releases the SPI port.
func (s *Strip) Close() error {
	err := s.drawer.Halt()
	if s.port != nil {
		if cerr := s.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

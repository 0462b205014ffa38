// Package pattern renders synthetic frames for driving the lights without a
// real video source: a solid fill, an animated rainbow, a sweeping bar and an
// R/G/B channel cycle for checking color order.
package pattern

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/ambiled/internal/capture"
	"github.com/coreman2200/ambiled/internal/grid"
	"github.com/coreman2200/ambiled/internal/sampler"
)

// Names lists the patterns New understands.
func Names() []string { return []string{"solid", "gradient", "sweep", "rgb"} }

// New builds a producer by name. color applies to "solid" and "sweep" and
// accepts a hex string or one of red, green, blue, white, black.
func New(name, color string) (capture.Producer, error) {
	c, err := ParseColor(color)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(name) {
	case "solid":
		return &Solid{Color: c}, nil
	case "gradient", "":
		return &Gradient{Speed: 0.01}, nil
	case "sweep":
		return &Sweep{Color: c, Step: 2}, nil
	case "rgb":
		return &Cycle{Hold: 30}, nil
	}
	return nil, fmt.Errorf("unknown pattern %q", name)
}

// ParseColor reads a named or hex color. Empty means white.
func ParseColor(s string) (grid.RGB, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "white":
		return grid.RGB{R: 255, G: 255, B: 255}, nil
	case "red":
		return grid.RGB{R: 255}, nil
	case "green":
		return grid.RGB{G: 255}, nil
	case "blue":
		return grid.RGB{B: 255}, nil
	case "black":
		return grid.RGB{}, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return grid.RGB{}, fmt.Errorf("color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return grid.RGB{R: r, G: g, B: b}, nil
}

// Solid fills the whole frame with one color. Frames are cached per size and
// never written after being returned.
type Solid struct {
	Color grid.RGB

	mu    sync.Mutex
	frame sampler.Frame
}

func (s *Solid) Produce(w, h int) (sampler.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame.Width == w && s.frame.Height == h {
		return s.frame, nil
	}
	s.frame = fill(w, h, func(x, y int) grid.RGB { return s.Color })
	return s.frame, nil
}

// Gradient is a horizontal rainbow whose hue rotates by Speed turns per frame.
type Gradient struct {
	Speed float64

	mu    sync.Mutex
	phase float64
}

func (g *Gradient) Produce(w, h int) (sampler.Frame, error) {
	g.mu.Lock()
	phase := g.phase
	g.phase = math.Mod(g.phase+g.Speed, 1)
	g.mu.Unlock()

	row := make([]grid.RGB, w)
	for x := range row {
		hue := math.Mod(float64(x)/float64(max(1, w))+phase, 1) * 360
		r, gg, b := colorful.Hsv(hue, 1, 1).RGB255()
		row[x] = grid.RGB{R: r, G: gg, B: b}
	}
	return fill(w, h, func(x, y int) grid.RGB { return row[x] }), nil
}

// Sweep moves a vertical bar of Color across a black frame, Step pixels per
// frame, which makes the physical wiring order easy to follow by eye.
type Sweep struct {
	Color grid.RGB
	Step  int

	mu  sync.Mutex
	pos int
}

func (s *Sweep) Produce(w, h int) (sampler.Frame, error) {
	s.mu.Lock()
	pos := s.pos % max(1, w)
	s.pos = pos + max(1, s.Step)
	s.mu.Unlock()

	width := max(1, w/16)
	return fill(w, h, func(x, y int) grid.RGB {
		if x >= pos && x < pos+width {
			return s.Color
		}
		return grid.RGB{}
	}), nil
}

// Cycle shows full red, green and blue in turn, each for Hold frames.
type Cycle struct {
	Hold int

	mu    sync.Mutex
	frame int
}

func (c *Cycle) Produce(w, h int) (sampler.Frame, error) {
	c.mu.Lock()
	n := c.frame
	c.frame++
	c.mu.Unlock()

	var col grid.RGB
	switch (n / max(1, c.Hold)) % 3 {
	case 0:
		col.R = 255
	case 1:
		col.G = 255
	default:
		col.B = 255
	}
	return fill(w, h, func(x, y int) grid.RGB { return col }), nil
}

func fill(w, h int, at func(x, y int) grid.RGB) sampler.Frame {
	f := sampler.NewBGRA(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := at(x, y)
			f.Set(x, y, c.R, c.G, c.B)
		}
	}
	return f
}

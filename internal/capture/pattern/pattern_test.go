package pattern

import (
	"testing"

	"github.com/coreman2200/ambiled/internal/grid"
	"github.com/coreman2200/ambiled/internal/sampler"
)

func pixel(f sampler.Frame, x, y int) grid.RGB {
	i := y*f.Stride + x*4
	return grid.RGB{R: f.Pix[i+2], G: f.Pix[i+1], B: f.Pix[i]}
}

func TestParseColor(t *testing.T) {
	for in, want := range map[string]grid.RGB{
		"":        {R: 255, G: 255, B: 255},
		"Red":     {R: 255, G: 0, B: 0},
		"#00ff00": {R: 0, G: 255, B: 0},
		"#102030": {R: 0x10, G: 0x20, B: 0x30},
	} {
		got, err := ParseColor(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
	if _, err := ParseColor("chartreuse-ish"); err == nil {
		t.Fatal("expected an error for a bad color")
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("plasma", ""); err == nil {
		t.Fatal("expected unknown pattern error")
	}
	for _, n := range Names() {
		if _, err := New(n, "red"); err != nil {
			t.Fatalf("%s: %v", n, err)
		}
	}
}

func TestSolidCachesPerSize(t *testing.T) {
	s := &Solid{Color: grid.RGB{R: 255}}
	a, _ := s.Produce(100, 68)
	b, _ := s.Produce(100, 68)
	if &a.Pix[0] != &b.Pix[0] {
		t.Fatal("expected the cached frame to be reused")
	}
	if got := pixel(a, 50, 30); got != (grid.RGB{R: 255}) {
		t.Fatalf("expected red, got %v", got)
	}
	c, _ := s.Produce(10, 10)
	if c.Width != 10 || c.Height != 10 {
		t.Fatalf("expected 10x10 after resize, got %dx%d", c.Width, c.Height)
	}
}

func TestGradientAdvances(t *testing.T) {
	g := &Gradient{Speed: 0.25}
	a, _ := g.Produce(32, 4)
	b, _ := g.Produce(32, 4)
	if pixel(a, 0, 0) == pixel(b, 0, 0) {
		t.Fatal("expected hue to move between frames")
	}
	if pixel(a, 0, 0) != (grid.RGB{R: 255}) {
		t.Fatalf("expected hue 0 to be red, got %v", pixel(a, 0, 0))
	}
}

func TestSweepMoves(t *testing.T) {
	s := &Sweep{Color: grid.RGB{G: 255}, Step: 16}
	a, _ := s.Produce(64, 2)
	b, _ := s.Produce(64, 2)
	if pixel(a, 0, 0) != (grid.RGB{G: 255}) || pixel(a, 20, 0) != (grid.RGB{}) {
		t.Fatal("expected the bar at the left edge first")
	}
	if pixel(b, 16, 1) != (grid.RGB{G: 255}) || pixel(b, 0, 1) != (grid.RGB{}) {
		t.Fatal("expected the bar to move one step right")
	}
}

func TestCycleChannels(t *testing.T) {
	c := &Cycle{Hold: 1}
	want := []grid.RGB{{R: 255}, {G: 255}, {B: 255}, {R: 255}}
	for i, w := range want {
		f, _ := c.Produce(2, 2)
		if got := pixel(f, 1, 1); got != w {
			t.Fatalf("frame %d: expected %v, got %v", i, w, got)
		}
	}
}

// Package screen grabs the desktop as a frame source.
package screen

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"

	"github.com/coreman2200/ambiled/internal/sampler"
)

var ErrNoDisplay = errors.New("screen: no active displays")

// Grabber captures one display and scales it down to the requested size.
type Grabber struct {
	Display int
	// Scaler defaults to nearest neighbour, which is plenty for averaging.
	Scaler draw.Scaler
}

func (g *Grabber) Produce(w, h int) (sampler.Frame, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return sampler.Frame{}, ErrNoDisplay
	}
	if g.Display < 0 || g.Display >= n {
		return sampler.Frame{}, fmt.Errorf("screen: display %d of %d", g.Display, n)
	}
	src, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(g.Display))
	if err != nil {
		return sampler.Frame{}, fmt.Errorf("screen: capture: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler := g.Scaler
	if scaler == nil {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return sampler.FromRGBA(dst), nil
}

package grid

import "github.com/rs/zerolog/log"

// MapSamples assigns every tile its sample rectangle for an imageW×imageH
// source frame. Rectangles are only recomputed when the source size changes;
// the return value reports whether they were.
func (g *Grid) MapSamples(imageW, imageH int) bool {
	if imageW == g.imageW && imageH == g.imageH {
		return false
	}
	g.imageW, g.imageH = imageW, imageH

	// Truncation is deliberate: it decides how far the edge cells overlap.
	sw := imageW / g.width
	sh := imageH / g.height

	log.Debug().
		Int("image_width", imageW).
		Int("image_height", imageH).
		Int("sample_width", sw).
		Int("sample_height", sh).
		Msg("updating grid sample rectangles")

	for i := range g.tiles {
		t := &g.tiles[i]
		t.Sample = g.sampleRect(t.X, t.Y, imageW, imageH, sw, sh)
		log.Debug().Int("x", t.X).Int("y", t.Y).Stringer("rect", t.Sample).Msg("updated rectangle")
	}
	return true
}

func (g *Grid) sampleRect(x, y, imageW, imageH, sw, sh int) Rect {
	r := Rect{
		Left:   x * sw,
		Top:    y * sh,
		Right:  min(imageW, x*sw+sw),
		Bottom: min(imageH, y*sh+sh),
	}

	// The LEDs sit outside the picture, so edge tiles reach further in.
	if y == 0 {
		r.Bottom += sh * Overlap
	} else if y == g.height-1 {
		r.Top -= sh * Overlap
	}
	if x == 0 {
		r.Right += sw * Overlap
	} else if x == g.width-1 {
		r.Left -= sw * Overlap
	}
	return r
}

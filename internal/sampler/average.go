package sampler

import "github.com/coreman2200/ambiled/internal/grid"

// Step is the column stride within each sampled row.
const Step = 2

// truncBias absorbs the rounding error summed over many samples so that an
// exact mean such as 255 does not truncate to 254.
const truncBias = 1e-6

// Average returns the mean color of the sampled pixels in r. Every row is
// read and every Step-th column within it. Each sample contributes
// channel/total to the accumulator, where total is fixed up front from the
// clipped rectangle's area. When total is zero the fallback color is
// returned unchanged.
func Average(f Frame, r grid.Rect, fallback grid.RGB) grid.RGB {
	if !f.Valid() {
		return fallback
	}
	r = r.Intersect(f.Width, f.Height)
	if r.Empty() {
		return fallback
	}
	total := (r.Dx() * r.Dy()) / Step
	if total == 0 {
		return fallback
	}
	n := float64(total)

	ri, bi := 2, 0
	if f.Format == RGBA {
		ri, bi = 0, 2
	}
	stride := f.stride()

	var ar, ag, ab float64
	for y := r.Top; y < r.Bottom; y++ {
		row := f.Pix[y*stride:]
		for x := r.Left; x < r.Right; x += Step {
			p := row[x*4 : x*4+4]
			ar += float64(p[ri]) / n
			ag += float64(p[1]) / n
			ab += float64(p[bi]) / n
		}
	}
	return grid.RGB{R: channel(ar), G: channel(ag), B: channel(ab)}
}

// Fill recomputes the color of every tile from f. Tiles whose rectangle has no
// samples keep their previous color; the number of such tiles is returned.
func Fill(f Frame, tiles []grid.Tile) int {
	degenerate := 0
	for i := range tiles {
		t := &tiles[i]
		r := t.Sample.Intersect(f.Width, f.Height)
		if r.Empty() || (r.Dx()*r.Dy())/Step == 0 {
			degenerate++
			continue
		}
		t.Color = Average(f, t.Sample, t.Color)
	}
	return degenerate
}

// channel truncates an accumulated channel value to a byte.
func channel(v float64) uint8 {
	v += truncBias
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

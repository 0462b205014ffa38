package device

import (
	"image/color"
	"math"
)

// Limiter keeps a strip inside its power supply. WhiteCap bounds each pixel's
// channel sum as a fraction of full white; BudgetmA bounds the whole strip's
// estimated current. Zero values disable either stage.
type Limiter struct {
	WhiteCap float64
	BudgetmA float64
	// ChanmA is the draw of one channel at full scale; WS2812 is about 20.
	ChanmA float64
	// Knee is the fraction of the budget where soft scaling begins.
	Knee float64
}

// Apply scales px in place and returns the estimated current afterwards.
func (l *Limiter) Apply(px []color.NRGBA) float64 {
	if l.WhiteCap > 0 && l.WhiteCap < 1 {
		limit := l.WhiteCap * 3 * 255
		for i := range px {
			s := float64(px[i].R) + float64(px[i].G) + float64(px[i].B)
			if s > limit {
				scale(&px[i], limit/s)
			}
		}
	}

	total := l.current(px)
	if l.BudgetmA <= 0 || total <= 0 {
		return total
	}
	knee := l.Knee
	if knee <= 0 || knee >= 1 {
		knee = 0.9
	}
	ratio := total / l.BudgetmA
	if ratio <= knee {
		return total
	}
	s := l.BudgetmA / total
	if ratio <= 1 {
		// ease from 1 at the knee to budget/total at the budget
		t := (ratio - knee) / (1 - knee)
		s = 1 - t*(1-s)
	}
	for i := range px {
		scale(&px[i], s)
	}
	return l.current(px)
}

func (l *Limiter) current(px []color.NRGBA) float64 {
	chanmA := l.ChanmA
	if chanmA <= 0 {
		chanmA = 20
	}
	var sum float64
	for _, p := range px {
		sum += float64(p.R) + float64(p.G) + float64(p.B)
	}
	return sum / 255 * chanmA
}

func scale(p *color.NRGBA, s float64) {
	p.R = uint8(math.Floor(float64(p.R) * s))
	p.G = uint8(math.Floor(float64(p.G) * s))
	p.B = uint8(math.Floor(float64(p.B) * s))
}

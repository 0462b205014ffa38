package grid

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrDimensions is returned when a grid is narrower or shorter than two tiles.
var ErrDimensions = errors.New("grid: width and height must be at least 2")

// Overlap is how many sample cells an edge tile grows inwards.
const Overlap = 2

type RGB struct{ R, G, B uint8 }

type Point struct{ X, Y int }

// Rect is a half-open pixel rectangle in source frame coordinates. Border
// growth can leave it partially outside the frame.
type Rect struct{ Left, Top, Right, Bottom int }

func (r Rect) Dx() int { return r.Right - r.Left }
func (r Rect) Dy() int { return r.Bottom - r.Top }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.Left >= r.Right || r.Top >= r.Bottom }

// Intersect clips r to the frame of size w×h.
func (r Rect) Intersect(w, h int) Rect {
	if r.Left < 0 {
		r.Left = 0
	}
	if r.Top < 0 {
		r.Top = 0
	}
	if r.Right > w {
		r.Right = w
	}
	if r.Bottom > h {
		r.Bottom = h
	}
	return r
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Tile is one LED on the perimeter.
type Tile struct {
	X, Y   int
	Sample Rect
	Color  RGB
}

// Grid is the perimeter topology of a width×height LED frame. The tile order
// is the generation order of Perimeter; it is never changed after New.
type Grid struct {
	width, height int
	tiles         []Tile

	imageW, imageH int
}

// New builds the perimeter topology for a width×height grid.
func New(width, height int) (*Grid, error) {
	pts, err := Perimeter(width, height)
	if err != nil {
		return nil, err
	}
	g := &Grid{width: width, height: height, tiles: make([]Tile, len(pts))}
	for i, p := range pts {
		g.tiles[i] = Tile{X: p.X, Y: p.Y}
		log.Debug().Int("index", i).Int("x", p.X).Int("y", p.Y).Msg("grid coordinate")
	}
	log.Debug().Int("width", width).Int("height", height).Int("tiles", len(pts)).Msg("grid positions processed")
	return g, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }
func (g *Grid) Len() int    { return len(g.tiles) }

// Tiles returns the grid's own tile slice. Only the capture worker writes to it.
func (g *Grid) Tiles() []Tile { return g.tiles }

func (g *Grid) Tile(i int) *Tile { return &g.tiles[i] }

// PreferredAspect is the capture aspect ratio that maps one pixel cell to each tile.
func (g *Grid) PreferredAspect() float64 {
	return float64(g.width) / float64(g.height)
}

// CaptureSize derives a capture resolution with a fixed nominal width.
func CaptureSize(aspect float64, nominalW int) (int, int) {
	if aspect <= 0 {
		return nominalW, nominalW
	}
	return nominalW, int(float64(nominalW) / aspect)
}

// Count is the number of tiles on the perimeter of a width×height grid.
func Count(width, height int) int {
	return 2*width + 2*(height-2)
}

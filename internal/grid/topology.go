package grid

// Perimeter walks the rectangle border in physical wiring order: from just
// left of the top center leftwards, down the left edge, along the bottom edge,
// up the right edge and back along the top to the center.
func Perimeter(width, height int) ([]Point, error) {
	if width < 2 || height < 2 {
		return nil, ErrDimensions
	}
	center := width / 2
	pts := make([]Point, 0, Count(width, height))

	// top edge, center to left
	for x := center - 1; x >= 0; x-- {
		pts = append(pts, Point{x, 0})
	}
	// left edge only
	for y := 1; y < height-1; y++ {
		pts = append(pts, Point{0, y})
	}
	// bottom edge, stopping short of the right corner
	for x := 0; x < width-1; x++ {
		pts = append(pts, Point{x, height - 1})
	}
	// right edge, bottom to top
	for y := height - 1; y >= 1; y-- {
		pts = append(pts, Point{width - 1, y})
	}
	// top edge, right back to center
	for x := width - 1; x >= center; x-- {
		pts = append(pts, Point{x, 0})
	}
	return pts, nil
}

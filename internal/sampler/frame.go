package sampler

import "image"

// Format is the byte order of a 4-byte pixel.
type Format int

const (
	BGRA Format = iota
	RGBA
)

// Frame is a borrowed, read-only pixel buffer. Stride is the number of bytes
// per row; zero means Width*4.
type Frame struct {
	Width, Height int
	Stride        int
	Format        Format
	Pix           []byte
}

func (f Frame) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width * 4
}

// Valid reports whether Pix holds every row the frame claims to have.
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return len(f.Pix) >= (f.Height-1)*f.stride()+f.Width*4
}

// FromRGBA wraps an image without copying. The image must start at the origin.
func FromRGBA(img *image.RGBA) Frame {
	b := img.Bounds()
	return Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: img.Stride,
		Format: RGBA,
		Pix:    img.Pix[img.PixOffset(b.Min.X, b.Min.Y):],
	}
}

// NewBGRA allocates a zeroed w×h BGRA frame.
func NewBGRA(w, h int) Frame {
	return Frame{Width: w, Height: h, Stride: w * 4, Format: BGRA, Pix: make([]byte, w*h*4)}
}

// Set writes one pixel. Meant for producers building frames, not for the hot path.
func (f Frame) Set(x, y int, r, g, b uint8) {
	i := y*f.stride() + x*4
	if f.Format == RGBA {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, 255
		return
	}
	f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = b, g, r, 255
}

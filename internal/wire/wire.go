// Package wire encodes tile colors into the device's length-prefixed frame
// format and decodes them back.
//
// Frame layout, all multi-byte values big-endian:
//
//	[u32 total length, including these 4 bytes]
//	repeated per tile, last generated tile first: x:u8 y:u8 r:u8 g:u8 b:u8
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/coreman2200/ambiled/internal/grid"
)

const (
	HeaderSize   = 4
	TileSize     = 5
	MaxFrameSize = HeaderSize + TileSize*4096
)

var (
	ErrShortFrame = errors.New("wire: frame shorter than its header")
	ErrBadLength  = errors.New("wire: bad frame length")
)

// TileData is one decoded tile entry.
type TileData struct {
	X, Y    uint8
	R, G, B uint8
}

// Size is the encoded length of a frame holding n tiles.
func Size(n int) int { return HeaderSize + n*TileSize }

// Encoder reuses one output buffer across frames.
type Encoder struct {
	buf []byte
}

// Encode writes the whole frame for tiles into the encoder's buffer and
// returns it. The slice is only valid until the next call.
func (e *Encoder) Encode(tiles []grid.Tile) []byte {
	n := Size(len(tiles))
	if cap(e.buf) < n {
		e.buf = make([]byte, n)
	}
	e.buf = e.buf[:n]
	clear(e.buf)

	binary.BigEndian.PutUint32(e.buf, uint32(n))
	p := e.buf[HeaderSize:]
	for i := len(tiles) - 1; i >= 0; i-- {
		t := &tiles[i]
		p[0] = byte(t.X)
		p[1] = byte(t.Y)
		p[2] = t.Color.R
		p[3] = t.Color.G
		p[4] = t.Color.B
		p = p[TileSize:]
	}
	return e.buf
}

// Encode returns a freshly allocated frame for tiles.
func Encode(tiles []grid.Tile) []byte {
	var e Encoder
	return e.Encode(tiles)
}

// Decode parses one complete frame. Tiles are returned in wire order.
func Decode(b []byte) ([]TileData, error) {
	if len(b) < HeaderSize {
		return nil, ErrShortFrame
	}
	n := int(binary.BigEndian.Uint32(b))
	if err := checkLength(n); err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("%w: header says %d, have %d bytes", ErrBadLength, n, len(b))
	}
	return decodeBody(b[HeaderSize:]), nil
}

func checkLength(n int) error {
	if n < HeaderSize || n > MaxFrameSize || (n-HeaderSize)%TileSize != 0 {
		return fmt.Errorf("%w: %d", ErrBadLength, n)
	}
	return nil
}

func decodeBody(p []byte) []TileData {
	out := make([]TileData, 0, len(p)/TileSize)
	for ; len(p) >= TileSize; p = p[TileSize:] {
		out = append(out, TileData{X: p[0], Y: p[1], R: p[2], G: p[3], B: p[4]})
	}
	return out
}

// Reader decodes consecutive frames from a byte stream such as a TCP connection.
type Reader struct {
	r   io.Reader
	hdr [HeaderSize]byte
	buf []byte
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// Next blocks until a whole frame has been read. It returns io.EOF when the
// stream ends cleanly between frames.
func (r *Reader) Next() ([]TileData, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(r.hdr[:]))
	if err := checkLength(n); err != nil {
		return nil, err
	}
	body := n - HeaderSize
	if cap(r.buf) < body {
		r.buf = make([]byte, body)
	}
	r.buf = r.buf[:body]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return decodeBody(r.buf), nil
}

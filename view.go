package serial

import "fmt"

// View is a non-owning window [begin, end) over a Buffer.
type View struct {
	buf        Buffer
	begin, end int
}

// NewView returns the window [begin, end) of buf. Out of range or inverted
// bounds are reported with ErrBounds, never clamped.
func NewView(buf Buffer, begin, end int) (View, error) {
	if begin < 0 || end > len(buf) || begin > end {
		return View{}, fmt.Errorf("%w [%d, %d[ for buffer of size %d", ErrBounds, begin, end, len(buf))
	}
	return View{buf: buf, begin: begin, end: end}, nil
}

// Len returns the number of bytes in the view.
func (v View) Len() int { return v.end - v.begin }

// At returns byte i of the view. It panics when i is out of range.
func (v View) At(i int) byte {
	v.check(i)
	return v.buf[v.begin+i]
}

// Set writes c at index i of the view, which must be lower than Len.
func (v View) Set(i int, c byte) {
	v.check(i)
	v.buf[v.begin+i] = c
}

func (v View) check(i int) {
	if i < 0 || i >= v.Len() {
		panic(fmt.Sprintf("serial: view index %d out of range [0, %d[", i, v.Len()))
	}
}

// Bytes aliases the viewed range; writes go to the owning Buffer.
func (v View) Bytes() []byte {
	return v.buf[v.begin:v.end:v.end]
}

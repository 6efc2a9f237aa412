// Package frame defines the captured video frame and the bounded
// time-ordered buffer the rest of the pipeline reads from.
package frame

// Frame is a single captured image. Pixels is 8-bit grayscale in row-major
// order, Width*Height bytes. A Frame is immutable once captured: the buffer
// owns it and other components only borrow it.
type Frame struct {
	// Timestamp is the capture time in seconds. Timestamps are
	// monotonically non-decreasing within a stream.
	Timestamp float64
	Width     int
	Height    int
	Pixels    []byte
}

// At returns the pixel value at (x, y). Callers are responsible for bounds.
func (f *Frame) At(x, y int) byte {
	return f.Pixels[y*f.Width+x]
}

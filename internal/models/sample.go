package models

import (
	"math"
)

// PixelSample represents one valid sky pixel of a Faraday depth map
type PixelSample struct {
	// RA is the right ascension of the pixel centre in degrees
	RA float64

	// Dec is the declination of the pixel centre in degrees
	Dec float64

	// Value is the Faraday depth in rad/m^2
	Value float64

	// Error is the Faraday depth uncertainty in rad/m^2
	Error float64

	// X and Y are the 0-based column and row of the source pixel
	X, Y int
}

// Valid reports whether the sample carries usable numbers
func (s PixelSample) Valid() bool {
	return !math.IsNaN(s.Value) && !math.IsNaN(s.Error)
}

// Mask marks which pixels of an image grid take part in the computation
type Mask struct {
	// Width and Height are the grid dimensions in pixels
	Width, Height int

	// Valid holds one flag per pixel in row-major order (Valid[y*Width+x])
	Valid []bool
}

// NewMask allocates an all-invalid mask
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Valid:  make([]bool, width*height),
	}
}

// At reports whether pixel (x, y) is valid
func (m *Mask) At(x, y int) bool {
	return m.Valid[y*m.Width+x]
}

// Count returns the number of valid pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Valid {
		if v {
			n++
		}
	}
	return n
}

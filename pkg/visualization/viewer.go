package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
)

// Viewer renders a 2-D sky map, such as a masked Faraday depth map, to a
// greyscale preview for inspecting the mask
type Viewer struct {
	// data holds the map in row-major order, data[y*width+x]
	data []float64

	// dimensions of the map
	width  int
	height int
}

// NewViewer creates a new map viewer
func NewViewer(data []float64, width, height int) *Viewer {
	return &Viewer{
		data:   data,
		width:  width,
		height: height,
	}
}

// Range returns the minimum and maximum of the finite pixels. ok is false
// when the map has no finite pixel.
func (v *Viewer) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, val := range v.data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		lo = math.Min(lo, val)
		hi = math.Max(hi, val)
		ok = true
	}
	return lo, hi, ok
}

// Render stretches the finite pixels linearly over the grey range.
// NaN pixels are black. Row 0 of the map is the bottom of the image, so
// north is up for a standard sky projection.
func (v *Viewer) Render() (image.Image, error) {
	if v.width <= 0 || v.height <= 0 {
		return nil, fmt.Errorf("map dimensions must be positive")
	}
	if len(v.data) != v.width*v.height {
		return nil, fmt.Errorf("map has %d values for %dx%d pixels", len(v.data), v.width, v.height)
	}

	img := image.NewGray16(image.Rect(0, 0, v.width, v.height))
	lo, hi, ok := v.Range()
	if !ok {
		return img, nil
	}
	span := hi - lo

	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			val := v.data[y*v.width+x]
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			// constant maps render mid-grey
			level := 0.5
			if span > 0 {
				level = (val - lo) / span
			}
			// reserve 0 for blanked pixels
			grey := uint16(1 + math.Round(level*65534))
			img.SetGray16(x, v.height-1-y, color.Gray16{Y: grey})
		}
	}
	return img, nil
}

// SaveQuicklook renders the map and writes it as a PNG file
func (v *Viewer) SaveQuicklook(filename string) error {
	img, err := v.Render()
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return err
	}
	return file.Close()
}

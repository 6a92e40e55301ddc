// Package fitsimage reads and writes the 2-D rasters the structure function
// pipeline works on. Higher, degenerate axes (frequency, Stokes) are
// squeezed away on read and restored on write.
package fitsimage

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"rmsf/internal/models"
)

// Image is one plane of a FITS primary HDU converted to float64
type Image struct {
	// Width is the length of NAXIS1, Height the length of NAXIS2
	Width, Height int

	// Data holds the plane in row-major order, Data[y*Width+x].
	// Blanked pixels are NaN.
	Data []float64

	// Cards are the non-structural header cards, WCS keywords included
	Cards []fitsio.Card

	// Axes are the axis lengths written back out (NAXIS1 first)
	Axes []int
}

// New creates an image from plane data and header cards
func New(width, height int, data []float64, cards []fitsio.Card) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Data:   data,
		Cards:  cards,
		Axes:   []int{width, height},
	}
}

// At returns the pixel value at column x, row y
func (im *Image) At(x, y int) float64 {
	return im.Data[y*im.Width+x]
}

// SameShape reports whether two images share the same plane dimensions
func (im *Image) SameShape(o *Image) bool {
	return im.Width == o.Width && im.Height == o.Height
}

// WithData returns a copy of the image metadata holding new plane data
func (im *Image) WithData(data []float64) *Image {
	cp := *im
	cp.Data = data
	return &cp
}

// Header builds a fitsio header for the image, used for keyword lookups
func (im *Image) Header() *fitsio.Header {
	return fitsio.NewHeader(im.Cards, fitsio.IMAGE_HDU, -64, im.Axes)
}

// Read loads the first plane of the primary HDU of a FITS file.
// Format and I/O failures are reported as models.ErrUnreadableFile.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, models.ErrUnreadableFile)
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, models.ErrUnreadableFile)
	}
	defer fits.Close()

	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU is not an image: %w", path, models.ErrUnreadableFile)
	}

	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) < 2 {
		return nil, fmt.Errorf("%s: image has %d axes, need at least 2: %w", path, len(axes), models.ErrUnreadableFile)
	}

	values, err := readPixels(img, hdr.Bitpix())
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, models.ErrUnreadableFile)
	}

	width, height := axes[0], axes[1]
	planeSize := width * height
	if len(values) < planeSize {
		return nil, fmt.Errorf("%s: %d pixels for a %dx%d plane: %w", path, len(values), width, height, models.ErrUnreadableFile)
	}

	im := &Image{
		Width:  width,
		Height: height,
		Data:   values[:planeSize:planeSize],
		Cards:  userCards(hdr),
		Axes:   []int{width, height},
	}

	// Keep degenerate axes so the written masks match the input layout
	degenerate := true
	for _, n := range axes[2:] {
		if n != 1 {
			degenerate = false
		}
	}
	if degenerate {
		im.Axes = append([]int(nil), axes...)
	}

	return im, nil
}

// readPixels reads the raw image in its native type and applies
// BSCALE, BZERO and BLANK. fitsio fills the slices in place, so each one is
// allocated at the full image size first.
func readPixels(img fitsio.Image, bitpix int) (values []float64, err error) {
	defer func() {
		// a truncated data unit makes fitsio panic instead of failing
		if r := recover(); r != nil {
			values, err = nil, fmt.Errorf("corrupt image data: %v", r)
		}
	}()

	hdr := img.Header()
	scale := cardFloat(hdr.Get("BSCALE"), 1)
	zero := cardFloat(hdr.Get("BZERO"), 0)
	blankCard := hdr.Get("BLANK")

	n := 1
	for _, dim := range hdr.Axes() {
		n *= dim
	}

	var ints []int64
	switch bitpix {
	case 8:
		raw := make([]byte, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		ints = make([]int64, len(raw))
		for i, v := range raw {
			ints[i] = int64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		ints = make([]int64, len(raw))
		for i, v := range raw {
			ints[i] = int64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		ints = make([]int64, len(raw))
		for i, v := range raw {
			ints[i] = int64(v)
		}
	case 64:
		ints = make([]int64, n)
		if err := img.Read(&ints); err != nil {
			return nil, err
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		values = make([]float64, len(raw))
		for i, v := range raw {
			values[i] = float64(v)*scale + zero
		}
		return values, nil
	case -64:
		values = make([]float64, n)
		if err := img.Read(&values); err != nil {
			return nil, err
		}
		if scale != 1 || zero != 0 {
			for i, v := range values {
				values[i] = v*scale + zero
			}
		}
		return values, nil
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}

	values = make([]float64, len(ints))
	for i, v := range ints {
		if blankCard != nil && v == int64(cardFloat(blankCard, 0)) {
			values[i] = math.NaN()
			continue
		}
		values[i] = float64(v)*scale + zero
	}
	return values, nil
}

// Write stores the image as a BITPIX -64 primary HDU, copying its cards
func Write(path string, im *Image) error {
	if len(im.Data) != im.Width*im.Height {
		return fmt.Errorf("%s: %d values for a %dx%d plane: %w", path, len(im.Data), im.Width, im.Height, models.ErrShapeMismatch)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		return fmt.Errorf("error creating FITS stream %s: %w", path, err)
	}

	axes := im.Axes
	if len(axes) < 2 {
		axes = []int{im.Width, im.Height}
	}
	hdu := fitsio.NewImage(-64, axes)
	defer hdu.Close()

	if err := hdu.Header().Append(im.Cards...); err != nil {
		return fmt.Errorf("error copying header to %s: %w", path, err)
	}
	if err := hdu.Write(im.Data); err != nil {
		return fmt.Errorf("error writing pixels to %s: %w", path, err)
	}
	if err := fits.Write(hdu); err != nil {
		return fmt.Errorf("error writing HDU to %s: %w", path, err)
	}
	if err := fits.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return f.Close()
}

// userCards drops the structural keywords fitsio regenerates on write
func userCards(hdr *fitsio.Header) []fitsio.Card {
	var cards []fitsio.Card
	for _, key := range hdr.Keys() {
		if structural(key) {
			continue
		}
		if c := hdr.Get(key); c != nil {
			cards = append(cards, *c)
		}
	}
	return cards
}

func structural(key string) bool {
	switch key {
	case "", "SIMPLE", "XTENSION", "BITPIX", "NAXIS", "EXTEND", "PCOUNT", "GCOUNT",
		"END", "BSCALE", "BZERO", "BLANK", "COMMENT", "HISTORY":
		return true
	}
	return strings.HasPrefix(key, "NAXIS")
}

// cardFloat returns the numeric value of a card, or def when it is absent
func cardFloat(c *fitsio.Card, def float64) float64 {
	if c == nil {
		return def
	}
	switch v := c.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	}
	return def
}

// Package extraction turns the valid pixels of a masked Faraday depth map
// into sky samples and reads and writes the pixel table.
package extraction

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"rmsf/internal/models"
	"rmsf/pkg/fitsimage"
	"rmsf/pkg/wcs"
)

// WrapRule is the per-dataset right ascension normalization. WSRT maps
// centred near 0h are shifted by a full turn so RA stays continuous.
type WrapRule struct {
	// Enabled turns the rule on
	Enabled bool

	// Below is the RA limit in degrees; smaller values get 360 added
	Below float64
}

// Apply returns the normalized right ascension in degrees
func (w WrapRule) Apply(ra float64) float64 {
	if w.Enabled && ra < w.Below {
		return ra + 360
	}
	return ra
}

// Result holds the extracted samples
type Result struct {
	// Samples has one entry per valid pixel, in row-major pixel order
	Samples []models.PixelSample

	// Skipped counts valid pixels outside the projection domain
	Skipped int
}

// Extract converts every valid pixel to a PixelSample. Pixels are visited
// row by row; x is the column along NAXIS1 and y the row along NAXIS2.
func Extract(fd, errMap *fitsimage.Image, m *models.Mask, transform *wcs.WCS, wrap WrapRule) (*Result, error) {
	if fd == nil || errMap == nil || m == nil || transform == nil {
		return nil, fmt.Errorf("extraction needs maps, mask and WCS: %w", models.ErrMissingInput)
	}
	if !fd.SameShape(errMap) || m.Width != fd.Width || m.Height != fd.Height {
		return nil, fmt.Errorf("mask %dx%d does not match map %dx%d: %w",
			m.Width, m.Height, fd.Width, fd.Height, models.ErrShapeMismatch)
	}

	res := &Result{Samples: make([]models.PixelSample, 0, m.Count())}
	for y := 0; y < fd.Height; y++ {
		for x := 0; x < fd.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			value, sigma := fd.At(x, y), errMap.At(x, y)
			if math.IsNaN(value) || math.IsNaN(sigma) {
				continue
			}

			ra, dec, err := transform.PixelToSky(float64(x), float64(y))
			if errors.Is(err, wcs.ErrOutOfDomain) {
				res.Skipped++
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("pixel (%d,%d): %w", x, y, err)
			}

			res.Samples = append(res.Samples, models.PixelSample{
				RA:    wrap.Apply(ra.Deg()),
				Dec:   dec.Deg(),
				Value: value,
				Error: sigma,
				X:     x,
				Y:     y,
			})
		}
	}
	return res, nil
}

// WritePixelList writes one "RA Dec value error" line per sample
func WritePixelList(w io.Writer, samples []models.PixelSample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if _, err := fmt.Fprintf(bw, "%.5f %.5f %.5f %.5f\n", s.RA, s.Dec, s.Value, s.Error); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadPixelList parses a table written by WritePixelList. Blank lines and
// lines starting with '#' are ignored. Pixel indices are not stored in the
// table and come back as -1.
func ReadPixelList(r io.Reader) ([]models.PixelSample, error) {
	var samples []models.PixelSample
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: want 4 columns, got %d: %w", line, len(fields), models.ErrUnreadableFile)
		}
		var v [4]float64
		for i := range v {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v: %w", line, err, models.ErrUnreadableFile)
			}
			v[i] = f
		}
		s := models.PixelSample{RA: v[0], Dec: v[1], Value: v[2], Error: v[3], X: -1, Y: -1}
		if !s.Valid() {
			continue
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrUnreadableFile)
	}
	return samples, nil
}

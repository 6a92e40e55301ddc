// Package mask selects the pixels of a Faraday depth map that take part in
// the structure function.
package mask

import (
	"fmt"
	"math"

	"rmsf/internal/models"
	"rmsf/pkg/fitsimage"
)

// Result holds the mask and the masked copies of the input maps
type Result struct {
	// Mask flags every valid pixel
	Mask *models.Mask

	// FaradayDepth and Error are copies of the inputs with every invalid
	// pixel set to NaN
	FaradayDepth *fitsimage.Image
	Error        *fitsimage.Image

	// Thresholded reports whether the intensity threshold was applied
	Thresholded bool

	// Valid is the number of valid pixels
	Valid int
}

// Build computes the validity mask of a Faraday depth map.
//
// A pixel is valid when its Faraday depth and error are not NaN and, when
// both intensity and threshold are given, its intensity is at least the
// threshold. If only one of intensity and threshold is given the threshold
// mask is skipped.
func Build(fd, errMap, intensity *fitsimage.Image, threshold *float64) (*Result, error) {
	if fd == nil {
		return nil, fmt.Errorf("faraday depth map not supplied: %w", models.ErrMissingInput)
	}
	if errMap == nil {
		return nil, fmt.Errorf("RM error map not supplied: %w", models.ErrMissingInput)
	}
	if !fd.SameShape(errMap) {
		return nil, fmt.Errorf("error map is %dx%d, faraday depth map is %dx%d: %w",
			errMap.Width, errMap.Height, fd.Width, fd.Height, models.ErrShapeMismatch)
	}

	useThreshold := intensity != nil && threshold != nil
	if useThreshold && !fd.SameShape(intensity) {
		return nil, fmt.Errorf("intensity map is %dx%d, faraday depth map is %dx%d: %w",
			intensity.Width, intensity.Height, fd.Width, fd.Height, models.ErrShapeMismatch)
	}

	m := models.NewMask(fd.Width, fd.Height)
	maskedFD := make([]float64, len(fd.Data))
	maskedErr := make([]float64, len(errMap.Data))
	valid := 0

	for y := 0; y < fd.Height; y++ {
		for x := 0; x < fd.Width; x++ {
			idx := y*fd.Width + x
			ok := !math.IsNaN(fd.Data[idx]) && !math.IsNaN(errMap.Data[idx])
			// NaN intensity fails the comparison as well
			if ok && useThreshold && !(intensity.Data[idx] >= *threshold) {
				ok = false
			}

			if ok {
				m.Valid[idx] = true
				maskedFD[idx] = fd.Data[idx]
				maskedErr[idx] = errMap.Data[idx]
				valid++
			} else {
				maskedFD[idx] = math.NaN()
				maskedErr[idx] = math.NaN()
			}
		}
	}

	if valid == 0 {
		return nil, fmt.Errorf("no valid pixels out of %d: %w", fd.Width*fd.Height, models.ErrEmptyInput)
	}

	return &Result{
		Mask:         m,
		FaradayDepth: fd.WithData(maskedFD),
		Error:        errMap.WithData(maskedErr),
		Thresholded:  useThreshold,
		Valid:        valid,
	}, nil
}

// Fraction returns the share of valid pixels in the grid
func (r *Result) Fraction() float64 {
	total := r.Mask.Width * r.Mask.Height
	if total == 0 {
		return 0
	}
	return float64(r.Valid) / float64(total)
}

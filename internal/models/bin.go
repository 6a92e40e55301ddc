package models

import (
	"math"
)

// NoiseCorrection selects how the noise term of a bin is applied
type NoiseCorrection int

const (
	// NoCorrection uses the raw statistic
	NoCorrection NoiseCorrection = iota

	// SubtractNoise subtracts the mean noise term from the statistic
	SubtractNoise
)

// Bin is one fixed-width angular separation bin of a structure function.
// A bin covers the half-open interval (Lower, Upper].
type Bin struct {
	// Lower and Upper are the bin edges, in the binning scale
	Lower, Upper float64

	// Center is the bin midpoint
	Center float64

	// Statistic is the mean pair statistic, NaN when the bin is empty
	Statistic float64

	// Noise is the mean pair noise term, NaN when the bin is empty
	Noise float64

	// Pairs is the number of sample pairs accumulated in the bin
	Pairs int64
}

// Empty reports whether no pair fell in the bin
func (b Bin) Empty() bool {
	return b.Pairs == 0
}

// Corrected returns the statistic after the requested noise correction
func (b Bin) Corrected(mode NoiseCorrection) float64 {
	if mode == SubtractNoise {
		return b.Statistic - b.Noise
	}
	return b.Statistic
}

// LogValue returns log10 of the corrected statistic. Non-positive and
// undefined values give NaN.
func (b Bin) LogValue(mode NoiseCorrection) float64 {
	v := b.Corrected(mode)
	if math.IsNaN(v) || v <= 0 {
		return math.NaN()
	}
	return math.Log10(v)
}

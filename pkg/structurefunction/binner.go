// Package structurefunction bins every pair of Faraday depth samples by
// angular separation and averages a value-difference statistic per bin.
//
// The pair loop is exact and O(N²). It is spread over worker goroutines that
// each own a set of partial bins; partial bins are merged in worker order so
// the same input and worker count always give bit-identical results.
package structurefunction

import (
	"fmt"
	"math"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"rmsf/internal/models"
)

// Scale is the axis separations are binned on
type Scale int

const (
	// Linear bins separations in degrees
	Linear Scale = iota

	// Log10 bins log10 of the separation in degrees
	Log10
)

func (s Scale) String() string {
	if s == Log10 {
		return "log10"
	}
	return "linear"
}

// Policy selects the statistic accumulated for a pair
type Policy int

const (
	// Squared accumulates (a-b)², with noise term σa²+σb²
	Squared Policy = iota

	// Absolute accumulates |a-b|, with noise term sqrt(σa²+σb²)
	Absolute

	// Difference accumulates the signed a-b in sample order, noise term 0
	Difference
)

func (p Policy) String() string {
	switch p {
	case Absolute:
		return "absolute"
	case Difference:
		return "difference"
	}
	return "squared"
}

// edgeTolerance is the fraction of a bin width within which a separation
// counts as lying on a bin edge
const edgeTolerance = 1e-9

// Params configures a structure function computation
type Params struct {
	// Start is the lower edge of the first bin
	Start float64

	// Count is the number of bins
	Count int

	// Width is the bin width
	Width float64

	// Scale is the axis the bins are laid out on
	Scale Scale

	// Policy is the pair statistic
	Policy Policy

	// NumWorkers is the number of goroutines sharing the pair loop
	NumWorkers int
}

// Validate checks the bin layout
func (p Params) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("bin count %d must be positive: %w", p.Count, models.ErrInvalidParameter)
	}
	if !(p.Width > 0) || math.IsInf(p.Width, 0) {
		return fmt.Errorf("bin width %g must be positive: %w", p.Width, models.ErrInvalidParameter)
	}
	if math.IsNaN(p.Start) || math.IsInf(p.Start, 0) {
		return fmt.Errorf("bin start %g must be finite: %w", p.Start, models.ErrInvalidParameter)
	}
	return nil
}

// Bins returns the empty bin layout. Edges are computed from the bin index
// so neighbouring bins share exactly the same edge value.
func (p Params) Bins() []models.Bin {
	bins := make([]models.Bin, p.Count)
	for k := range bins {
		lower := p.Start + float64(k)*p.Width
		upper := p.Start + float64(k+1)*p.Width
		bins[k] = models.Bin{
			Lower:     lower,
			Upper:     upper,
			Center:    lower + p.Width/2,
			Statistic: math.NaN(),
			Noise:     math.NaN(),
		}
	}
	return bins
}

// Index returns the bin holding coordinate v of the binning scale, or -1.
// Bins are (lower, upper]; a value on an edge goes to the lower bin.
func (p Params) Index(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	u := (v - p.Start) / p.Width
	if r := math.Round(u); math.Abs(u-r) < edgeTolerance {
		u = r
	}
	if u <= 0 || u > float64(p.Count) {
		return -1
	}
	return int(math.Ceil(u)) - 1
}

// coordinate maps a separation in degrees onto the binning scale
func (p Params) coordinate(sepDeg float64) float64 {
	if p.Scale == Log10 {
		return math.Log10(sepDeg)
	}
	return sepDeg
}

// Result is a computed structure function
type Result struct {
	// Bins holds one entry per bin, empty bins included
	Bins []models.Bin

	// Params are the parameters the result was computed with
	Params Params

	// Pairs is the number of pairs formed, N(N-1)/2
	Pairs int64

	// Binned is the number of pairs that fell in a bin
	Binned int64

	// MinSeparation and MaxSeparation bound the pair separations, degrees
	MinSeparation, MaxSeparation float64
}

// partial is one worker's accumulator
type partial struct {
	sum, noise []float64
	count      []float64
	binned     int64
	minSep     float64
	maxSep     float64
}

func newPartial(n int) *partial {
	return &partial{
		sum:    make([]float64, n),
		noise:  make([]float64, n),
		count:  make([]float64, n),
		minSep: math.Inf(1),
		maxSep: math.Inf(-1),
	}
}

// point is a sample with its trigonometry-ready angles
type point struct {
	ra, dec unit.Angle
	value   float64
	sigma   float64
}

// Compute bins every unordered pair of samples. At least two samples are
// required.
func Compute(samples []models.PixelSample, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("need at least 2 samples to form a pair, got %d: %w", len(samples), models.ErrEmptyInput)
	}

	points := make([]point, len(samples))
	for i, s := range samples {
		if !s.Valid() {
			return nil, fmt.Errorf("sample %d has NaN value or error: %w", i, models.ErrInvalidParameter)
		}
		points[i] = point{
			ra:    unit.AngleFromDeg(s.RA),
			dec:   unit.AngleFromDeg(s.Dec),
			value: s.Value,
			sigma: s.Error,
		}
	}

	workers := p.NumWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(points)-1 {
		workers = len(points) - 1
	}

	partials := make([]*partial, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		partials[w] = newPartial(p.Count)
		g.Go(func() error {
			accumulate(points, p, w, workers, partials[w])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// merge in worker order
	total := newPartial(p.Count)
	for _, part := range partials {
		floats.Add(total.sum, part.sum)
		floats.Add(total.noise, part.noise)
		floats.Add(total.count, part.count)
		total.binned += part.binned
		total.minSep = math.Min(total.minSep, part.minSep)
		total.maxSep = math.Max(total.maxSep, part.maxSep)
	}

	bins := p.Bins()
	for k := range bins {
		n := total.count[k]
		bins[k].Pairs = int64(n)
		if n == 0 {
			continue
		}
		bins[k].Statistic = total.sum[k] / n
		bins[k].Noise = total.noise[k] / n
	}

	n := int64(len(points))
	return &Result{
		Bins:          bins,
		Params:        p,
		Pairs:         n * (n - 1) / 2,
		Binned:        total.binned,
		MinSeparation: total.minSep,
		MaxSeparation: total.maxSep,
	}, nil
}

// accumulate visits the pairs (i, j>i) for every i ≡ worker (mod workers).
// Interleaving the outer index balances the triangular loop.
func accumulate(points []point, p Params, worker, workers int, acc *partial) {
	for i := worker; i < len(points); i += workers {
		a := points[i]
		for j := i + 1; j < len(points); j++ {
			b := points[j]
			sep := angle.SepHav(a.ra, a.dec, b.ra, b.dec).Deg()
			if sep < acc.minSep {
				acc.minSep = sep
			}
			if sep > acc.maxSep {
				acc.maxSep = sep
			}

			k := p.Index(p.coordinate(sep))
			if k < 0 {
				continue
			}
			stat, noise := pairStatistic(p.Policy, a, b)
			if math.IsNaN(stat) || math.IsInf(stat, 0) || math.IsNaN(noise) || math.IsInf(noise, 0) {
				continue
			}
			acc.sum[k] += stat
			acc.noise[k] += noise
			acc.count[k]++
			acc.binned++
		}
	}
}

func pairStatistic(policy Policy, a, b point) (stat, noise float64) {
	d := a.value - b.value
	variance := a.sigma*a.sigma + b.sigma*b.sigma
	switch policy {
	case Absolute:
		return math.Abs(d), math.Sqrt(variance)
	case Difference:
		return d, 0
	}
	return d * d, variance
}

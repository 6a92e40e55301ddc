package structurefunction

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmsf/internal/models"
)

func squareSamples(value float64) []models.PixelSample {
	return []models.PixelSample{
		{RA: 0, Dec: 0, Value: value, Error: 0.1},
		{RA: 1, Dec: 0, Value: value, Error: 0.1},
		{RA: 0, Dec: 1, Value: value, Error: 0.1},
		{RA: 1, Dec: 1, Value: value, Error: 0.1},
	}
}

// createTestSamples lays out a grid of samples with a smooth gradient
func createTestSamples(nx, ny int) []models.PixelSample {
	samples := make([]models.PixelSample, 0, nx*ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			samples = append(samples, models.PixelSample{
				RA:    150 + 0.05*float64(x),
				Dec:   2 + 0.05*float64(y),
				Value: 3*float64(x) - 2*float64(y) + math.Sin(float64(x*y)),
				Error: 0.5 + 0.01*float64(x),
				X:     x,
				Y:     y,
			})
		}
	}
	return samples
}

// TestSquareScenario checks the unit square: four side pairs at 1 degree,
// two diagonals at sqrt(2) degrees
func TestSquareScenario(t *testing.T) {
	res, err := Compute(squareSamples(4.2), Params{Start: 0, Count: 2, Width: 1, Scale: Linear})
	require.NoError(t, err)
	require.Len(t, res.Bins, 2)

	assert.Equal(t, int64(4), res.Bins[0].Pairs)
	assert.Equal(t, int64(2), res.Bins[1].Pairs)
	assert.Equal(t, 0.0, res.Bins[0].Statistic)
	assert.Equal(t, 0.0, res.Bins[1].Statistic)
	assert.Equal(t, int64(6), res.Pairs)
	assert.Equal(t, int64(6), res.Binned)
	assert.InDelta(t, math.Sqrt2, res.MaxSeparation, 1e-3)
}

// TestBinsContiguous verifies bins share their edges exactly
func TestBinsContiguous(t *testing.T) {
	for _, p := range []Params{
		{Start: -2.5, Count: 20, Width: 0.1},
		{Start: 0, Count: 7, Width: 0.3},
		{Start: 1e-3, Count: 50, Width: 1.0 / 3},
	} {
		bins := p.Bins()
		require.Len(t, bins, p.Count)
		for k := 0; k+1 < len(bins); k++ {
			assert.Equal(t, bins[k].Upper, bins[k+1].Lower)
			assert.Less(t, bins[k].Lower, bins[k].Upper)
		}
		assert.Equal(t, p.Start, bins[0].Lower)
	}
}

// TestIndexBoundaries verifies the (lower, upper] convention
func TestIndexBoundaries(t *testing.T) {
	p := Params{Start: 0, Count: 3, Width: 1}

	tests := []struct {
		v    float64
		want int
	}{
		{0, -1},
		{0.5, 0},
		{1, 0},
		{1 + 1e-14, 0},
		{1 - 1e-14, 0},
		{1.0001, 1},
		{2, 1},
		{3, 2},
		{3.0001, -1},
		{-1, -1},
		{math.NaN(), -1},
		{math.Inf(1), -1},
		{1e300, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Index(tt.v), "value %v", tt.v)
	}

	// every edge belongs to exactly one bin
	bins := p.Bins()
	for k, b := range bins {
		hits := 0
		for j := range bins {
			if p.Index(b.Upper) == j {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "edge of bin %d", k)
	}
}

// TestStatisticPolicies verifies the pair statistic for each policy
func TestStatisticPolicies(t *testing.T) {
	samples := []models.PixelSample{
		{RA: 10, Dec: 0, Value: 5, Error: 3},
		{RA: 10.5, Dec: 0, Value: 2, Error: 4},
	}

	tests := []struct {
		policy      Policy
		stat, noise float64
	}{
		{Squared, 9, 25},
		{Absolute, 3, 5},
		{Difference, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			res, err := Compute(samples, Params{Start: 0, Count: 1, Width: 1, Policy: tt.policy})
			require.NoError(t, err)
			assert.InDelta(t, tt.stat, res.Bins[0].Statistic, 1e-12)
			assert.InDelta(t, tt.noise, res.Bins[0].Noise, 1e-12)
		})
	}
}

// TestEmptyBinsAreNaN verifies empty bins are kept and marked
func TestEmptyBinsAreNaN(t *testing.T) {
	res, err := Compute(squareSamples(1), Params{Start: 0, Count: 4, Width: 1})
	require.NoError(t, err)
	require.Len(t, res.Bins, 4)

	for _, b := range res.Bins[2:] {
		assert.True(t, b.Empty())
		assert.True(t, math.IsNaN(b.Statistic))
		assert.True(t, math.IsNaN(b.LogValue(models.NoCorrection)))
	}
}

// TestLogScale verifies binning on log10 of the separation
func TestLogScale(t *testing.T) {
	samples := []models.PixelSample{
		{RA: 0, Dec: 0, Value: 0, Error: 0},
		{RA: 0, Dec: 0.01, Value: 1, Error: 0},
		{RA: 0, Dec: 1, Value: 3, Error: 0},
	}
	// log10 separations: -2, ~-0.0044, 0
	res, err := Compute(samples, Params{Start: -2.5, Count: 3, Width: 1, Scale: Log10})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Bins[0].Pairs)
	assert.Equal(t, int64(2), res.Bins[2].Pairs)
	assert.Equal(t, int64(0), res.Bins[1].Pairs)
	assert.InDelta(t, 1, res.Bins[0].Statistic, 1e-12)
	assert.InDelta(t, (9.0+4.0)/2, res.Bins[2].Statistic, 1e-12)
}

// TestOutOfRangePairsExcluded verifies pairs beyond the bins are not counted
func TestOutOfRangePairsExcluded(t *testing.T) {
	res, err := Compute(squareSamples(0), Params{Start: 0, Count: 1, Width: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Binned)
	assert.Equal(t, int64(6), res.Pairs)
}

// TestIdempotent verifies repeated runs give identical bins
func TestIdempotent(t *testing.T) {
	samples := createTestSamples(12, 9)
	p := Params{Start: -2, Count: 15, Width: 0.1, Scale: Log10, NumWorkers: 4}

	first, err := Compute(samples, p)
	require.NoError(t, err)
	second, err := Compute(samples, p)
	require.NoError(t, err)

	for k := range first.Bins {
		a, b := first.Bins[k], second.Bins[k]
		assert.Equal(t, a.Pairs, b.Pairs)
		if a.Empty() {
			continue
		}
		assert.Equal(t, a.Statistic, b.Statistic)
		assert.Equal(t, a.Noise, b.Noise)
	}
}

// TestWorkersAgree verifies partitioning does not change the result
func TestWorkersAgree(t *testing.T) {
	samples := createTestSamples(10, 10)
	p := Params{Start: 0, Count: 10, Width: 0.07}

	p.NumWorkers = 1
	serial, err := Compute(samples, p)
	require.NoError(t, err)

	for _, workers := range []int{2, 3, 8, 1000} {
		p.NumWorkers = workers
		parallel, err := Compute(samples, p)
		require.NoError(t, err)
		assert.Equal(t, serial.Binned, parallel.Binned)
		for k := range serial.Bins {
			assert.Equal(t, serial.Bins[k].Pairs, parallel.Bins[k].Pairs)
			if !serial.Bins[k].Empty() {
				assert.InDelta(t, serial.Bins[k].Statistic, parallel.Bins[k].Statistic, 1e-9)
			}
		}
	}
}

// TestComputeErrors covers rejected input
func TestComputeErrors(t *testing.T) {
	one := squareSamples(1)[:1]
	_, err := Compute(one, Params{Start: 0, Count: 1, Width: 1})
	assert.True(t, errors.Is(err, models.ErrEmptyInput))

	_, err = Compute(nil, Params{Start: 0, Count: 1, Width: 1})
	assert.True(t, errors.Is(err, models.ErrEmptyInput))

	_, err = Compute(squareSamples(1), Params{Start: 0, Count: 0, Width: 1})
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))

	_, err = Compute(squareSamples(1), Params{Start: 0, Count: 2, Width: 0})
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))

	bad := squareSamples(1)
	bad[2].Error = math.NaN()
	_, err = Compute(bad, Params{Start: 0, Count: 2, Width: 1})
	assert.True(t, errors.Is(err, models.ErrInvalidParameter))
}

// TestNoiseCorrection verifies correction and the NaN log for non-positive values
func TestNoiseCorrection(t *testing.T) {
	b := models.Bin{Statistic: 10, Noise: 4, Pairs: 3}
	assert.Equal(t, 6.0, b.Corrected(models.SubtractNoise))
	assert.Equal(t, 10.0, b.Corrected(models.NoCorrection))
	assert.InDelta(t, math.Log10(6), b.LogValue(models.SubtractNoise), 1e-12)

	b.Noise = 10
	assert.True(t, math.IsNaN(b.LogValue(models.SubtractNoise)))
	b.Noise = 12
	assert.True(t, math.IsNaN(b.LogValue(models.SubtractNoise)))
	assert.InDelta(t, 1, b.LogValue(models.NoCorrection), 1e-12)
}

// TestTableRoundTrip verifies the bin table reads back
func TestTableRoundTrip(t *testing.T) {
	res, err := Compute(squareSamples(2), Params{Start: 0, Count: 3, Width: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, res))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "0.500000 0.000000 0.020000 4", lines[0])
	assert.Equal(t, "2.500000 NaN NaN 0", lines[2])

	bins, err := ReadTable(&buf)
	require.NoError(t, err)
	require.Len(t, bins, 3)
	assert.Equal(t, int64(2), bins[1].Pairs)
	assert.InDelta(t, 1.0, bins[1].Lower, 1e-12)
	assert.True(t, math.IsNaN(bins[2].Statistic))
}

// TestReadReference verifies parsing of a reference curve
func TestReadReference(t *testing.T) {
	pts, err := ReadReference(strings.NewReader("0.01 120 20\n# comment\n0.1 300 20\n"))
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 100.0, pts[0].Corrected(models.SubtractNoise))
	assert.InDelta(t, math.Log10(280), pts[1].LogValue(models.SubtractNoise), 1e-12)

	_, err = ReadReference(strings.NewReader("0.01 120\n"))
	assert.True(t, errors.Is(err, models.ErrUnreadableFile))
}

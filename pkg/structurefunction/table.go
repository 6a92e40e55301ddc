package structurefunction

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"rmsf/internal/models"
)

// WriteTable writes one "center statistic noise pairs" line per bin.
// Empty bins are written with NaN statistics.
func WriteTable(w io.Writer, res *Result) error {
	bw := bufio.NewWriter(w)
	for _, b := range res.Bins {
		if _, err := fmt.Fprintf(bw, "%f %f %f %d\n", b.Center, b.Statistic, b.Noise, b.Pairs); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadTable parses a table written by WriteTable. Bin edges are rebuilt
// around each centre from the spacing of the first two rows.
func ReadTable(r io.Reader) ([]models.Bin, error) {
	rows, err := readColumns(r, 4)
	if err != nil {
		return nil, err
	}
	bins := make([]models.Bin, len(rows))
	half := 0.0
	if len(rows) > 1 {
		half = (rows[1][0] - rows[0][0]) / 2
	}
	for i, row := range rows {
		bins[i] = models.Bin{
			Lower:     row[0] - half,
			Upper:     row[0] + half,
			Center:    row[0],
			Statistic: row[1],
			Noise:     row[2],
			Pairs:     int64(row[3]),
		}
	}
	return bins, nil
}

// ReferencePoint is one point of an externally computed structure function
type ReferencePoint struct {
	// Distance is the angular separation in degrees
	Distance float64

	// Statistic and Noise are the raw structure function and its noise term
	Statistic, Noise float64
}

// ReadReference parses a three column "distance statistic noise" curve
func ReadReference(r io.Reader) ([]ReferencePoint, error) {
	rows, err := readColumns(r, 3)
	if err != nil {
		return nil, err
	}
	points := make([]ReferencePoint, len(rows))
	for i, row := range rows {
		points[i] = ReferencePoint{Distance: row[0], Statistic: row[1], Noise: row[2]}
	}
	return points, nil
}

// Corrected returns the reference statistic after the noise correction
func (rp ReferencePoint) Corrected(mode models.NoiseCorrection) float64 {
	if mode == models.SubtractNoise {
		return rp.Statistic - rp.Noise
	}
	return rp.Statistic
}

// LogValue is log10 of the corrected reference statistic, NaN when undefined
func (rp ReferencePoint) LogValue(mode models.NoiseCorrection) float64 {
	v := rp.Corrected(mode)
	if math.IsNaN(v) || v <= 0 {
		return math.NaN()
	}
	return math.Log10(v)
}

func readColumns(r io.Reader, n int) ([][]float64, error) {
	var rows [][]float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < n {
			return nil, fmt.Errorf("line %d: want %d columns, got %d: %w", line, n, len(fields), models.ErrUnreadableFile)
		}
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v: %w", line, err, models.ErrUnreadableFile)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrUnreadableFile)
	}
	return rows, nil
}

// Package visualization draws the structure function and map previews.
package visualization

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"rmsf/internal/models"
	"rmsf/pkg/structurefunction"
)

// Axis labels of the structure function plot
const (
	XLabel = "Angular distance (deg)"
	YLabel = "Structure function"
)

// PlotOptions controls the structure function plot
type PlotOptions struct {
	// Title is drawn above the plot
	Title string

	// Correction is applied to the statistic before taking log10
	Correction models.NoiseCorrection

	// Reference is an optional curve drawn for comparison
	Reference []structurefunction.ReferencePoint

	// Width and Height of the image; zero selects 6x4 inches
	Width, Height vg.Length
}

// Points returns bin centre against log10 of the corrected statistic.
// Bins with an undefined value are left out.
func Points(bins []models.Bin, mode models.NoiseCorrection) plotter.XYs {
	pts := make(plotter.XYs, 0, len(bins))
	for _, b := range bins {
		y := b.LogValue(mode)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: b.Center, Y: y})
	}
	return pts
}

// ReferencePoints converts a reference curve to the binning scale of the
// result. Points with an undefined coordinate are left out.
func ReferencePoints(ref []structurefunction.ReferencePoint, scale structurefunction.Scale, mode models.NoiseCorrection) plotter.XYs {
	pts := make(plotter.XYs, 0, len(ref))
	for _, rp := range ref {
		x := rp.Distance
		if scale == structurefunction.Log10 {
			if x <= 0 {
				continue
			}
			x = math.Log10(x)
		}
		y := rp.LogValue(mode)
		if math.IsNaN(y) || math.IsNaN(x) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}

// PlotStructureFunction writes the structure function plot. The image format
// follows the file extension (png, svg, pdf, ...).
func PlotStructureFunction(filename string, res *structurefunction.Result, opts PlotOptions) error {
	if res == nil {
		return fmt.Errorf("no structure function to plot")
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = XLabel
	p.Y.Label.Text = YLabel
	p.Add(plotter.NewGrid())

	if pts := Points(res.Bins, opts.Correction); len(pts) > 0 {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("error creating scatter: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add("rmsf", s)
	}

	if pts := ReferencePoints(opts.Reference, res.Params.Scale, opts.Correction); len(pts) > 0 {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("error creating reference scatter: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add("reference", s)
	}
	p.Legend.Top = true

	width, height := opts.Width, opts.Height
	if width == 0 {
		width = 6 * vg.Inch
	}
	if height == 0 {
		height = 4 * vg.Inch
	}
	if err := p.Save(width, height, filename); err != nil {
		return fmt.Errorf("error saving plot %s: %w", filename, err)
	}
	return nil
}

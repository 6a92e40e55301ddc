// Package pipeline runs the rotation measure structure function reduction
// from input maps to plot.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/stat"

	"rmsf/internal/models"
	"rmsf/pkg/config"
	"rmsf/pkg/extraction"
	"rmsf/pkg/fitsimage"
	"rmsf/pkg/mask"
	"rmsf/pkg/structurefunction"
	"rmsf/pkg/visualization"
	"rmsf/pkg/wcs"
)

// Pipeline handles one structure function run.
//
// The run consists of these steps:
// 1. Loading the Faraday depth, error and optional intensity maps
// 2. Building the pixel mask and writing the masked maps
// 3. Converting valid pixels to sky samples and writing the pixel table
// 4. Binning all sample pairs by angular separation
// 5. Writing the bin table and the plot
type Pipeline struct {
	// cfg is the validated run configuration
	cfg *config.Config

	// input maps
	fd, errMap, intensity *fitsimage.Image

	// mask is the mask builder output
	mask *mask.Result

	// samples are the extracted sky samples
	samples []models.PixelSample

	// result is the binned structure function
	result *structurefunction.Result
}

// NewPipeline creates a pipeline for a configuration. The configuration is
// validated when Process starts.
func NewPipeline(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Process runs the complete pipeline
func (p *Pipeline) Process() error {
	start := time.Now()
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if p.cfg.Input.PixelList != "" {
		// re-bin an existing pixel table
		p.logf("Step 1: Reading pixel table %s...", p.cfg.Input.PixelList)
		if err := p.loadPixelList(); err != nil {
			return err
		}
	} else {
		p.logf("Step 1: Loading input maps...")
		if err := p.loadMaps(); err != nil {
			return err
		}

		p.logf("Step 2: Building pixel mask...")
		if err := p.buildMask(); err != nil {
			return err
		}

		p.logf("Step 3: Converting valid pixels to sky coordinates...")
		if err := p.extractSamples(); err != nil {
			return err
		}
	}

	p.logf("Step 4: Binning %d sample pairs...", int64(len(p.samples))*int64(len(p.samples)-1)/2)
	if err := p.bin(); err != nil {
		return err
	}

	p.logf("Step 5: Writing structure function...")
	if err := p.writeOutputs(); err != nil {
		return err
	}

	p.logf("Processing time: %.2f minutes", time.Since(start).Minutes())
	return nil
}

// Samples returns the extracted sky samples
func (p *Pipeline) Samples() []models.PixelSample {
	return p.samples
}

// Result returns the binned structure function, nil before Process
func (p *Pipeline) Result() *structurefunction.Result {
	return p.result
}

// Mask returns the mask builder output, nil when binning a pixel table
func (p *Pipeline) Mask() *mask.Result {
	return p.mask
}

func (p *Pipeline) loadMaps() error {
	var err error
	if p.fd, err = fitsimage.Read(p.cfg.Input.FaradayDepth); err != nil {
		return fmt.Errorf("unable to read the Faraday depth map: %w", err)
	}
	if p.errMap, err = fitsimage.Read(p.cfg.Input.Error); err != nil {
		return fmt.Errorf("unable to read the RM error map: %w", err)
	}
	if p.cfg.UsesThresholdMask() {
		if p.intensity, err = fitsimage.Read(p.cfg.Input.PolarizedIntensity); err != nil {
			return fmt.Errorf("unable to read the polarized intensity map: %w", err)
		}
	}
	p.logf("INFO: Loaded %dx%d maps", p.fd.Width, p.fd.Height)
	return nil
}

func (p *Pipeline) buildMask() error {
	if !p.cfg.UsesThresholdMask() {
		p.logf("INFO: A valid mask was not specified.")
		p.logf("INFO: All pixels will be included for computing structure function.")
	}

	var err error
	p.mask, err = mask.Build(p.fd, p.errMap, p.intensity, p.cfg.Input.Threshold)
	if err != nil {
		return fmt.Errorf("failed to build mask: %w", err)
	}
	p.logf("INFO: Selected %d of %d pixels", p.mask.Valid, p.fd.Width*p.fd.Height)

	if p.mask.Thresholded {
		p.logf("INFO: Writing out the masked maps to disk")
		if err := fitsimage.Write(p.cfg.OutputPath(p.cfg.Output.MaskedImage), p.mask.FaradayDepth); err != nil {
			return fmt.Errorf("failed to write masked map: %w", err)
		}
		if err := fitsimage.Write(p.cfg.OutputPath(p.cfg.Output.MaskedError), p.mask.Error); err != nil {
			return fmt.Errorf("failed to write masked error map: %w", err)
		}
	}

	if path := p.cfg.OutputPath(p.cfg.Output.Quicklook); path != "" {
		viewer := visualization.NewViewer(p.mask.FaradayDepth.Data, p.fd.Width, p.fd.Height)
		if err := viewer.SaveQuicklook(path); err != nil {
			fmt.Printf("Warning: Failed to save quicklook: %v\n", err)
		}
	}
	return nil
}

func (p *Pipeline) extractSamples() error {
	transform, err := wcs.FromHeader(p.fd.Header())
	if err != nil {
		return fmt.Errorf("%s: %v: %w", p.cfg.Input.FaradayDepth, err, models.ErrUnreadableFile)
	}

	wrap := extraction.WrapRule{Enabled: p.cfg.Dataset.WrapRA, Below: p.cfg.Dataset.WrapBelow}
	res, err := extraction.Extract(p.mask.FaradayDepth, p.mask.Error, p.mask.Mask, transform, wrap)
	if err != nil {
		return fmt.Errorf("failed to extract samples: %w", err)
	}
	if res.Skipped > 0 {
		p.logf("INFO: %d pixels lie outside the %s projection", res.Skipped, transform.Projection())
	}
	p.samples = res.Samples
	p.describeSamples()

	path := p.cfg.OutputPath(p.cfg.Output.PixelList)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pixel table: %w", err)
	}
	defer f.Close()
	if err := extraction.WritePixelList(f, p.samples); err != nil {
		return fmt.Errorf("failed to write pixel table: %w", err)
	}
	return f.Close()
}

func (p *Pipeline) loadPixelList() error {
	f, err := os.Open(p.cfg.Input.PixelList)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", p.cfg.Input.PixelList, err, models.ErrUnreadableFile)
	}
	defer f.Close()

	p.samples, err = extraction.ReadPixelList(f)
	if err != nil {
		return fmt.Errorf("%s: %w", p.cfg.Input.PixelList, err)
	}
	p.describeSamples()
	return nil
}

// describeSamples logs the field centre and the Faraday depth spread
func (p *Pipeline) describeSamples() {
	if !p.cfg.Output.Verbose || len(p.samples) == 0 {
		return
	}
	values := make([]float64, len(p.samples))
	var ra, dec float64
	for i, s := range p.samples {
		values[i] = s.Value
		ra += s.RA
		dec += s.Dec
	}
	n := float64(len(p.samples))
	mean, std := stat.MeanStdDev(values, nil)
	fmt.Printf("INFO: %d samples around RA %.1d Dec %.0d\n", len(p.samples),
		sexa.FmtRA(unit.RAFromDeg(ra/n)), sexa.FmtAngle(unit.AngleFromDeg(dec/n)))
	fmt.Printf("INFO: Faraday depth mean %.3f, standard deviation %.3f rad/m^2\n", mean, std)
}

func (p *Pipeline) bin() error {
	params := structurefunction.Params{
		Start:      p.cfg.Binning.Start,
		Count:      p.cfg.Binning.Count,
		Width:      p.cfg.Binning.Size,
		Scale:      ParseScale(p.cfg.Binning.Scale),
		Policy:     ParsePolicy(p.cfg.Statistic.Policy),
		NumWorkers: p.cfg.Processing.NumCores,
	}

	var err error
	p.result, err = structurefunction.Compute(p.samples, params)
	if err != nil {
		return fmt.Errorf("failed to compute structure function: %w", err)
	}
	p.logf("INFO: Angular distance Min: %f and Max: %f deg", p.result.MinSeparation, p.result.MaxSeparation)
	p.logf("INFO: %d/%d valid values were used for binning.", p.result.Binned, p.result.Pairs)
	return nil
}

func (p *Pipeline) writeOutputs() error {
	path := p.cfg.OutputPath(p.cfg.Output.BinTable)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bin table: %w", err)
	}
	defer f.Close()
	if err := structurefunction.WriteTable(f, p.result); err != nil {
		return fmt.Errorf("failed to write bin table: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	opts := visualization.PlotOptions{
		Title:      filepath.Base(p.source()),
		Correction: ParseNoiseCorrection(p.cfg.Statistic.NoiseCorrection),
	}
	if p.cfg.Output.Reference != "" {
		rf, err := os.Open(p.cfg.Output.Reference)
		if err != nil {
			return fmt.Errorf("%s: %v: %w", p.cfg.Output.Reference, err, models.ErrUnreadableFile)
		}
		defer rf.Close()
		if opts.Reference, err = structurefunction.ReadReference(rf); err != nil {
			return fmt.Errorf("%s: %w", p.cfg.Output.Reference, err)
		}
	}

	plotPath := p.cfg.OutputPath(p.cfg.Output.Plot)
	if plotPath == "" {
		return nil
	}
	if err := visualization.PlotStructureFunction(plotPath, p.result, opts); err != nil {
		return fmt.Errorf("failed to plot structure function: %w", err)
	}
	p.logf("INFO: Plot written to %s", plotPath)
	return nil
}

func (p *Pipeline) source() string {
	if p.cfg.Input.PixelList != "" {
		return p.cfg.Input.PixelList
	}
	return p.cfg.Input.FaradayDepth
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.cfg.Output.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// ParseScale maps a configuration scale name to a binning scale
func ParseScale(s string) structurefunction.Scale {
	if s == config.ScaleLog10 {
		return structurefunction.Log10
	}
	return structurefunction.Linear
}

// ParsePolicy maps a configuration policy name to a pair statistic
func ParsePolicy(s string) structurefunction.Policy {
	switch s {
	case config.PolicyAbsolute:
		return structurefunction.Absolute
	case config.PolicyDifference:
		return structurefunction.Difference
	}
	return structurefunction.Squared
}

// ParseNoiseCorrection maps a configuration noise mode to a correction
func ParseNoiseCorrection(s string) models.NoiseCorrection {
	if s == config.NoiseSubtract {
		return models.SubtractNoise
	}
	return models.NoCorrection
}

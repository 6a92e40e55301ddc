package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/soniakeys/exit"

	"rmsf/internal/models"
	"rmsf/pkg/config"
	"rmsf/pkg/pipeline"
)

func main() {
	defer exit.Handler()

	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file")
	writeConfig := flag.String("write-config", "", "Write a default configuration file and exit")
	fdImage := flag.String("f", "", "Faraday depth map")
	rmError := flag.String("e", "", "RM error map")
	polInt := flag.String("p", "", "Polarized intensity image to use as a mask")
	threshold := flag.String("t", "", "Polarized intensity threshold of the mask")
	wsrt := flag.Bool("w", false, "Data is from WSRT (wrap right ascension past 360 degrees)")
	binStart := flag.Float64("b", -2.5, "Lower edge of the first bin")
	nBins := flag.Int("n", 20, "Number of bins")
	binSize := flag.Float64("s", 0.1, "Size of a bin")
	scale := flag.String("scale", config.ScaleLog10, "Distance scale of the bins (linear or log10)")
	statistic := flag.String("statistic", config.PolicySquared, "Pair statistic (squared, absolute or difference)")
	noise := flag.String("noise", config.NoiseSubtract, "Noise correction of the plot (subtract or none)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (0 or less: all available)")
	outDir := flag.String("out", "", "Output directory")
	reference := flag.String("reference", "", "Reference structure function to overlay on the plot")
	quicklook := flag.String("quicklook", "", "Write a PNG preview of the masked map")
	pixels := flag.String("pixels", "", "Bin an existing valid pixel table instead of the maps")
	quiet := flag.Bool("q", false, "Only report errors")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			exit.Log(err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			exit.Log(err)
		}
	}

	// Flags given on the command line override the configuration file
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "f":
			cfg.Input.FaradayDepth = *fdImage
		case "e":
			cfg.Input.Error = *rmError
		case "p":
			cfg.Input.PolarizedIntensity = *polInt
		case "t":
			v, err := strconv.ParseFloat(*threshold, 64)
			if err != nil {
				flagErr = fmt.Errorf("threshold %q: %v: %w", *threshold, err, models.ErrInvalidParameter)
				return
			}
			cfg.Input.Threshold = &v
		case "w":
			cfg.Dataset.WrapRA = *wsrt
		case "b":
			cfg.Binning.Start = *binStart
		case "n":
			cfg.Binning.Count = *nBins
		case "s":
			cfg.Binning.Size = *binSize
		case "scale":
			cfg.Binning.Scale = *scale
		case "statistic":
			cfg.Statistic.Policy = *statistic
		case "noise":
			cfg.Statistic.NoiseCorrection = *noise
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "out":
			cfg.Output.Dir = *outDir
		case "reference":
			cfg.Output.Reference = *reference
		case "quicklook":
			cfg.Output.Quicklook = *quicklook
		case "pixels":
			cfg.Input.PixelList = *pixels
		case "q":
			cfg.Output.Verbose = !*quiet
		}
	})
	if flagErr != nil {
		exit.Log(flagErr)
	}

	if cfg.Input.PixelList == "" && cfg.Input.FaradayDepth == "" {
		flag.Usage()
		os.Exit(1)
	}

	p := pipeline.NewPipeline(cfg)
	if err := p.Process(); err != nil {
		exit.Log(err)
	}

	res := p.Result()
	if cfg.Output.Verbose {
		fmt.Printf("\nStructure function of %d samples written to %s\n",
			len(p.Samples()), cfg.OutputPath(cfg.Output.BinTable))
		fmt.Printf("%d of %d pairs fell inside the %d %s bins\n",
			res.Binned, res.Pairs, len(res.Bins), res.Params.Scale)
	}
}

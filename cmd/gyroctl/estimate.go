package main

import (
	"bytes"
	"fmt"
	"image/color"
	"strings"

	fcolor "github.com/fatih/color"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/security"
	"github.com/banshee-data/gyrohook/internal/units"
)

func estimateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate samples.csv",
		Short: "Estimate gyroscope bias from stationary samples",
		Long: `Read "x,y,z" samples recorded while the device was at rest and print
the per-axis bias and the offsets that cancel it, in radians per second.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plotPath, _ := cmd.Flags().GetString("plot")
			unit, _ := cmd.Flags().GetString("units")
			if plotPath != "" {
				if err := security.ExportPath(plotPath); err != nil {
					return err
				}
			}

			data, err := a.fs.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read samples: %w", err)
			}
			samples, err := calibration.ReadSamples(bytes.NewReader(data))
			if err != nil {
				return err
			}
			if samples, err = toRadPerSec(samples, unit); err != nil {
				return err
			}
			est, err := calibration.EstimateBias(samples)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "samples:    %d\n", est.Samples)
			fmt.Fprintf(out, "bias:       %s\n", est.Mean)
			fmt.Fprintf(out, "stddev:     %s\n", est.StdDev)
			fmt.Fprintf(out, "correction: %s\n", fcolor.New(fcolor.FgCyan).Sprint(est.Correction()))
			fmt.Fprintf(out, "frame:      %s\n", strings.TrimSuffix(calibration.FormatFrame(est.Correction()), "\n"))

			if plotPath != "" {
				if err := plotSamples(plotPath, samples, est); err != nil {
					return err
				}
				fmt.Fprintf(out, "plot written to %s\n", plotPath)
			}
			return nil
		},
	}
	cmd.Flags().String("units", units.RadPerSec, "Unit of the samples: "+units.GetValidUnitsString())
	cmd.Flags().String("plot", "", "Write a plot of the samples to this file (.png, .svg, .pdf) under the temp or working directory")
	return cmd
}

// toRadPerSec converts samples recorded in unit to radians per second.
func toRadPerSec(samples []calibration.Sample, unit string) ([]calibration.Sample, error) {
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("invalid units %q, expected one of: %s", unit, units.GetValidUnitsString())
	}
	out := make([]calibration.Sample, len(samples))
	for i, s := range samples {
		out[i].X, _ = units.ToRadPerSec(s.X, unit)
		out[i].Y, _ = units.ToRadPerSec(s.Y, unit)
		out[i].Z, _ = units.ToRadPerSec(s.Z, unit)
	}
	return out, nil
}

var axisColors = []color.RGBA{
	{R: 220, G: 50, B: 47, A: 255},
	{R: 38, G: 139, B: 210, A: 255},
	{R: 133, G: 153, B: 0, A: 255},
}

// plotSamples draws each axis against the sample index, with its mean as a
// dashed line.
func plotSamples(path string, samples []calibration.Sample, est calibration.BiasEstimate) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Gyroscope bias (%d samples)", est.Samples)
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Angular rate (rad/s)"

	axes := []struct {
		name  string
		value func(calibration.Sample) float64
		mean  float64
	}{
		{"x", func(s calibration.Sample) float64 { return s.X }, est.Mean.X},
		{"y", func(s calibration.Sample) float64 { return s.Y }, est.Mean.Y},
		{"z", func(s calibration.Sample) float64 { return s.Z }, est.Mean.Z},
	}

	for i, axis := range axes {
		pts := make(plotter.XYs, len(samples))
		for j, s := range samples {
			pts[j] = plotter.XY{X: float64(j), Y: axis.value(s)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to plot %s axis: %w", axis.name, err)
		}
		line.Color = axisColors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(axis.name, line)

		mean, err := plotter.NewLine(plotter.XYs{
			{X: 0, Y: axis.mean},
			{X: float64(len(samples) - 1), Y: axis.mean},
		})
		if err != nil {
			return fmt.Errorf("failed to plot %s mean: %w", axis.name, err)
		}
		mean.Color = axisColors[i]
		mean.Width = vg.Points(1)
		mean.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(mean)
	}

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

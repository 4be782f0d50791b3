package calibration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrTooFewSamples is returned when a bias estimate has fewer than two samples.
var ErrTooFewSamples = errors.New("at least two samples are required")

// Sample is one raw three-axis gyroscope reading.
type Sample struct {
	X, Y, Z float64
}

// BiasEstimate summarises a run of readings taken while the device was at rest.
type BiasEstimate struct {
	Mean    Offsets
	StdDev  Offsets
	Samples int
}

// Correction returns the offsets that cancel the measured bias.
func (b BiasEstimate) Correction() Offsets {
	return Offsets{X: -b.Mean.X, Y: -b.Mean.Y, Z: -b.Mean.Z}
}

// EstimateBias computes the per-axis mean and standard deviation of stationary
// samples. A stationary gyroscope should read zero on every axis, so the mean
// is the bias.
func EstimateBias(samples []Sample) (BiasEstimate, error) {
	if len(samples) < 2 {
		return BiasEstimate{}, ErrTooFewSamples
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	zs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i], zs[i] = s.X, s.Y, s.Z
	}

	mx, sx := stat.MeanStdDev(xs, nil)
	my, sy := stat.MeanStdDev(ys, nil)
	mz, sz := stat.MeanStdDev(zs, nil)

	return BiasEstimate{
		Mean:    Offsets{X: mx, Y: my, Z: mz},
		StdDev:  Offsets{X: sx, Y: sy, Z: sz},
		Samples: len(samples),
	}, nil
}

// ReadSamples reads "x,y,z" lines. Blank lines and lines starting with '#'
// are skipped; any other malformed line aborts with its line number.
func ReadSamples(r io.Reader) ([]Sample, error) {
	var samples []Sample
	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		o, err := ParseFrame(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		samples = append(samples, Sample{X: o.X, Y: o.Y, Z: o.Z})
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	return samples, nil
}

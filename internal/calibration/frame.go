package calibration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errFieldCount = errors.New("expected 3 comma separated fields")
	errNotFinite  = errors.New("value is not finite")
)

// ParseFrame decodes one ingest frame of the form "<x>,<y>,<z>". A trailing
// newline or carriage return and whitespace around each field are ignored.
// Any other deviation yields a *ParseError.
func ParseFrame(frame string) (Offsets, error) {
	line := strings.TrimRight(frame, "\r\n")

	segments := strings.Split(line, ",")
	if len(segments) != 3 {
		return Offsets{}, &ParseError{Frame: line, Field: -1, Err: fmt.Errorf("%w, got %d", errFieldCount, len(segments))}
	}

	var values [3]float64
	for i, seg := range segments {
		v, err := strconv.ParseFloat(strings.TrimSpace(seg), 64)
		if err != nil {
			return Offsets{}, &ParseError{Frame: line, Field: i, Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Offsets{}, &ParseError{Frame: line, Field: i, Err: errNotFinite}
		}
		values[i] = v
	}

	return Offsets{X: values[0], Y: values[1], Z: values[2]}, nil
}

// FormatFrame encodes offsets as a newline terminated ingest frame.
func FormatFrame(o Offsets) string {
	return strconv.FormatFloat(o.X, 'g', -1, 64) + "," +
		strconv.FormatFloat(o.Y, 'g', -1, 64) + "," +
		strconv.FormatFloat(o.Z, 'g', -1, 64) + "\n"
}

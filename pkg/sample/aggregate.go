package sample

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNonNumeric is returned when an instrument reply cannot be read as a number.
// It is never coerced to zero: a zero would look like a valid low-power reading.
var ErrNonNumeric = errors.New("non-numeric instrument reply")

// Parse converts raw instrument replies to floats.
func Parse(raw []string) ([]float64, error) {
	values := make([]float64, len(raw))
	for i, r := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d is %q", ErrNonNumeric, i, r)
		}
		values[i] = v
	}
	return values, nil
}

// Aggregate reduces a round's replies to one measurement, see Trim.
func Aggregate(raw []string) (float64, error) {
	values, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	return Trim(values), nil
}

// Trim returns the mean of the readings without the first and the last, which are
// taken while the transmitter ramps up and down. With two readings the first one is
// returned as is, with one reading that reading, and with none 0.
func Trim(values []float64) float64 {
	switch n := len(values); {
	case n > 2:
		interior := values[1 : n-1]
		sum := 0.0
		for _, v := range interior {
			sum += v
		}
		return sum / float64(len(interior))
	case n > 0:
		return values[0]
	default:
		return 0
	}
}

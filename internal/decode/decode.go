// Package decode turns lines of received text into chart samples.
package decode

import (
	"errors"
	"fmt"

	"github.com/srg/qlink/internal/chart"
)

// DefaultSeries is the series name used when a line carries no label.
const DefaultSeries = "data"

var (
	ErrMalformed = errors.New("malformed line")
	ErrNoDecode  = errors.New("script does not define decode(line)")
)

// Sample is one decoded value destined for a named series.
type Sample struct {
	Series string
	Kind   chart.Kind
	Point  chart.Point2D
	Vector chart.Vector2D
}

func (s Sample) String() string {
	if s.Kind == chart.KindVector {
		return fmt.Sprintf("%s: (%g, %g) + (%g, %g)", s.Series, s.Vector.X, s.Vector.Y, s.Vector.DX, s.Vector.DY)
	}
	return fmt.Sprintf("%s: (%g, %g)", s.Series, s.Point.X, s.Point.Y)
}

// Decoder converts one line into zero or more samples. A line that carries no data
// (blank, comment) yields no samples and no error.
type Decoder interface {
	Decode(line string) ([]Sample, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(line string) ([]Sample, error)

func (f DecoderFunc) Decode(line string) ([]Sample, error) {
	return f(line)
}

package decode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/srg/qlink/internal/chart"
)

// CSVDecoder reads delimited numeric lines. Fields may be separated by commas,
// semicolons, tabs or spaces. An optional non-numeric first field names the series.
//
//	y           → point (n, y), n counting per series from 0
//	x y         → point (x, y)
//	x y dx dy   → vector
//
// Lines starting with '#' or "//" are comments.
type CSVDecoder struct {
	// Series is used for unlabelled lines; DefaultSeries when empty.
	Series string
	// Kind is the kind of point samples, KindLine or KindBar.
	Kind chart.Kind

	mu   sync.Mutex
	next map[string]float64
}

// NewCSVDecoder creates a decoder producing point samples of the given kind.
func NewCSVDecoder(kind chart.Kind) *CSVDecoder {
	return &CSVDecoder{Kind: kind}
}

func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		switch r {
		case ',', ';', '\t', ' ':
			return true
		}
		return false
	})
}

func (d *CSVDecoder) Decode(line string) ([]Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
		return nil, nil
	}

	fields := splitFields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	series := d.Series
	if series == "" {
		series = DefaultSeries
	}
	if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
		series = fields[0]
		fields = fields[1:]
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q is not a number", ErrMalformed, i+1, f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: field %d %q is not finite", ErrMalformed, i+1, f)
		}
		values[i] = v
	}

	kind := d.Kind
	if kind == chart.KindVector {
		kind = chart.KindLine
	}

	switch len(values) {
	case 1:
		return []Sample{{Series: series, Kind: kind, Point: chart.Point2D{X: d.advance(series), Y: values[0]}}}, nil
	case 2:
		return []Sample{{Series: series, Kind: kind, Point: chart.Point2D{X: values[0], Y: values[1]}}}, nil
	case 4:
		return []Sample{{Series: series, Kind: chart.KindVector, Vector: chart.Vector2D{X: values[0], Y: values[1], DX: values[2], DY: values[3]}}}, nil
	default:
		return nil, fmt.Errorf("%w: expected 1, 2 or 4 values, got %d", ErrMalformed, len(values))
	}
}

// advance returns the implicit x for series and increments it.
func (d *CSVDecoder) advance(series string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.next == nil {
		d.next = make(map[string]float64)
	}
	x := d.next[series]
	d.next[series] = x + 1
	return x
}

package chart

import (
	"errors"
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Kind selects the series variant.
type Kind int

const (
	KindLine Kind = iota
	KindBar
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindBar:
		return "bar"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "line":
		return KindLine, nil
	case "bar":
		return KindBar, nil
	case "vector":
		return KindVector, nil
	default:
		return 0, fmt.Errorf("unknown series kind %q (must be line, bar or vector)", s)
	}
}

var (
	ErrKindMismatch    = errors.New("series kind mismatch")
	ErrDuplicateSeries = errors.New("series already exists")
	ErrSeriesNotFound  = errors.New("series not found")
	ErrNonFinite       = errors.New("value is not a finite number")
)

// LineStyle styles KindLine series.
type LineStyle struct {
	Width       float64
	ShowPoints  bool
	PointRadius float64
}

// BarStyle styles KindBar series. Width is in data units along x.
type BarStyle struct {
	Width        float64
	ShowOutline  bool
	OutlineColor drawing.Color
}

// VectorStyle styles KindVector series. Normalize draws every arrow with the same
// length (half the largest magnitude); this trades physical accuracy for legibility.
type VectorStyle struct {
	ArrowWidth    float64
	ArrowHeadSize float64
	Normalize     bool
}

// arrowHeadAngle is the rotation of the shaft direction that yields the arrowhead's
// back corners.
const arrowHeadAngle = math.Pi * 0.85

// Series is a named, styled sequence of plot data of one Kind.
// Line and bar series use Points; vector series use Vectors.
type Series struct {
	Kind    Kind
	Name    string
	Color   drawing.Color
	Visible bool

	Points  []Point2D
	Vectors []Vector2D

	Line   LineStyle
	Bar    BarStyle
	Vector VectorStyle

	// Capacity > 0 keeps only the newest Capacity elements.
	Capacity int
}

// NewLineSeries creates a visible line series with default style.
func NewLineSeries(name string, c drawing.Color) *Series {
	return &Series{
		Kind:    KindLine,
		Name:    name,
		Color:   c,
		Visible: true,
		Line:    LineStyle{Width: 2, ShowPoints: true, PointRadius: 4},
	}
}

// NewBarSeries creates a visible bar series with default style.
func NewBarSeries(name string, c drawing.Color) *Series {
	return &Series{
		Kind:    KindBar,
		Name:    name,
		Color:   c,
		Visible: true,
		Bar:     BarStyle{Width: 0.8, ShowOutline: true, OutlineColor: colorBlack},
	}
}

// NewVectorSeries creates a visible vector series with default style.
func NewVectorSeries(name string, c drawing.Color) *Series {
	return &Series{
		Kind:    KindVector,
		Name:    name,
		Color:   c,
		Visible: true,
		Vector:  VectorStyle{ArrowWidth: 2, ArrowHeadSize: 8},
	}
}

// NewSeries creates a series of the given kind.
func NewSeries(kind Kind, name string, c drawing.Color) *Series {
	switch kind {
	case KindBar:
		return NewBarSeries(name, c)
	case KindVector:
		return NewVectorSeries(name, c)
	default:
		return NewLineSeries(name, c)
	}
}

// Len returns the number of points or vectors.
func (s *Series) Len() int {
	if s.Kind == KindVector {
		return len(s.Vectors)
	}
	return len(s.Points)
}

// Add appends a point to a line or bar series.
func (s *Series) Add(p Point2D) error {
	if s.Kind == KindVector {
		return fmt.Errorf("%w: cannot add a point to vector series %q", ErrKindMismatch, s.Name)
	}
	if !p.IsFinite() {
		return fmt.Errorf("%w: point (%g, %g) in series %q", ErrNonFinite, p.X, p.Y, s.Name)
	}
	s.Points = append(s.Points, p)
	if s.Capacity > 0 && len(s.Points) > s.Capacity {
		s.Points = append(s.Points[:0], s.Points[len(s.Points)-s.Capacity:]...)
	}
	return nil
}

// AddVector appends a vector to a vector series.
func (s *Series) AddVector(v Vector2D) error {
	if s.Kind != KindVector {
		return fmt.Errorf("%w: cannot add a vector to %s series %q", ErrKindMismatch, s.Kind, s.Name)
	}
	if !v.IsFinite() {
		return fmt.Errorf("%w: vector (%g, %g, %g, %g) in series %q", ErrNonFinite, v.X, v.Y, v.DX, v.DY, s.Name)
	}
	s.Vectors = append(s.Vectors, v)
	if s.Capacity > 0 && len(s.Vectors) > s.Capacity {
		s.Vectors = append(s.Vectors[:0], s.Vectors[len(s.Vectors)-s.Capacity:]...)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Series) Clone() Series {
	c := *s
	if s.Points != nil {
		c.Points = append([]Point2D(nil), s.Points...)
	}
	if s.Vectors != nil {
		c.Vectors = append([]Vector2D(nil), s.Vectors...)
	}
	return c
}

// Bounds returns the data range covered by the series. An empty series returns the
// zero Bounds, which callers must not treat as a real range.
func (s *Series) Bounds() Bounds {
	if s.Len() == 0 {
		return Bounds{}
	}

	switch s.Kind {
	case KindVector:
		b := Bounds{
			MinX: math.Inf(1), MaxX: math.Inf(-1),
			MinY: math.Inf(1), MaxY: math.Inf(-1),
		}
		for _, v := range s.Vectors {
			end := v.End()
			b.MinX = math.Min(b.MinX, math.Min(v.X, end.X))
			b.MaxX = math.Max(b.MaxX, math.Max(v.X, end.X))
			b.MinY = math.Min(b.MinY, math.Min(v.Y, end.Y))
			b.MaxY = math.Max(b.MaxY, math.Max(v.Y, end.Y))
		}
		return b
	default:
		b := pointBounds(s.Points)
		if s.Kind == KindBar {
			// bars are anchored at the baseline
			b.MinY = 0
		}
		return b
	}
}

func pointBounds(points []Point2D) Bounds {
	b := Bounds{
		MinX: points[0].X, MaxX: points[0].X,
		MinY: points[0].Y, MaxY: points[0].Y,
	}
	for _, p := range points[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Draw paints the series onto surface using vp. Hidden or empty series draw nothing.
func (s *Series) Draw(surface Surface, vp Viewport) {
	if !s.Visible || s.Len() == 0 {
		return
	}

	switch s.Kind {
	case KindLine:
		s.drawLine(surface, vp)
	case KindBar:
		s.drawBars(surface, vp)
	case KindVector:
		s.drawVectors(surface, vp)
	}
}

func (s *Series) drawLine(surface Surface, vp Viewport) {
	for i := 0; i < len(s.Points)-1; i++ {
		x1, y1 := vp.ToDevice(s.Points[i].X, s.Points[i].Y)
		x2, y2 := vp.ToDevice(s.Points[i+1].X, s.Points[i+1].Y)
		surface.Line(x1, y1, x2, y2, s.Color, s.Line.Width)
	}

	if !s.Line.ShowPoints {
		return
	}
	for _, p := range s.Points {
		x, y := vp.ToDevice(p.X, p.Y)
		surface.FillCircle(x, y, s.Line.PointRadius, s.Color)
	}
}

func (s *Series) drawBars(surface Surface, vp Viewport) {
	barWidth := s.Bar.Width * vp.ScaleX

	for _, p := range s.Points {
		x, top := vp.ToDevice(p.X, p.Y)
		_, base := vp.ToDevice(p.X, 0)

		r := Rect{X: x - barWidth/2, Y: math.Min(top, base), W: barWidth, H: math.Abs(base - top)}
		surface.FillRect(r, s.Color)
		if s.Bar.ShowOutline {
			surface.StrokeRect(r, s.Bar.OutlineColor, 1)
		}
	}
}

func (s *Series) drawVectors(surface Surface, vp Viewport) {
	maxMagnitude := 1.0
	if s.Vector.Normalize {
		maxMagnitude = 0
		for _, v := range s.Vectors {
			maxMagnitude = math.Max(maxMagnitude, v.Magnitude())
		}
		if maxMagnitude == 0 {
			maxMagnitude = 1
		}
	}

	for _, v := range s.Vectors {
		dx, dy := v.DX, v.DY
		if s.Vector.Normalize {
			if m := v.Magnitude(); m > 0 {
				dx = dx / m * (maxMagnitude / 2)
				dy = dy / m * (maxMagnitude / 2)
			}
		}

		startX, startY := vp.ToDevice(v.X, v.Y)
		endX := startX + dx*vp.ScaleX
		endY := startY - dy*vp.ScaleY

		surface.Line(startX, startY, endX, endY, s.Color, s.Vector.ArrowWidth)
		surface.FillPolygon(arrowHead(startX, startY, endX, endY, s.Vector.ArrowHeadSize), s.Color)
	}
}

// arrowHead returns the tip and the two back corners of an arrowhead in device space.
func arrowHead(startX, startY, endX, endY, size float64) []Point2D {
	angle := math.Atan2(endY-startY, endX-startX)
	a1 := angle + arrowHeadAngle
	a2 := angle - arrowHeadAngle
	return []Point2D{
		{X: endX, Y: endY},
		{X: endX + size*math.Cos(a1), Y: endY + size*math.Sin(a1)},
		{X: endX + size*math.Cos(a2), Y: endY + size*math.Sin(a2)},
	}
}

// Package chart is a toolkit-independent multi-series chart model and renderer.
//
// Series hold 2D points (line and bar) or vectors (origin plus displacement).
// A Model orders series for z-order and legend order; a Renderer maps a point-in-time
// Snapshot of the model onto any Surface. RasterSurface is a ready-made Surface that
// produces PNG images.
package chart

import (
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Point2D is a data-space point.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector2D is an origin (X, Y) plus a displacement (DX, DY).
type Vector2D struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// IsFinite reports whether both coordinates are real numbers.
func (p Point2D) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// IsFinite reports whether origin and displacement are real numbers.
func (v Vector2D) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.DX) && isFinite(v.DY)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// End returns the point the vector points to.
func (v Vector2D) End() Point2D {
	return Point2D{X: v.X + v.DX, Y: v.Y + v.DY}
}

// Magnitude returns the displacement length.
func (v Vector2D) Magnitude() float64 {
	return math.Hypot(v.DX, v.DY)
}

// Bounds is a data-space range. The zero value is the degenerate "no data" result.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

func (b Bounds) String() string {
	return fmt.Sprintf("x[%g, %g] y[%g, %g]", b.MinX, b.MaxX, b.MinY, b.MaxY)
}

// Union returns the smallest range covering b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Expand grows each non-empty axis range by frac of its width on both sides.
func (b Bounds) Expand(frac float64) Bounds {
	if r := b.MaxX - b.MinX; r > 0 {
		b.MinX -= r * frac
		b.MaxX += r * frac
	}
	if r := b.MaxY - b.MinY; r > 0 {
		b.MinY -= r * frac
		b.MaxY += r * frac
	}
	return b
}

// IsFinite reports whether all four limits are real numbers.
func (b Bounds) IsFinite() bool {
	return isFinite(b.MinX) && isFinite(b.MaxX) && isFinite(b.MinY) && isFinite(b.MaxY)
}

// Clamp replaces empty or inverted axis ranges with a unit range starting at Min,
// so scale factors are always finite and non-zero. An axis with a non-finite limit
// becomes [0, 1].
func (b Bounds) Clamp() Bounds {
	b.MinX, b.MaxX = clampAxis(b.MinX, b.MaxX)
	b.MinY, b.MaxY = clampAxis(b.MinY, b.MaxY)
	return b
}

func clampAxis(lo, hi float64) (float64, float64) {
	switch {
	case !isFinite(lo) || !isFinite(hi):
		return 0, 1
	case !(hi > lo):
		return lo, lo + 1
	default:
		return lo, hi
	}
}

// Rect is a device-space rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Padding is the space between the surface edge and the plot area.
type Padding struct {
	Left, Right, Top, Bottom float64
}

// Palette colours assigned to series created without an explicit colour.
var Palette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
}

var (
	colorWhite     = drawing.Color{R: 255, G: 255, B: 255, A: 255}
	colorBlack     = drawing.Color{R: 0, G: 0, B: 0, A: 255}
	colorLightGray = drawing.Color{R: 211, G: 211, B: 211, A: 255}
)

// PaletteColor returns the palette entry for index i, wrapping around.
func PaletteColor(i int) drawing.Color {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}

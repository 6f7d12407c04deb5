package chart

import "image/color"

// Align is the horizontal text anchor.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Surface is the immediate-mode drawing target the renderer paints on.
// Coordinates are device pixels with y growing downward. Text y is the top of the
// text box; x is interpreted according to align.
type Surface interface {
	FillRect(r Rect, c color.Color)
	StrokeRect(r Rect, c color.Color, width float64)
	Line(x1, y1, x2, y2 float64, c color.Color, width float64)
	FillCircle(cx, cy, radius float64, c color.Color)
	FillPolygon(points []Point2D, c color.Color)
	Text(s string, x, y float64, align Align, c color.Color, size float64)
	// VerticalText draws s rotated 90° counter-clockwise, centred on (x, y).
	VerticalText(s string, x, y float64, c color.Color, size float64)
}

// Viewport maps data space onto the plot area of a surface.
type Viewport struct {
	Rect    Rect
	Padding Padding
	Range   Bounds
	ScaleX  float64
	ScaleY  float64
}

// ToDevice maps a data-space point to device pixels. Range.MinX/MinY land on the
// plot origin (bottom-left corner of the plot area).
func (v Viewport) ToDevice(x, y float64) (float64, float64) {
	px := v.Rect.X + v.Padding.Left + (x-v.Range.MinX)*v.ScaleX
	py := v.Rect.Y + v.Rect.H - v.Padding.Bottom - (y-v.Range.MinY)*v.ScaleY
	return px, py
}

// PlotWidth is the horizontal extent of the plot area.
func (v Viewport) PlotWidth() float64 {
	return v.Rect.W - v.Padding.Left - v.Padding.Right
}

// PlotHeight is the vertical extent of the plot area.
func (v Viewport) PlotHeight() float64 {
	return v.Rect.H - v.Padding.Top - v.Padding.Bottom
}

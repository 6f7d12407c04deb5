package chart

import (
	"fmt"
	"image/color"
)

// LegendStyle places the legend in the top-right corner of the surface.
type LegendStyle struct {
	OffsetFromRight float64
	LineLength      float64
	RowSpacing      float64
}

// Renderer draws a Snapshot onto a Surface.
type Renderer struct {
	Padding    Padding
	GridSteps  int
	Background color.Color
	AxisColor  color.Color
	GridColor  color.Color
	TextColor  color.Color
	FontSize   float64
	TitleSize  float64
	Legend     LegendStyle
	// Margin is the fraction of the autoscaled range added on each side.
	Margin float64
}

// NewRenderer returns a renderer with the stock layout.
func NewRenderer() *Renderer {
	return &Renderer{
		Padding:    Padding{Left: 70, Right: 50, Top: 40, Bottom: 60},
		GridSteps:  5,
		Background: colorWhite,
		AxisColor:  colorBlack,
		GridColor:  colorLightGray,
		TextColor:  colorBlack,
		FontSize:   12,
		TitleSize:  14,
		Legend:     LegendStyle{OffsetFromRight: 160, LineLength: 20, RowSpacing: 25},
		Margin:     0.05,
	}
}

// ResolveBounds computes the range a snapshot is drawn with. Autoscaling covers all
// visible non-empty series plus the margin; with no data, with non-finite data, or
// with autoscaling off, the fixed bounds are used. Degenerate ranges are clamped to a
// unit range.
func ResolveBounds(snap Snapshot, margin float64) Bounds {
	if snap.Settings.AutoScale {
		var (
			b     Bounds
			found bool
		)
		for i := range snap.Series {
			s := &snap.Series[i]
			if !s.Visible || s.Len() == 0 {
				continue
			}
			if !found {
				b, found = s.Bounds(), true
				continue
			}
			b = b.Union(s.Bounds())
		}
		if found && b.IsFinite() {
			return b.Expand(margin).Clamp()
		}
	}
	return snap.Settings.Fixed.Clamp()
}

// Render paints snap into rect on surface and returns the effective bounds.
func (r *Renderer) Render(surface Surface, rect Rect, snap Snapshot) Bounds {
	surface.FillRect(rect, r.Background)

	bounds := ResolveBounds(snap, r.Margin)
	vp := Viewport{Rect: rect, Padding: r.Padding, Range: bounds}
	vp.ScaleX = vp.PlotWidth() / (bounds.MaxX - bounds.MinX)
	vp.ScaleY = vp.PlotHeight() / (bounds.MaxY - bounds.MinY)

	r.drawGrid(surface, vp)
	r.drawAxes(surface, vp)
	r.drawTitles(surface, vp, snap.Settings)

	for i := range snap.Series {
		snap.Series[i].Draw(surface, vp)
	}

	r.drawLegend(surface, vp, snap.Series)
	return bounds
}

func (r *Renderer) drawAxes(surface Surface, vp Viewport) {
	left := vp.Rect.X + r.Padding.Left
	right := vp.Rect.X + vp.Rect.W - r.Padding.Right
	top := vp.Rect.Y + r.Padding.Top
	bottom := vp.Rect.Y + vp.Rect.H - r.Padding.Bottom

	surface.Line(left, bottom, right, bottom, r.AxisColor, 2)
	surface.Line(left, top, left, bottom, r.AxisColor, 2)
}

func (r *Renderer) drawGrid(surface Surface, vp Viewport) {
	steps := r.GridSteps
	if steps <= 0 {
		return
	}

	left := vp.Rect.X + r.Padding.Left
	right := vp.Rect.X + vp.Rect.W - r.Padding.Right
	top := vp.Rect.Y + r.Padding.Top
	bottom := vp.Rect.Y + vp.Rect.H - r.Padding.Bottom
	b := vp.Range

	for i := 0; i <= steps; i++ {
		frac := float64(i) / float64(steps)

		y := bottom - frac*vp.PlotHeight()
		surface.Line(left, y, right, y, r.GridColor, 1)
		value := b.MinY + frac*(b.MaxY-b.MinY)
		surface.Text(formatTick(value), left-15, y-6, AlignRight, r.TextColor, r.FontSize)

		x := left + frac*vp.PlotWidth()
		surface.Line(x, top, x, bottom, r.GridColor, 1)
		value = b.MinX + frac*(b.MaxX-b.MinX)
		surface.Text(formatTick(value), x, bottom+15, AlignCenter, r.TextColor, r.FontSize)
	}
}

func (r *Renderer) drawTitles(surface Surface, vp Viewport, settings Settings) {
	if settings.XLabel != "" {
		surface.Text(settings.XLabel, vp.Rect.X+vp.Rect.W/2, vp.Rect.Y+vp.Rect.H-10-r.TitleSize, AlignCenter, r.TextColor, r.TitleSize)
	}
	if settings.YLabel != "" {
		surface.VerticalText(settings.YLabel, vp.Rect.X+r.Padding.Left-50, vp.Rect.Y+vp.Rect.H/2, r.TextColor, r.TitleSize)
	}
}

func (r *Renderer) drawLegend(surface Surface, vp Viewport, series []Series) {
	x := vp.Rect.X + vp.Rect.W - r.Legend.OffsetFromRight
	y := vp.Rect.Y + r.Padding.Top + 10

	for i := range series {
		s := &series[i]
		if !s.Visible {
			continue
		}
		surface.Line(x, y, x+r.Legend.LineLength, y, s.Color, 3)
		surface.Text(s.Name, x+r.Legend.LineLength+5, y-6, AlignLeft, r.TextColor, r.FontSize)
		y += r.Legend.RowSpacing
	}
}

func formatTick(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

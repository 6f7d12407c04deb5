package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RasterSurface is a Surface backed by an RGBA image. Shapes are rasterised by the
// go-chart drawing context; text uses the fixed 7x13 bitmap face, so the size
// argument of Text is ignored.
type RasterSurface struct {
	img  *image.RGBA
	gc   *drawing.RasterGraphicContext
	face font.Face
}

// NewRasterSurface allocates a width × height surface.
func NewRasterSurface(width, height int) (*RasterSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	gc, err := drawing.NewRasterGraphicContext(img)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphic context: %w", err)
	}

	return &RasterSurface{img: img, gc: gc, face: basicfont.Face7x13}, nil
}

// Image returns the backing image.
func (s *RasterSurface) Image() *image.RGBA {
	return s.img
}

// Bounds returns the full surface rectangle.
func (s *RasterSurface) Bounds() Rect {
	b := s.img.Bounds()
	return Rect{X: float64(b.Min.X), Y: float64(b.Min.Y), W: float64(b.Dx()), H: float64(b.Dy())}
}

// WritePNG encodes the surface as PNG.
func (s *RasterSurface) WritePNG(w io.Writer) error {
	return png.Encode(w, s.img)
}

func (s *RasterSurface) FillRect(r Rect, c color.Color) {
	s.gc.BeginPath()
	s.rectPath(r)
	s.gc.SetFillColor(c)
	s.gc.Fill()
}

func (s *RasterSurface) StrokeRect(r Rect, c color.Color, width float64) {
	s.gc.BeginPath()
	s.rectPath(r)
	s.gc.SetStrokeColor(c)
	s.gc.SetLineWidth(width)
	s.gc.Stroke()
}

func (s *RasterSurface) rectPath(r Rect) {
	s.gc.MoveTo(r.X, r.Y)
	s.gc.LineTo(r.X+r.W, r.Y)
	s.gc.LineTo(r.X+r.W, r.Y+r.H)
	s.gc.LineTo(r.X, r.Y+r.H)
	s.gc.Close()
}

func (s *RasterSurface) Line(x1, y1, x2, y2 float64, c color.Color, width float64) {
	s.gc.BeginPath()
	s.gc.MoveTo(x1, y1)
	s.gc.LineTo(x2, y2)
	s.gc.SetStrokeColor(c)
	s.gc.SetLineWidth(width)
	s.gc.Stroke()
}

func (s *RasterSurface) FillCircle(cx, cy, radius float64, c color.Color) {
	s.gc.BeginPath()
	s.gc.ArcTo(cx, cy, radius, radius, 0, 2*math.Pi)
	s.gc.Close()
	s.gc.SetFillColor(c)
	s.gc.Fill()
}

func (s *RasterSurface) FillPolygon(points []Point2D, c color.Color) {
	if len(points) < 3 {
		return
	}
	s.gc.BeginPath()
	s.gc.MoveTo(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		s.gc.LineTo(p.X, p.Y)
	}
	s.gc.Close()
	s.gc.SetFillColor(c)
	s.gc.Fill()
}

func (s *RasterSurface) Text(text string, x, y float64, align Align, c color.Color, _ float64) {
	d := &font.Drawer{Dst: s.img, Src: image.NewUniform(c), Face: s.face}

	width := d.MeasureString(text).Ceil()
	left := int(math.Round(x))
	switch align {
	case AlignCenter:
		left -= width / 2
	case AlignRight:
		left -= width
	}

	d.Dot = fixed.Point26_6{X: fixed.I(left), Y: fixed.I(int(math.Round(y)) + s.face.Metrics().Ascent.Ceil())}
	d.DrawString(text)
}

func (s *RasterSurface) VerticalText(text string, x, y float64, c color.Color, _ float64) {
	m := s.face.Metrics()
	d := &font.Drawer{Face: s.face, Src: image.NewUniform(c)}
	tw := d.MeasureString(text).Ceil()
	th := m.Height.Ceil()
	if tw == 0 || th == 0 {
		return
	}

	tmp := image.NewRGBA(image.Rect(0, 0, tw, th))
	d.Dst = tmp
	d.Dot = fixed.Point26_6{X: 0, Y: m.Ascent}
	d.DrawString(text)

	// rotate 90° counter-clockwise: (sx, sy) -> (sy, tw-1-sx)
	ox := int(math.Round(x)) - th/2
	oy := int(math.Round(y)) - tw/2
	for sy := 0; sy < th; sy++ {
		for sx := 0; sx < tw; sx++ {
			px := tmp.RGBAAt(sx, sy)
			if px.A == 0 {
				continue
			}
			dx, dy := ox+sy, oy+(tw-1-sx)
			if !(image.Point{X: dx, Y: dy}).In(s.img.Rect) {
				continue
			}
			draw.Draw(s.img, image.Rect(dx, dy, dx+1, dy+1), image.NewUniform(px), image.Point{}, draw.Over)
		}
	}
}

// RenderPNG renders the model with the stock renderer and writes a PNG.
func RenderPNG(model *Model, width, height int, out io.Writer) (Bounds, error) {
	surface, err := NewRasterSurface(width, height)
	if err != nil {
		return Bounds{}, err
	}

	bounds := NewRenderer().Render(surface, surface.Bounds(), model.Snapshot())
	if err := surface.WritePNG(out); err != nil {
		return Bounds{}, fmt.Errorf("failed to encode png: %w", err)
	}
	return bounds, nil
}

package chart

import "image/color"

type op struct {
	Name   string
	Rect   Rect
	Points []Point2D
	Text   string
	Align  Align
	Color  color.Color
	Width  float64
	Radius float64
}

// recorder is a Surface that records every primitive it is asked to draw.
type recorder struct {
	ops []op
}

func (r *recorder) FillRect(rect Rect, c color.Color) {
	r.ops = append(r.ops, op{Name: "fillRect", Rect: rect, Color: c})
}

func (r *recorder) StrokeRect(rect Rect, c color.Color, width float64) {
	r.ops = append(r.ops, op{Name: "strokeRect", Rect: rect, Color: c, Width: width})
}

func (r *recorder) Line(x1, y1, x2, y2 float64, c color.Color, width float64) {
	r.ops = append(r.ops, op{Name: "line", Points: []Point2D{{X: x1, Y: y1}, {X: x2, Y: y2}}, Color: c, Width: width})
}

func (r *recorder) FillCircle(cx, cy, radius float64, c color.Color) {
	r.ops = append(r.ops, op{Name: "circle", Points: []Point2D{{X: cx, Y: cy}}, Radius: radius, Color: c})
}

func (r *recorder) FillPolygon(points []Point2D, c color.Color) {
	r.ops = append(r.ops, op{Name: "polygon", Points: append([]Point2D(nil), points...), Color: c})
}

func (r *recorder) Text(s string, x, y float64, align Align, c color.Color, _ float64) {
	r.ops = append(r.ops, op{Name: "text", Text: s, Points: []Point2D{{X: x, Y: y}}, Align: align, Color: c})
}

func (r *recorder) VerticalText(s string, x, y float64, c color.Color, _ float64) {
	r.ops = append(r.ops, op{Name: "vtext", Text: s, Points: []Point2D{{X: x, Y: y}}, Color: c})
}

func (r *recorder) named(name string) []op {
	var out []op
	for _, o := range r.ops {
		if o.Name == name {
			out = append(out, o)
		}
	}
	return out
}

func (r *recorder) withColor(name string, c color.Color) []op {
	var out []op
	for _, o := range r.named(name) {
		if o.Color == c {
			out = append(out, o)
		}
	}
	return out
}

func (r *recorder) texts() []string {
	var out []string
	for _, o := range r.named("text") {
		out = append(out, o.Text)
	}
	return out
}

package chart

import (
	"bytes"
	"image/png"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBounds(t *testing.T) {
	line := NewLineSeries("l", PaletteColor(0))
	_ = line.Add(Point2D{X: 0, Y: 0})
	_ = line.Add(Point2D{X: 10, Y: 100})

	flat := NewLineSeries("flat", PaletteColor(1))
	_ = flat.Add(Point2D{X: 3, Y: 7})

	hidden := NewLineSeries("hidden", PaletteColor(2))
	_ = hidden.Add(Point2D{X: -1000, Y: -1000})
	hidden.Visible = false

	// assigned directly, Add refuses non-finite points
	poisoned := NewLineSeries("nan", PaletteColor(3))
	poisoned.Points = []Point2D{{X: 0, Y: 1}, {X: 1, Y: math.NaN()}, {X: 2, Y: 3}}

	infinite := NewLineSeries("inf", PaletteColor(4))
	infinite.Points = []Point2D{{X: 0, Y: 1}, {X: 1, Y: math.Inf(1)}}

	tests := []struct {
		name     string
		settings Settings
		series   []*Series
		want     Bounds
	}{
		{
			name:     "autoscale adds five percent margin",
			settings: DefaultSettings(),
			series:   []*Series{line},
			want:     Bounds{MinX: -0.5, MaxX: 10.5, MinY: -5, MaxY: 105},
		},
		{
			name:     "single point clamps to unit range without margin",
			settings: DefaultSettings(),
			series:   []*Series{flat},
			want:     Bounds{MinX: 3, MaxX: 4, MinY: 7, MaxY: 8},
		},
		{
			name:     "hidden series are ignored",
			settings: DefaultSettings(),
			series:   []*Series{line, hidden},
			want:     Bounds{MinX: -0.5, MaxX: 10.5, MinY: -5, MaxY: 105},
		},
		{
			name:     "no data falls back to explicit bounds",
			settings: DefaultSettings(),
			series:   []*Series{NewLineSeries("empty", PaletteColor(0))},
			want:     Bounds{MinX: 0, MaxX: 20, MinY: 0, MaxY: 100},
		},
		{
			name:     "autoscale off uses explicit bounds",
			settings: Settings{Fixed: Bounds{MinX: 1, MaxX: 2, MinY: 3, MaxY: 4}},
			series:   []*Series{line},
			want:     Bounds{MinX: 1, MaxX: 2, MinY: 3, MaxY: 4},
		},
		{
			name:     "degenerate explicit bounds are clamped",
			settings: Settings{Fixed: Bounds{MinX: 5, MaxX: 5, MinY: 9, MaxY: 2}},
			want:     Bounds{MinX: 5, MaxX: 6, MinY: 9, MaxY: 10},
		},
		{
			name:     "NaN data falls back to explicit bounds",
			settings: DefaultSettings(),
			series:   []*Series{line, poisoned},
			want:     Bounds{MinX: 0, MaxX: 20, MinY: 0, MaxY: 100},
		},
		{
			name:     "infinite data falls back to explicit bounds",
			settings: DefaultSettings(),
			series:   []*Series{infinite},
			want:     Bounds{MinX: 0, MaxX: 20, MinY: 0, MaxY: 100},
		},
		{
			name:     "non-finite explicit bounds become unit ranges",
			settings: Settings{Fixed: Bounds{MinX: math.Inf(-1), MaxX: 2, MinY: 0, MaxY: math.NaN()}},
			want:     Bounds{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{Settings: tt.settings}
			for _, s := range tt.series {
				snap.Series = append(snap.Series, s.Clone())
			}
			got := ResolveBounds(snap, 0.05)
			assert.InDelta(t, tt.want.MinX, got.MinX, 1e-9)
			assert.InDelta(t, tt.want.MaxX, got.MaxX, 1e-9)
			assert.InDelta(t, tt.want.MinY, got.MinY, 1e-9)
			assert.InDelta(t, tt.want.MaxY, got.MaxY, 1e-9)
		})
	}
}

func TestRender_NonFiniteDataKeepsScaleFinite(t *testing.T) {
	// GOAL: Verify one bad sample cannot poison the scale of a whole render
	//
	// TEST SCENARIO: Snapshot holds a NaN point → Render → bounds are ordered and finite

	m := NewModel(DefaultSettings())
	require.NoError(t, m.AddSeries(NewLineSeries("temp", PaletteColor(0))))
	require.NoError(t, m.Append("temp", Point2D{X: 0, Y: 1}))
	snap := m.Snapshot()
	snap.Series[0].Points = append(snap.Series[0].Points, Point2D{X: 1, Y: math.NaN()})

	got := NewRenderer().Render(&recorder{}, Rect{W: 800, H: 600}, snap)

	assert.True(t, got.IsFinite(), "render bounds MUST be finite, got %s", got)
	assert.Greater(t, got.MaxX, got.MinX)
	assert.Greater(t, got.MaxY, got.MinY)
}

func TestRender_DoesNotMutateExplicitBounds(t *testing.T) {
	m := NewModel(DefaultSettings())
	require.NoError(t, m.AddSeries(NewLineSeries("temp", PaletteColor(0))))
	require.NoError(t, m.Append("temp", Point2D{X: 1, Y: 500}))
	require.NoError(t, m.Append("temp", Point2D{X: 2, Y: 700}))

	before := m.Settings().Fixed
	got := NewRenderer().Render(&recorder{}, Rect{W: 800, H: 600}, m.Snapshot())

	assert.Equal(t, before, m.Settings().Fixed, "explicit bounds MUST NOT change during render")
	assert.Greater(t, got.MaxY, 700.0)
}

func TestRender_LayoutAndLabels(t *testing.T) {
	settings := DefaultSettings()
	settings.XLabel = "Distance"
	settings.YLabel = "Depth"
	settings.AutoScale = false
	m := NewModel(settings)

	rec := &recorder{}
	b := NewRenderer().Render(rec, Rect{W: 800, H: 600}, m.Snapshot())
	assert.Equal(t, Bounds{MinX: 0, MaxX: 20, MinY: 0, MaxY: 100}, b)

	fills := rec.named("fillRect")
	require.NotEmpty(t, fills)
	assert.Equal(t, Rect{W: 800, H: 600}, fills[0].Rect, "background MUST be painted first")
	assert.Equal(t, colorWhite, fills[0].Color)

	axes := rec.withColor("line", colorBlack)
	require.Len(t, axes, 2)
	assert.Equal(t, Point2D{X: 70, Y: 540}, axes[0].Points[0])
	assert.Equal(t, Point2D{X: 750, Y: 540}, axes[0].Points[1])
	assert.Equal(t, 2.0, axes[0].Width)

	grid := rec.withColor("line", colorLightGray)
	assert.Len(t, grid, 12, "5 grid steps MUST yield 6 lines per axis")

	texts := rec.texts()
	for _, want := range []string{"0.0", "20.0", "40.0", "100.0", "4.0", "16.0", "Distance"} {
		assert.Contains(t, texts, want)
	}

	vt := rec.named("vtext")
	require.Len(t, vt, 1)
	assert.Equal(t, "Depth", vt[0].Text)
	assert.Equal(t, Point2D{X: 20, Y: 300}, vt[0].Points[0])
}

func TestRender_TickLabelPositions(t *testing.T) {
	settings := DefaultSettings()
	settings.AutoScale = false
	rec := &recorder{}
	NewRenderer().Render(rec, Rect{W: 800, H: 600}, NewModel(settings).Snapshot())

	var yLabel, xLabel *op
	for _, o := range rec.named("text") {
		o := o
		if o.Text == "100.0" && o.Align == AlignRight {
			yLabel = &o
		}
		if o.Text == "20.0" && o.Align == AlignCenter {
			xLabel = &o
		}
	}
	require.NotNil(t, yLabel)
	require.NotNil(t, xLabel)
	assert.Equal(t, Point2D{X: 55, Y: 34}, yLabel.Points[0])
	assert.Equal(t, Point2D{X: 750, Y: 555}, xLabel.Points[0])
}

func TestRender_SeriesOrderAndLegend(t *testing.T) {
	m := NewModel(DefaultSettings())
	a := NewLineSeries("first", PaletteColor(0))
	b := NewBarSeries("second", PaletteColor(1))
	c := NewLineSeries("hidden", PaletteColor(2))
	c.Visible = false
	for _, s := range []*Series{a, b, c} {
		require.NoError(t, m.AddSeries(s))
	}
	require.NoError(t, m.Append("first", Point2D{X: 0, Y: 1}))
	require.NoError(t, m.Append("first", Point2D{X: 1, Y: 2}))
	require.NoError(t, m.Append("second", Point2D{X: 0.5, Y: 1.5}))
	require.NoError(t, m.Append("hidden", Point2D{X: 0.5, Y: 1.5}))

	rec := &recorder{}
	NewRenderer().Render(rec, Rect{W: 800, H: 600}, m.Snapshot())

	firstLine, firstBar := -1, -1
	for i, o := range rec.ops {
		if firstLine < 0 && o.Name == "line" && o.Color == PaletteColor(0) {
			firstLine = i
		}
		if firstBar < 0 && o.Name == "fillRect" && o.Color == PaletteColor(1) {
			firstBar = i
		}
	}
	require.GreaterOrEqual(t, firstLine, 0)
	require.GreaterOrEqual(t, firstBar, 0)
	assert.Less(t, firstLine, firstBar, "series MUST be drawn in insertion order")

	assert.Empty(t, rec.withColor("circle", PaletteColor(2)), "hidden series MUST NOT be drawn")

	var legend []op
	for _, o := range rec.named("text") {
		if o.Align == AlignLeft {
			legend = append(legend, o)
		}
	}
	require.Len(t, legend, 2, "legend MUST list visible series only")
	assert.Equal(t, "first", legend[0].Text)
	assert.Equal(t, "second", legend[1].Text)
	assert.Equal(t, Point2D{X: 665, Y: 44}, legend[0].Points[0])
	assert.Equal(t, Point2D{X: 665, Y: 69}, legend[1].Points[0])
}

func TestModel_Operations(t *testing.T) {
	m := NewModel(DefaultSettings())
	require.NoError(t, m.AddSeries(NewLineSeries("a", PaletteColor(0))))
	assert.ErrorIs(t, m.AddSeries(NewLineSeries("a", PaletteColor(1))), ErrDuplicateSeries)
	assert.ErrorIs(t, m.Append("missing", Point2D{}), ErrSeriesNotFound)

	require.NoError(t, m.EnsureSeries("v", KindVector))
	assert.ErrorIs(t, m.EnsureSeries("v", KindLine), ErrKindMismatch)
	require.NoError(t, m.AppendVector("v", Vector2D{DX: 1}))

	assert.Equal(t, []string{"a", "v"}, m.Names())

	require.NoError(t, m.SetVisible("a", false))
	s, ok := m.Series("a")
	require.True(t, ok)
	assert.False(t, s.Visible)

	m.Clear()
	assert.Empty(t, m.Names())
	assert.True(t, m.Settings().AutoScale, "Clear MUST keep settings")
}

func TestModel_EnsureSeriesAppliesCapacity(t *testing.T) {
	settings := DefaultSettings()
	settings.SeriesCapacity = 3
	m := NewModel(settings)

	require.NoError(t, m.EnsureSeries("live", KindLine))
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Append("live", Point2D{X: float64(i)}))
	}

	s, ok := m.Series("live")
	require.True(t, ok)
	assert.Equal(t, []Point2D{{X: 7}, {X: 8}, {X: 9}}, s.Points, "only the newest points MUST be kept")
}

func TestModel_ConcurrentAppendAndSnapshot(t *testing.T) {
	m := NewModel(DefaultSettings())
	require.NoError(t, m.AddSeries(NewLineSeries("live", PaletteColor(0))))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = m.Append("live", Point2D{X: float64(i), Y: float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		r := NewRenderer()
		for i := 0; i < 50; i++ {
			r.Render(&recorder{}, Rect{W: 400, H: 300}, m.Snapshot())
		}
	}()
	wg.Wait()

	s, ok := m.Series("live")
	require.True(t, ok)
	assert.Equal(t, 500, s.Len())
}

func TestRenderPNG(t *testing.T) {
	settings := DefaultSettings()
	settings.XLabel = "t"
	settings.YLabel = "value"
	m := NewModel(settings)
	require.NoError(t, m.EnsureSeries("line", KindLine))
	require.NoError(t, m.EnsureSeries("bars", KindBar))
	require.NoError(t, m.EnsureSeries("arrows", KindVector))
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Append("line", Point2D{X: float64(i), Y: float64(i * i)}))
		require.NoError(t, m.Append("bars", Point2D{X: float64(i), Y: float64(i)}))
		require.NoError(t, m.AppendVector("arrows", Vector2D{X: float64(i), Y: 10, DX: 1, DY: 2}))
	}

	var buf bytes.Buffer
	_, err := RenderPNG(m, 640, 480, &buf)
	require.NoError(t, err)

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())

	_, err = RenderPNG(m, 0, 10, &buf)
	assert.Error(t, err)
}

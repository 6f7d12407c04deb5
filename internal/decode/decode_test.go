package decode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/chart"
	"github.com/srg/qlink/internal/logsink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestCSVDecoder(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []Sample
	}{
		{
			name: "x y",
			line: "1.5, 20",
			want: []Sample{{Series: DefaultSeries, Kind: chart.KindLine, Point: chart.Point2D{X: 1.5, Y: 20}}},
		},
		{
			name: "labelled whitespace",
			line: "temp\t3 21.5",
			want: []Sample{{Series: "temp", Kind: chart.KindLine, Point: chart.Point2D{X: 3, Y: 21.5}}},
		},
		{
			name: "vector",
			line: "wind;0;0;1;-1",
			want: []Sample{{Series: "wind", Kind: chart.KindVector, Vector: chart.Vector2D{X: 0, Y: 0, DX: 1, DY: -1}}},
		},
		{name: "blank", line: "   "},
		{name: "comment", line: "# header"},
		{name: "delimiters only", line: ",,;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCSVDecoder(chart.KindLine).Decode(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVDecoder_ImplicitXPerSeries(t *testing.T) {
	d := NewCSVDecoder(chart.KindBar)

	var xs []float64
	for _, line := range []string{"10", "a 5", "11", "a 6", "12"} {
		samples, err := d.Decode(line)
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, chart.KindBar, samples[0].Kind)
		if samples[0].Series == DefaultSeries {
			xs = append(xs, samples[0].Point.X)
		}
	}
	assert.Equal(t, []float64{0, 1, 2}, xs, "implicit x MUST count per series")
}

func TestCSVDecoder_Malformed(t *testing.T) {
	d := NewCSVDecoder(chart.KindLine)
	for _, line := range []string{"1 2 3", "label", "1 x", "a 1 2 3 4 5", "1 nan", "NaN", "temp 2 inf", "wind 0 0 1 -Inf"} {
		_, err := d.Decode(line)
		assert.ErrorIs(t, err, ErrMalformed, line)
	}
}

const luaScript = `
function decode(line)
  local kind, a, b, c, d = line:match("^(%a+)=([%-%d%.]+),([%-%d%.]+),?([%-%d%.]*),?([%-%d%.]*)$")
  if kind == nil then
    return
  end
  if kind == "v" then
    emit("wind", tonumber(a), tonumber(b), tonumber(c), tonumber(d))
  elseif kind == "b" then
    bar("counts", tonumber(a), tonumber(b))
  else
    emit(kind, tonumber(a), tonumber(b))
  end
end
`

func TestLuaDecoder_Emits(t *testing.T) {
	d, err := NewLuaDecoder(luaScript, "test.lua", quietLogger())
	require.NoError(t, err)
	defer d.Close()

	got, err := d.Decode("t=1,20.5")
	require.NoError(t, err)
	assert.Equal(t, []Sample{{Series: "t", Kind: chart.KindLine, Point: chart.Point2D{X: 1, Y: 20.5}}}, got)

	got, err = d.Decode("v=0,0,2,-1")
	require.NoError(t, err)
	assert.Equal(t, []Sample{{Series: "wind", Kind: chart.KindVector, Vector: chart.Vector2D{DX: 2, DY: -1}}}, got)

	got, err = d.Decode("b=3,7")
	require.NoError(t, err)
	assert.Equal(t, chart.KindBar, got[0].Kind)

	got, err = d.Decode("garbage")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLuaDecoder_Print(t *testing.T) {
	d, err := NewLuaDecoder(`function decode(line) print("got", line, 1) end`, "print.lua", quietLogger())
	require.NoError(t, err)
	defer d.Close()

	var printed []string
	d.OnPrint = func(s string) { printed = append(printed, s) }

	_, err = d.Decode("x")
	require.NoError(t, err)
	assert.Equal(t, []string{"got\tx\t1"}, printed)
}

func TestLuaDecoder_Errors(t *testing.T) {
	t.Run("syntax error reports line", func(t *testing.T) {
		_, err := NewLuaDecoder("function decode(line)\n  emit(\nend", "bad.lua", quietLogger())
		var luaErr *LuaError
		require.True(t, errors.As(err, &luaErr), "error MUST be a LuaError, got %v", err)
		assert.Equal(t, "syntax", luaErr.Type)
		assert.Equal(t, "bad.lua", luaErr.Source)
		assert.Positive(t, luaErr.Line)
	})

	t.Run("missing decode", func(t *testing.T) {
		_, err := NewLuaDecoder("x = 1", "nodecode.lua", quietLogger())
		assert.ErrorIs(t, err, ErrNoDecode)
	})

	t.Run("empty script", func(t *testing.T) {
		_, err := NewLuaDecoder("  ", "empty.lua", quietLogger())
		assert.ErrorIs(t, err, &LuaError{Type: "syntax"})
	})

	t.Run("runtime error keeps decoder usable", func(t *testing.T) {
		d, err := NewLuaDecoder(`function decode(line)
  if line == "boom" then error("boom") end
  emit("s", 1, 2)
end`, "rt.lua", quietLogger())
		require.NoError(t, err)
		defer d.Close()

		_, err = d.Decode("boom")
		assert.ErrorIs(t, err, &LuaError{Type: "runtime"})

		got, err := d.Decode("ok")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("bad emit arguments", func(t *testing.T) {
		d, err := NewLuaDecoder(`function decode(line) emit("s", "x", 2) end`, "args.lua", quietLogger())
		require.NoError(t, err)
		defer d.Close()

		_, err = d.Decode("1")
		assert.Error(t, err)
	})

	t.Run("non-finite emit", func(t *testing.T) {
		d, err := NewLuaDecoder(`function decode(line) emit("s", 1, 0/0) end`, "nan.lua", quietLogger())
		require.NoError(t, err)
		defer d.Close()

		got, err := d.Decode("1")
		assert.ErrorIs(t, err, &LuaError{Type: "runtime"})
		assert.Empty(t, got)
	})

	t.Run("closed decoder", func(t *testing.T) {
		d, err := NewLuaDecoder(`function decode(line) end`, "closed.lua", quietLogger())
		require.NoError(t, err)
		d.Close()

		_, err = d.Decode("1")
		assert.Error(t, err)
	})
}

func TestFeeder_FeedText(t *testing.T) {
	model := chart.NewModel(chart.DefaultSettings())
	f := NewFeeder(model, NewCSVDecoder(chart.KindLine), quietLogger())

	added := f.FeedText("1 10\r\n2 20\nnot a number\n\nwind 0 0 1 1\n")
	assert.Equal(t, 3, added)

	assert.Equal(t, []string{DefaultSeries, "wind"}, model.Names())
	data, ok := model.Series(DefaultSeries)
	require.True(t, ok)
	assert.Equal(t, []chart.Point2D{{X: 1, Y: 10}, {X: 2, Y: 20}}, data.Points)

	stats := f.Stats()
	assert.Equal(t, int64(4), stats.Lines)
	assert.Equal(t, int64(3), stats.Samples)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestFeeder_KindConflictIsAnError(t *testing.T) {
	model := chart.NewModel(chart.DefaultSettings())
	f := NewFeeder(model, NewCSVDecoder(chart.KindLine), quietLogger())

	_, err := f.FeedLine("s 1 2")
	require.NoError(t, err)
	_, err = f.FeedLine("s 0 0 1 1")
	assert.ErrorIs(t, err, chart.ErrKindMismatch)
}

func TestFeeder_RunConsumesReceivedEvents(t *testing.T) {
	model := chart.NewModel(chart.DefaultSettings())
	f := NewFeeder(model, NewCSVDecoder(chart.KindLine), quietLogger())

	sink := logsink.MustNew(16)
	sub := sink.Subscribe(16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx, sub.C())
	}()

	sink.Append(logsink.KindStatus, "Opening port: COM3 at 9600 baud")
	sink.Append(logsink.KindSent, "TX: 5 5")
	sink.Append(logsink.KindReceived, "1 2\n3 4")

	assert.Eventually(t, func() bool { return f.Stats().Samples == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done

	data, ok := model.Series(DefaultSeries)
	require.True(t, ok)
	assert.Equal(t, 2, data.Len(), "only received events MUST be decoded")
}

package decode

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/chart"
)

// LuaError describes a script failure.
type LuaError struct {
	Type       string // "syntax", "runtime"
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *LuaError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *LuaError) Unwrap() error {
	return e.Underlying
}

func (e *LuaError) Is(target error) bool {
	var luaErr *LuaError
	if errors.As(target, &luaErr) {
		return e.Type == luaErr.Type
	}
	return false
}

// LuaDecoder runs a user script for every line. The script defines
//
//	function decode(line) ... end
//
// and reports samples with emit(series, x, y), emit(series, x, y, dx, dy) for vectors,
// or bar(series, x, y). print output goes to OnPrint, or to the logger when unset.
type LuaDecoder struct {
	mu      sync.Mutex
	state   *lua.State
	logger  *logrus.Logger
	name    string
	pending []Sample

	// OnPrint receives each line printed by the script.
	OnPrint func(string)
}

// LoadLuaDecoder reads a decoder script from path.
func LoadLuaDecoder(path string, logger *logrus.Logger) (*LuaDecoder, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return NewLuaDecoder(string(content), path, logger)
}

// NewLuaDecoder compiles and runs script, which must define a global decode function.
func NewLuaDecoder(script, name string, logger *logrus.Logger) (*LuaDecoder, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(script) == "" {
		return nil, &LuaError{Type: "syntax", Message: "empty script", Source: name}
	}

	d := &LuaDecoder{
		state:  lua.NewState(),
		logger: logger,
		name:   name,
	}
	L := d.state
	L.OpenLibs()
	d.registerPrint()
	d.registerEmitters()

	if status := L.LoadString(script); status != 0 {
		err := d.parseLuaError("syntax")
		d.Close()
		return nil, err
	}
	if err := L.Call(0, 0); err != nil {
		d.Close()
		return nil, &LuaError{Type: "runtime", Message: err.Error(), Source: name, Underlying: err}
	}

	L.GetGlobal("decode")
	isFn := L.IsFunction(-1)
	L.Pop(1)
	if !isFn {
		d.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoDecode, name)
	}

	logger.WithField("script", name).Debug("Lua decoder loaded")
	return d, nil
}

// parseLuaError pops the error message left by a failed load and extracts its line.
func (d *LuaDecoder) parseLuaError(errType string) *LuaError {
	L := d.state
	if L.GetTop() == 0 {
		return &LuaError{Type: errType, Message: "unknown Lua error", Source: d.name}
	}

	errMsg := "non-string error object"
	if L.IsString(-1) {
		errMsg = L.ToString(-1)
	}
	L.Pop(1)

	line := 0
	message := errMsg
	// chunk messages look like `[string "..."]:3: unexpected symbol`
	if parts := strings.SplitN(errMsg, ":", 3); len(parts) == 3 {
		if n, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && n == 1 {
			message = strings.TrimSpace(parts[2])
		}
	}

	return &LuaError{Type: errType, Message: message, Line: line, Source: d.name}
}

func (d *LuaDecoder) registerPrint() {
	L := d.state
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%t", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}

		line := strings.Join(parts, "\t")
		if d.OnPrint != nil {
			d.OnPrint(line)
		} else {
			d.logger.WithField("script", d.name).Info(line)
		}
		return 0
	})
	L.SetGlobal("print")
}

func (d *LuaDecoder) registerEmitters() {
	L := d.state

	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		if top != 3 && top != 5 {
			L.RaiseError("emit() expects (series, x, y) or (series, x, y, dx, dy)")
		}
		values := numberArgs(L, "emit", top)
		series := seriesArg(L)

		if top == 5 {
			d.pending = append(d.pending, Sample{
				Series: series,
				Kind:   chart.KindVector,
				Vector: chart.Vector2D{X: values[0], Y: values[1], DX: values[2], DY: values[3]},
			})
			return 0
		}
		d.pending = append(d.pending, Sample{
			Series: series,
			Kind:   chart.KindLine,
			Point:  chart.Point2D{X: values[0], Y: values[1]},
		})
		return 0
	})
	L.SetGlobal("emit")

	L.PushGoFunction(func(L *lua.State) int {
		if L.GetTop() != 3 {
			L.RaiseError("bar() expects (series, x, y)")
		}
		values := numberArgs(L, "bar", 3)
		d.pending = append(d.pending, Sample{
			Series: seriesArg(L),
			Kind:   chart.KindBar,
			Point:  chart.Point2D{X: values[0], Y: values[1]},
		})
		return 0
	})
	L.SetGlobal("bar")
}

func seriesArg(L *lua.State) string {
	if L.IsString(1) {
		if s := L.ToString(1); s != "" {
			return s
		}
	}
	return DefaultSeries
}

// numberArgs returns arguments 2..top as finite numbers, raising a Lua error otherwise.
func numberArgs(L *lua.State, fn string, top int) []float64 {
	values := make([]float64, 0, top-1)
	for i := 2; i <= top; i++ {
		if !L.IsNumber(i) {
			L.RaiseError(fmt.Sprintf("%s() argument %d must be a number", fn, i))
		}
		v := L.ToNumber(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			L.RaiseError(fmt.Sprintf("%s() argument %d must be finite, got %v", fn, i, v))
		}
		values = append(values, v)
	}
	return values
}

// Decode calls decode(line) and returns the samples it emitted.
func (d *LuaDecoder) Decode(line string) (samples []Sample, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == nil {
		return nil, errors.New("lua decoder is closed")
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("script", d.name).Errorf("Lua decode panic (recovered): %v", r)
			samples = nil
			err = &LuaError{Type: "runtime", Message: fmt.Sprint(r), Source: d.name}
		}
	}()

	d.pending = nil
	L := d.state
	L.GetGlobal("decode")
	L.PushString(line)
	if callErr := L.Call(1, 0); callErr != nil {
		// a failed call may leave the stack inconsistent
		L.SetTop(0)
		return nil, &LuaError{Type: "runtime", Message: callErr.Error(), Source: d.name, Underlying: callErr}
	}

	samples = d.pending
	d.pending = nil
	return samples, nil
}

// Close releases the Lua state.
func (d *LuaDecoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != nil {
		d.state.Close()
		d.state = nil
	}
}

package chart

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Settings are the model-level presentation options.
type Settings struct {
	XLabel    string
	YLabel    string
	AutoScale bool
	// Fixed is used when AutoScale is off, or when no visible series has data.
	Fixed Bounds
	// SeriesCapacity is applied to series created by EnsureSeries.
	SeriesCapacity int
}

// DefaultSettings returns autoscaling settings with a 0..20 × 0..100 fallback range.
func DefaultSettings() Settings {
	return Settings{
		XLabel:    "X",
		YLabel:    "Y",
		AutoScale: true,
		Fixed:     Bounds{MinX: 0, MaxX: 20, MinY: 0, MaxY: 100},
	}
}

// Model is the thread-safe chart state: ordered series plus axis settings.
// Insertion order is the draw order and the legend order.
type Model struct {
	mu       sync.RWMutex
	series   *orderedmap.OrderedMap[string, *Series]
	settings Settings
}

// Snapshot is an immutable point-in-time copy of a Model for rendering.
type Snapshot struct {
	Settings Settings
	Series   []Series
}

// NewModel creates an empty model with the given settings.
func NewModel(settings Settings) *Model {
	return &Model{
		series:   orderedmap.New[string, *Series](),
		settings: settings,
	}
}

// Settings returns the current settings.
func (m *Model) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings applies fn to the settings under the model lock.
func (m *Model) UpdateSettings(fn func(*Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.settings)
}

// AddSeries registers s at the end of the draw order. The model takes ownership of s.
func (m *Model) AddSeries(s *Series) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("series must have a name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.series.Get(s.Name); exists {
		return fmt.Errorf("%w: %q", ErrDuplicateSeries, s.Name)
	}
	m.series.Set(s.Name, s)
	return nil
}

// EnsureSeries returns the named series, creating it with kind and the next palette
// colour when absent. An existing series of another kind is an error.
func (m *Model) EnsureSeries(name string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.series.Get(name); exists {
		if s.Kind != kind {
			return fmt.Errorf("%w: series %q is %s, not %s", ErrKindMismatch, name, s.Kind, kind)
		}
		return nil
	}
	s := NewSeries(kind, name, PaletteColor(m.series.Len()))
	s.Capacity = m.settings.SeriesCapacity
	m.series.Set(name, s)
	return nil
}

// Append adds a point to the named line or bar series.
func (m *Model) Append(name string, p Point2D) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, name)
	}
	return s.Add(p)
}

// AppendVector adds a vector to the named vector series.
func (m *Model) AppendVector(name string, v Vector2D) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, name)
	}
	return s.AddVector(v)
}

// SetVisible toggles whether the named series is drawn and listed in the legend.
func (m *Model) SetVisible(name string, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.series.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, name)
	}
	s.Visible = visible
	return nil
}

// Series returns a copy of the named series.
func (m *Model) Series(name string) (Series, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.series.Get(name)
	if !ok {
		return Series{}, false
	}
	return s.Clone(), true
}

// Names returns series names in draw order.
func (m *Model) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, m.series.Len())
	for pair := m.series.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Clear removes every series. Settings are kept.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = orderedmap.New[string, *Series]()
}

// Snapshot deep-copies the model so rendering never races with producers.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Settings: m.settings,
		Series:   make([]Series, 0, m.series.Len()),
	}
	for pair := m.series.Oldest(); pair != nil; pair = pair.Next() {
		snap.Series = append(snap.Series, pair.Value.Clone())
	}
	return snap
}

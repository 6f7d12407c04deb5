// Package profiler holds the survey line settings of a Qliner profiler: where the
// probe stations lie along the line and how deep each one is.
package profiler

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/qlink/internal/chart"
	"gopkg.in/yaml.v3"
)

// Settings are the profiler line settings. Positions and depths are in metres,
// LineHeading in degrees clockwise from north.
type Settings struct {
	Site  string `yaml:"site,omitempty"`
	Notes string `yaml:"notes,omitempty"`

	// PositionVertical is the probe height above the surface datum.
	PositionVertical float64 `yaml:"position_vertical" default:"1.00"`
	Spacing          float64 `yaml:"spacing" default:"1.00"`
	LineHeading      float64 `yaml:"line_heading" default:"0"`
	FirstPosition    float64 `yaml:"first_position" default:"0.00"`
	FirstDepth       float64 `yaml:"first_depth" default:"0.70"`
	LastPosition     float64 `yaml:"last_position" default:"10.00"`
	LastDepth        float64 `yaml:"last_depth" default:"0.70"`
}

var ErrInvalidSettings = errors.New("invalid profiler settings")

// Default returns the factory settings.
func Default() Settings {
	var s Settings
	defaults.SetDefaults(&s)
	return s
}

// Validate reports every problem found, joined.
func (s Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidSettings}, args...)...))
		}
	}

	for key, v := range s.numbers() {
		check(!math.IsNaN(*v) && !math.IsInf(*v, 0), "%s must be a finite number", key)
	}
	check(s.Spacing > 0, "spacing must be > 0, got %.2f", s.Spacing)
	check(s.LastPosition > s.FirstPosition, "last_position (%.2f) must be greater than first_position (%.2f)", s.LastPosition, s.FirstPosition)
	check(s.FirstDepth >= 0, "first_depth must be >= 0, got %.2f", s.FirstDepth)
	check(s.LastDepth >= 0, "last_depth must be >= 0, got %.2f", s.LastDepth)
	check(s.LineHeading >= 0 && s.LineHeading < 360, "line_heading must be in [0, 360), got %.0f", s.LineHeading)

	return errors.Join(errs...)
}

// numbers maps the yaml key of every numeric field to its address.
func (s *Settings) numbers() map[string]*float64 {
	return map[string]*float64{
		"position_vertical": &s.PositionVertical,
		"spacing":           &s.Spacing,
		"line_heading":      &s.LineHeading,
		"first_position":    &s.FirstPosition,
		"first_depth":       &s.FirstDepth,
		"last_position":     &s.LastPosition,
		"last_depth":        &s.LastDepth,
	}
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	var s Settings
	keys := []string{"site", "notes"}
	for k := range s.numbers() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns value to the field named by its yaml key. The result is not validated.
func (s *Settings) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "site":
		s.Site = value
		return nil
	case "notes":
		s.Notes = value
		return nil
	}

	field, ok := s.numbers()[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidSettings, key, value)
	}
	*field = v
	return nil
}

// Load reads settings from a YAML file. Keys missing from the file keep their defaults.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return s, nil
}

// Save validates s and writes it to path as YAML.
func (s Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", path, err)
	}
	return nil
}

// Station is one probe position along the line.
type Station struct {
	Index    int
	Position float64
	Depth    float64
	// Level is the probe tip relative to the surface datum: PositionVertical - Depth.
	Level float64
	// Easting and Northing are offsets from the line start along LineHeading.
	Easting  float64
	Northing float64
}

// Stations lists the stations from FirstPosition every Spacing up to LastPosition, with
// depth interpolated linearly between FirstDepth and LastDepth. LastPosition is always
// a station even when it is not a whole number of spacings from the start.
func (s Settings) Stations() ([]Station, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	const eps = 1e-9
	span := s.LastPosition - s.FirstPosition
	n := int(math.Floor(span/s.Spacing + eps))

	positions := make([]float64, 0, n+2)
	for i := 0; i <= n; i++ {
		positions = append(positions, s.FirstPosition+float64(i)*s.Spacing)
	}
	if s.LastPosition-positions[len(positions)-1] > eps*math.Max(1, span) {
		positions = append(positions, s.LastPosition)
	}

	heading := s.LineHeading * math.Pi / 180
	stations := make([]Station, len(positions))
	for i, p := range positions {
		t := (p - s.FirstPosition) / span
		depth := s.FirstDepth + t*(s.LastDepth-s.FirstDepth)
		along := p - s.FirstPosition
		stations[i] = Station{
			Index:    i,
			Position: p,
			Depth:    depth,
			Level:    s.PositionVertical - depth,
			Easting:  along * math.Sin(heading),
			Northing: along * math.Cos(heading),
		}
	}
	return stations, nil
}

// ProfileSeries returns the stations as a line series of position against negated
// depth, so deeper stations plot lower.
func (s Settings) ProfileSeries(name string) (*chart.Series, error) {
	stations, err := s.Stations()
	if err != nil {
		return nil, err
	}

	series := chart.NewLineSeries(name, chart.PaletteColor(0))
	for _, st := range stations {
		if err := series.Add(chart.Point2D{X: st.Position, Y: -st.Depth}); err != nil {
			return nil, err
		}
	}
	return series, nil
}

// ProfileModel builds a chart model holding the profile, labelled for preview.
func (s Settings) ProfileModel() (*chart.Model, error) {
	series, err := s.ProfileSeries("Profile")
	if err != nil {
		return nil, err
	}

	settings := chart.DefaultSettings()
	settings.XLabel = "Position (m)"
	settings.YLabel = "Depth (m)"
	model := chart.NewModel(settings)
	if err := model.AddSeries(series); err != nil {
		return nil, err
	}
	return model, nil
}

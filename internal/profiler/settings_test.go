package profiler

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, 1.00, s.PositionVertical)
	assert.Equal(t, 1.00, s.Spacing)
	assert.Equal(t, 0.0, s.LineHeading)
	assert.Equal(t, 0.00, s.FirstPosition)
	assert.Equal(t, 0.70, s.FirstDepth)
	assert.Equal(t, 10.00, s.LastPosition)
	assert.Equal(t, 0.70, s.LastDepth)
	assert.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{name: "zero spacing", mutate: func(s *Settings) { s.Spacing = 0 }},
		{name: "reversed line", mutate: func(s *Settings) { s.LastPosition = -1 }},
		{name: "negative depth", mutate: func(s *Settings) { s.FirstDepth = -0.1 }},
		{name: "heading out of range", mutate: func(s *Settings) { s.LineHeading = 360 }},
		{name: "nan", mutate: func(s *Settings) { s.LastDepth = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestSet(t *testing.T) {
	s := Default()

	require.NoError(t, s.Set("spacing", "0.5"))
	require.NoError(t, s.Set(" Last_Depth ", "1.2"))
	require.NoError(t, s.Set("site", "North field"))
	assert.Equal(t, 0.5, s.Spacing)
	assert.Equal(t, 1.2, s.LastDepth)
	assert.Equal(t, "North field", s.Site)

	assert.ErrorIs(t, s.Set("spacing", "wide"), ErrInvalidSettings)
	assert.ErrorContains(t, s.Set("colour", "red"), "unknown setting")
	assert.Contains(t, Keys(), "line_heading")
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s := Default()
	s.Site = "Test site"
	s.LastPosition = 4
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spacing: 2\nline_heading: 0\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Spacing)
	assert.Equal(t, 0.70, s.FirstDepth)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spacing: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSave_RejectsInvalid(t *testing.T) {
	s := Default()
	s.Spacing = -1
	assert.ErrorIs(t, s.Save(filepath.Join(t.TempDir(), "x.yaml")), ErrInvalidSettings)
}

func TestStations(t *testing.T) {
	s := Default()
	s.LastPosition = 2.5
	s.FirstDepth = 0.5
	s.LastDepth = 1.0
	s.LineHeading = 90

	stations, err := s.Stations()
	require.NoError(t, err)
	require.Len(t, stations, 4, "last position MUST be a station even off the spacing grid")

	positions := []float64{0, 1, 2, 2.5}
	for i, st := range stations {
		assert.Equal(t, i, st.Index)
		assert.InDelta(t, positions[i], st.Position, 1e-9)
	}
	assert.InDelta(t, 0.5, stations[0].Depth, 1e-9)
	assert.InDelta(t, 0.7, stations[1].Depth, 1e-9)
	assert.InDelta(t, 1.0, stations[3].Depth, 1e-9)
	assert.InDelta(t, 0.0, stations[3].Level, 1e-9)
	assert.InDelta(t, 2.5, stations[3].Easting, 1e-9)
	assert.InDelta(t, 0.0, stations[3].Northing, 1e-9)
}

func TestStations_DefaultLine(t *testing.T) {
	stations, err := Default().Stations()
	require.NoError(t, err)
	assert.Len(t, stations, 11)
	for _, st := range stations {
		assert.InDelta(t, 0.70, st.Depth, 1e-9)
	}
}

func TestProfileModel(t *testing.T) {
	model, err := Default().ProfileModel()
	require.NoError(t, err)

	series, ok := model.Series("Profile")
	require.True(t, ok)
	assert.Equal(t, 11, series.Len())
	assert.InDelta(t, -0.70, series.Points[0].Y, 1e-9)
	assert.Equal(t, "Position (m)", model.Settings().XLabel)

	invalid := Default()
	invalid.Spacing = 0
	_, err = invalid.ProfileModel()
	assert.Error(t, err)
}

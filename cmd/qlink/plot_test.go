package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/qlink/internal/chart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PlotTestSuite struct {
	CommandTestSuite
	dir string
}

func (s *PlotTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.dir = s.T().TempDir()
}

func (s *PlotTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *PlotTestSuite) pngSize(path string) (int, int) {
	f, err := os.Open(path)
	s.Require().NoError(err, "chart file MUST exist")
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	s.Require().NoError(err, "chart MUST be a PNG")
	return cfg.Width, cfg.Height
}

func (s *PlotTestSuite) TestPlotFile() {
	// GOAL: Verify a data file is decoded into named series and rendered at --size
	//
	// TEST SCENARIO: File with comments, two series and a bad line → plot --size 320x240 → PNG, summary counts

	in := s.writeFile("capture.txt", `# depth log
temp 1 20.5
temp 2 21.0
depth,0.7
not a number here at all
`)
	out := filepath.Join(s.dir, "capture.png")

	output, err := s.ExecuteCommand("", "plot", in, "--out", out, "--size", "320x240")
	s.Require().NoError(err, "plot MUST succeed")

	s.Contains(output, "3 samples in 2 series")
	s.Contains(output, "Skipped 1 undecodable lines")

	w, h := s.pngSize(out)
	s.Equal(320, w)
	s.Equal(240, h)
}

func (s *PlotTestSuite) TestPlotStdinWithScript() {
	// GOAL: Verify "-" reads stdin and --script replaces the built-in decoder
	//
	// TEST SCENARIO: Lua decode emitting bars from "k=v" lines → plot - --script → PNG written

	script := s.writeFile("kv.lua", `
function decode(line)
  local k, v = string.match(line, "(%w+)=(%d+)")
  if k then bar("levels", #k, tonumber(v)) end
end
`)
	out := filepath.Join(s.dir, "levels.png")

	output, err := s.ExecuteCommand("a=1\nbb=4\nccc=9\n", "plot", "-", "--out", out, "--script", script)
	s.Require().NoError(err)
	s.Contains(output, "3 samples in 1 series")
	s.FileExists(out)
}

func (s *PlotTestSuite) TestNothingToPlot() {
	// GOAL: Verify input without samples is an error and no file is written
	//
	// TEST SCENARIO: Comments only → ErrNothingToPlot

	in := s.writeFile("empty.txt", "# nothing\n\n")
	out := filepath.Join(s.dir, "empty.png")

	_, err := s.ExecuteCommand("", "plot", in, "--out", out)
	s.Require().ErrorIs(err, ErrNothingToPlot)
	s.NoFileExists(out)
}

func (s *PlotTestSuite) TestInvalidFlags() {
	// GOAL: Verify malformed --size and --fixed values are rejected
	//
	// TEST SCENARIO: --size 100 and --fixed 1,0,0,1 → errors

	in := s.writeFile("d.txt", "1\n")

	_, err := s.ExecuteCommand("", "plot", in, "--size", "100")
	s.ErrorContains(err, "invalid size")

	_, err = s.ExecuteCommand("", "plot", in, "--fixed", "1,0,0,1")
	s.ErrorContains(err, "min must be below max")
}

func TestPlotTestSuite(t *testing.T) {
	suite.Run(t, new(PlotTestSuite))
}

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("1024x768")
	require.NoError(t, err)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)

	w, h, err = parseSize(" 640X480 ")
	require.NoError(t, err)
	assert.Equal(t, []int{640, 480}, []int{w, h})

	for _, bad := range []string{"", "640", "0x10", "ax10", "-1x5"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseFixed(t *testing.T) {
	b, err := parseFixed("0, 10, -5, 5")
	require.NoError(t, err)
	assert.Equal(t, chart.Bounds{MinX: 0, MaxX: 10, MinY: -5, MaxY: 5}, b)

	for _, bad := range []string{"0,1,2", "0,1,a,3", "0,0,0,1"} {
		_, err := parseFixed(bad)
		assert.Error(t, err, bad)
	}
}

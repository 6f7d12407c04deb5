package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/qlink/internal/chart"
	"github.com/srg/qlink/internal/decode"
)

// plotCmd represents the plot command
var plotCmd = &cobra.Command{
	Use:   "plot <file|->",
	Short: "Render recorded data to a PNG chart",
	Long: `Decodes a data file (or stdin when the file is "-") line by line and renders
the samples to a PNG chart.

Each line holds one sample, comma, semicolon, tab or space separated, with an
optional leading series name:
  y            one value; x counts up per series
  x y          a point
  x y dx dy    a vector from (x, y)

Lines starting with # or // are comments. A Lua script given with --script
replaces the built-in decoder: it must define decode(line) and call
emit(series, x, y[, dx, dy]) or bar(series, x, y) for each sample.

Examples:
  qlink plot capture.txt --out capture.png
  qlink plot levels.csv --out levels.png --bar --title-y "Level (m)"
  cat log.txt | qlink plot - --out log.png --script nmea.lua --fixed 0,100,-5,5`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

var (
	plotOut    string
	plotBar    bool
	plotTitleX string
	plotTitleY string
	plotSize   string
	plotFixed  string
	plotScript string
)

func init() {
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "chart.png", "Output PNG file (- for stdout)")
	plotCmd.Flags().BoolVar(&plotBar, "bar", false, "Draw decoded points as bars instead of lines")
	plotCmd.Flags().StringVar(&plotTitleX, "title-x", "X", "X axis label")
	plotCmd.Flags().StringVar(&plotTitleY, "title-y", "Y", "Y axis label")
	plotCmd.Flags().StringVar(&plotSize, "size", "", "Image size WxH (default from config)")
	plotCmd.Flags().StringVar(&plotFixed, "fixed", "", "Fixed axis range minX,maxX,minY,maxY instead of autoscaling")
	plotCmd.Flags().StringVar(&plotScript, "script", "", "Lua file defining decode(line)")
}

// parseSize parses "WxH".
func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: want WxH", s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: want positive WxH", s)
	}
	return width, height, nil
}

// parseFixed parses "minX,maxX,minY,maxY".
func parseFixed(s string) (chart.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return chart.Bounds{}, fmt.Errorf("invalid range %q: want minX,maxX,minY,maxY", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return chart.Bounds{}, fmt.Errorf("invalid range %q: %w", s, err)
		}
		v[i] = f
	}
	b := chart.Bounds{MinX: v[0], MaxX: v[1], MinY: v[2], MaxY: v[3]}
	if b.MinX >= b.MaxX || b.MinY >= b.MaxY {
		return chart.Bounds{}, fmt.Errorf("invalid range %q: min must be below max", s)
	}
	return b, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// createOutput opens path for writing; "-" is stdout.
func createOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func runPlot(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	width, height := cfg.Plot.Width, cfg.Plot.Height
	if plotSize != "" {
		if width, height, err = parseSize(plotSize); err != nil {
			return err
		}
	}

	settings := chart.DefaultSettings()
	settings.XLabel = plotTitleX
	settings.YLabel = plotTitleY
	if plotFixed != "" {
		if settings.Fixed, err = parseFixed(plotFixed); err != nil {
			return err
		}
		settings.AutoScale = false
	}

	kind := chart.KindLine
	if plotBar {
		kind = chart.KindBar
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	decoder, closeDecoder, err := newDecoder(plotScript, kind, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	defer closeDecoder()

	in, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	model := chart.NewModel(settings)
	feeder := decode.NewFeeder(model, decoder, logger)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, err := feeder.FeedLine(line); err != nil {
			logger.WithError(err).WithField("line", lineNo).Warn("Skipping line")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	stats := feeder.Stats()
	if stats.Samples == 0 {
		return fmt.Errorf("%w from %s (%d lines, %d errors)", ErrNothingToPlot, args[0], stats.Lines, stats.Errors)
	}

	bounds, err := writeChart(model, width, height, plotOut, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if plotOut != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d samples in %d series, %s\n",
			plotOut, stats.Samples, len(model.Names()), bounds)
		if stats.Errors > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d undecodable lines\n", stats.Errors)
		}
	}
	return nil
}

package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/chart"
	"github.com/srg/qlink/internal/decode"
)

// newDecoder returns the Lua decoder loaded from script, or a CSV decoder producing
// series of kind when script is empty. The returned closer releases the Lua state.
func newDecoder(script string, kind chart.Kind, scriptOut io.Writer, logger *logrus.Logger) (decode.Decoder, func(), error) {
	if script == "" {
		return decode.NewCSVDecoder(kind), func() {}, nil
	}

	logger.WithField("file", script).Info("Loading decode script")
	d, err := decode.LoadLuaDecoder(script, logger)
	if err != nil {
		return nil, nil, err
	}
	d.OnPrint = func(msg string) {
		fmt.Fprintln(scriptOut, msg)
	}
	return d, d.Close, nil
}

// writeChart renders model into a PNG file at path.
func writeChart(model *chart.Model, width, height int, path string, stdout io.Writer) (chart.Bounds, error) {
	f, err := createOutput(path, stdout)
	if err != nil {
		return chart.Bounds{}, err
	}

	bounds, err := chart.RenderPNG(model, width, height, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return chart.Bounds{}, fmt.Errorf("failed to write chart %s: %w", path, err)
	}
	return bounds, nil
}

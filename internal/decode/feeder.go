package decode

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/qlink/internal/chart"
	"github.com/srg/qlink/internal/logsink"
)

// FeederStats counts what a Feeder has processed.
type FeederStats struct {
	Lines   int64
	Samples int64
	Errors  int64
}

// Feeder decodes received text and appends the samples to a chart model, creating
// series on first use.
type Feeder struct {
	model   *chart.Model
	decoder Decoder
	logger  *logrus.Logger

	lines   atomic.Int64
	samples atomic.Int64
	errors  atomic.Int64
}

// NewFeeder creates a feeder writing into model.
func NewFeeder(model *chart.Model, decoder Decoder, logger *logrus.Logger) *Feeder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Feeder{model: model, decoder: decoder, logger: logger}
}

// FeedLine decodes one line and appends its samples. It returns the number of samples added.
func (f *Feeder) FeedLine(line string) (int, error) {
	f.lines.Add(1)

	samples, err := f.decoder.Decode(line)
	if err != nil {
		f.errors.Add(1)
		return 0, err
	}

	for i, s := range samples {
		if err := f.add(s); err != nil {
			f.errors.Add(1)
			return i, fmt.Errorf("failed to add %s: %w", s, err)
		}
		f.samples.Add(1)
	}
	return len(samples), nil
}

func (f *Feeder) add(s Sample) error {
	if err := f.model.EnsureSeries(s.Series, s.Kind); err != nil {
		return err
	}
	if s.Kind == chart.KindVector {
		return f.model.AppendVector(s.Series, s.Vector)
	}
	return f.model.Append(s.Series, s.Point)
}

// FeedText splits text into lines and feeds each one. Decode failures are logged and
// skipped.
func (f *Feeder) FeedText(text string) int {
	added := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		n, err := f.FeedLine(line)
		added += n
		if err != nil {
			f.logger.WithError(err).WithField("line", line).Debug("Skipping undecodable line")
		}
	}
	return added
}

// Run feeds every received event from events until ctx is done or events is closed.
func (f *Feeder) Run(ctx context.Context, events <-chan logsink.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == logsink.KindReceived {
				f.FeedText(ev.Text)
			}
		}
	}
}

// Stats returns the current counters.
func (f *Feeder) Stats() FeederStats {
	return FeederStats{
		Lines:   f.lines.Load(),
		Samples: f.samples.Load(),
		Errors:  f.errors.Load(),
	}
}

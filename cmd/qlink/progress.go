package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/srg/qlink/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// Progress shows a one-line status with elapsed (or remaining) seconds while a
// blocking step runs. It is single-use: Start once, Stop at least once.
type Progress struct {
	out       io.Writer
	prefix    string
	phase     atomic.Value // string
	countdown time.Duration

	cancel   context.CancelFunc
	done     <-chan struct{}
	stopOnce sync.Once
}

// NewProgress creates a progress line that counts up.
func NewProgress(out io.Writer, prefix, phase string) *Progress {
	p := &Progress{out: out, prefix: prefix}
	p.phase.Store(phase)
	return p
}

// NewCountdown creates a progress line that counts down from d.
func NewCountdown(out io.Writer, prefix, phase string, d time.Duration) *Progress {
	p := NewProgress(out, prefix, phase)
	p.countdown = d
	return p
}

// Start begins redrawing the line in the background.
func (p *Progress) Start() {
	if p.done != nil {
		panic("Progress.Start called more than once")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	started := time.Now()
	p.draw(0)

	p.done = groutine.Go(ctx, "cli-progress", func(ctx context.Context) {
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.draw(time.Since(started))
			}
		}
	})
}

// SetPhase changes the text shown in parentheses.
func (p *Progress) SetPhase(phase string) {
	p.phase.Store(phase)
}

func (p *Progress) draw(elapsed time.Duration) {
	phase := p.phase.Load().(string)
	seconds := int(elapsed.Seconds())
	if p.countdown > 0 {
		// round to the nearest second, never below zero
		seconds = max(0, int((p.countdown-elapsed).Seconds()+0.5))
	}

	prefix := color.New(color.Bold).Sprint(p.prefix)
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", prefix, phase)
	}
}

// Stop ends the background redraw and clears the line. Safe to call more than once.
func (p *Progress) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel == nil {
			return
		}
		p.cancel()
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}

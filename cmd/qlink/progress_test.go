package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

// syncBuffer guards a bytes.Buffer written by the progress goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgress_CountdownAndStop(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	out := &syncBuffer{}
	p := NewCountdown(out, "Scanning", "Scanning", 3*time.Second)
	p.Start()
	time.Sleep(3 * progressUpdateInterval)
	p.SetPhase("Finishing")
	time.Sleep(2 * progressUpdateInterval)
	p.Stop()
	p.Stop()

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "\rScanning (Scanning 3s)"), "first draw MUST show the full countdown: %q", got)
	assert.Contains(t, got, "(Finishing ")
	assert.True(t, strings.HasSuffix(got, clearLineSequence), "Stop MUST clear the line")
	assert.Equal(t, 1, strings.Count(got, clearLineSequence), "second Stop MUST be a no-op")
}

func TestProgress_StopWithoutStart(t *testing.T) {
	out := &syncBuffer{}
	NewProgress(out, "Connecting", "Opening").Stop()
	assert.Empty(t, out.String())
}

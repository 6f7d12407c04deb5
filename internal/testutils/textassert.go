// Package testutils holds assertion helpers that print readable diffs for
// multi-line command output.
package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of *testing.T the asserters need.
type TestingT interface {
	Errorf(format string, args ...any)
	Helper()
}

// TextOptions control how texts are normalised before comparison.
type TextOptions struct {
	IgnoreTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines         bool `default:"false"`
	TrimSpace                bool `default:"true"`
	Colors                   bool `default:"false"`
}

// TextOption mutates TextOptions.
type TextOption func(*TextOptions)

// WithIgnoreEmptyLines drops blank lines from both sides.
func WithIgnoreEmptyLines() TextOption {
	return func(o *TextOptions) { o.IgnoreEmptyLines = true }
}

// WithExactWhitespace compares whitespace byte for byte.
func WithExactWhitespace() TextOption {
	return func(o *TextOptions) {
		o.IgnoreTrailingWhitespace = false
		o.TrimSpace = false
	}
}

// WithColors colours the unified diff and makes whitespace visible.
func WithColors() TextOption {
	return func(o *TextOptions) { o.Colors = true }
}

// TextAsserter compares texts and reports a unified diff on mismatch.
type TextAsserter struct {
	t    TestingT
	opts TextOptions
}

// NewTextAsserter creates an asserter with default options.
func NewTextAsserter(t TestingT, opts ...TextOption) *TextAsserter {
	var o TextOptions
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &TextAsserter{t: t, opts: o}
}

// Assert fails the test when actual differs from expected after normalisation.
func (a *TextAsserter) Assert(actual, expected string) bool {
	a.t.Helper()
	if diff := a.Diff(actual, expected); diff != "" {
		a.t.Errorf("Text assertion failed - unified diff:\n%s", diff)
		return false
	}
	return true
}

// Diff returns the unified diff from expected to actual, or "" when they match.
func (a *TextAsserter) Diff(actual, expected string) string {
	exp, act := a.normalize(expected), a.normalize(actual)
	if exp == act {
		return ""
	}

	edits := myers.ComputeEdits("", exp, act)
	diff := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", exp, edits))
	if a.opts.Colors {
		diff = colorize(diff)
	}
	return diff
}

func (a *TextAsserter) normalize(text string) string {
	if a.opts.TrimSpace {
		text = strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if a.opts.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t\r")
		}
		if a.opts.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func colorize(diff string) string {
	header := color.New(color.FgYellow)
	hunk := color.New(color.FgCyan)
	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)
	for _, c := range []*color.Color{header, hunk, removed, added} {
		c.EnableColor()
	}

	visible := strings.NewReplacer(" ", "·", "\t", "→")
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = header.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(visible.Replace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(visible.Replace(line))
		}
	}
	return strings.Join(lines, "\n")
}

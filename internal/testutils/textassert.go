//go:build test

package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T the asserter needs
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TextAssertOptions controls how CLI output is normalized before comparing.
// The defaults suit tabular command output: surrounding blank space and
// trailing padding do not count.
type TextAssertOptions struct {
	TrimSpace                bool `default:"true"`
	IgnoreTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines         bool `default:"false"`
	Colors                   bool `default:"false"`
}

// TextOption adjusts TextAssertOptions
type TextOption func(*TextAssertOptions)

func WithTrimSpace(v bool) TextOption {
	return func(o *TextAssertOptions) { o.TrimSpace = v }
}

func WithIgnoreTrailingWhitespace(v bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreTrailingWhitespace = v }
}

func WithIgnoreEmptyLines(v bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreEmptyLines = v }
}

func WithColors(v bool) TextOption {
	return func(o *TextAssertOptions) { o.Colors = v }
}

// TextAsserter compares command output and reports a unified diff on mismatch
type TextAsserter struct {
	t    TestingT
	opts TextAssertOptions
}

func NewTextAsserter(t TestingT, opts ...TextOption) *TextAsserter {
	o := TextAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &TextAsserter{t: t, opts: o}
}

// Options returns the effective options
func (ta *TextAsserter) Options() TextAssertOptions {
	return ta.opts
}

// Assert fails the test when actual differs from expected after normalization
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if d := ta.Diff(actual, expected); d != "" {
		ta.t.Errorf("output mismatch:\n%s", d)
		return false
	}
	return true
}

// AssertLines is Assert with the expected output given line by line
func (ta *TextAsserter) AssertLines(actual string, expected ...string) bool {
	return ta.Assert(actual, strings.Join(expected, "\n"))
}

// Diff returns a unified diff of expected vs actual, empty when they match
func (ta *TextAsserter) Diff(actual, expected string) string {
	want, got := ta.normalize(expected), ta.normalize(actual)
	if want == got {
		return ""
	}

	edits := myers.ComputeEdits("", want, got)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
	if !ta.opts.Colors {
		return unified
	}
	return colorize(unified)
}

func (ta *TextAsserter) normalize(s string) string {
	if ta.opts.TrimSpace {
		s = strings.TrimSpace(s)
	}

	var out []string
	for _, line := range strings.Split(s, "\n") {
		if ta.opts.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t\r")
		}
		if ta.opts.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func colorize(diff string) string {
	paint := func(attr color.Attribute) *color.Color {
		c := color.New(attr)
		c.EnableColor()
		return c
	}
	header, hunk := paint(color.FgYellow), paint(color.FgCyan)
	removed, added := paint(color.FgRed), paint(color.FgGreen)

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = header.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(visibleSpace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(visibleSpace(line))
		}
	}
	return strings.Join(lines, "\n")
}

// visibleSpace marks spaces and tabs so whitespace-only differences show up
func visibleSpace(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

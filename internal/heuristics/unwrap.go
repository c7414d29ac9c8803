package heuristics

import (
	"strings"

	"github.com/hpungsan/clipflow/internal/errors"
)

// UnwrapOptions configures SmartUnwrap.
type UnwrapOptions struct {
	// MinConsecutiveLines is how many in-band lines a paragraph needs
	// before it counts as hard-wrapped.
	MinConsecutiveLines int
	// MinLineLength and MaxLineLength bound the wrap-width band, in runes.
	MinLineLength int
	MaxLineLength int
	// LengthTolerance is how far in-band line lengths may spread, as a
	// fraction of the longest one.
	LengthTolerance float64
	// PerParagraphCodeCheck also protects individual code-like paragraphs.
	PerParagraphCodeCheck bool
}

// DefaultUnwrapOptions returns the default options.
func DefaultUnwrapOptions() UnwrapOptions {
	return UnwrapOptions{
		MinConsecutiveLines:   3,
		MinLineLength:         60,
		MaxLineLength:         80,
		LengthTolerance:       0.25,
		PerParagraphCodeCheck: true,
	}
}

// SmartUnwrap joins hard-wrapped prose paragraphs into single lines while
// leaving short lines, lists, quotes, and code alone.
type SmartUnwrap struct {
	opts     UnwrapOptions
	detector *Detector
}

// NewSmartUnwrap creates a SmartUnwrap. A nil detector uses defaults.
func NewSmartUnwrap(opts UnwrapOptions, detector *Detector) *SmartUnwrap {
	def := DefaultUnwrapOptions()
	if opts.MinConsecutiveLines <= 0 {
		opts.MinConsecutiveLines = def.MinConsecutiveLines
	}
	if opts.MinLineLength <= 0 {
		opts.MinLineLength = def.MinLineLength
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = def.MaxLineLength
	}
	if opts.LengthTolerance <= 0 {
		opts.LengthTolerance = def.LengthTolerance
	}
	if detector == nil {
		detector = NewDetector(DefaultDetectorConfig())
	}
	return &SmartUnwrap{opts: opts, detector: detector}
}

// Apply reflows hard-wrapped paragraphs in text.
// Returns EMPTY_INPUT for empty or whitespace-only text. When nothing
// qualifies for reflow the input is returned byte-for-byte.
func (u *SmartUnwrap) Apply(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.NewEmptyInput()
	}
	if !strings.Contains(text, "\n") {
		return text, nil
	}
	if u.detector.ShouldSkipTransformation(text) {
		return text, nil
	}

	crlf := strings.Contains(text, "\r\n")
	work := text
	if crlf {
		work = strings.ReplaceAll(text, "\r\n", "\n")
	}

	var protected []Span
	if u.opts.PerParagraphCodeCheck {
		protected = u.detector.DetectCodeBlocks(work)
	}

	blocks := splitBlocks(work)
	changed := false
	out := make([]string, 0, len(blocks))
	for i, b := range blocks {
		if !b.Blank && !b.Fenced && !overlaps(b.Start, b.End, protected) && !isSubjectLine(blocks, i) {
			if joined, ok := u.reflow(b.Lines); ok {
				out = append(out, joined)
				changed = true
				continue
			}
		}
		out = append(out, b.Text())
	}

	if !changed {
		return text, nil
	}

	result := strings.Join(out, "\n")
	if crlf {
		result = strings.ReplaceAll(result, "\n", "\r\n")
	}
	return result, nil
}

// isSubjectLine reports whether block i is a lone first line followed by a
// blank line, the commit-subject convention.
func isSubjectLine(blocks []block, i int) bool {
	if i != 0 || len(blocks[0].Lines) != 1 {
		return false
	}
	return len(blocks) > 1 && blocks[1].Blank
}

// reflow joins a paragraph's lines if it looks hard-wrapped.
func (u *SmartUnwrap) reflow(lines []string) (string, bool) {
	if len(lines) < 3 {
		return "", false
	}
	if !u.isHardWrapped(lines) || isStructured(lines) {
		return "", false
	}

	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = strings.TrimSpace(line)
	}
	return leadingWhitespace(lines[0]) + strings.Join(parts, " "), true
}

// isHardWrapped applies the length-band evidence test: somewhere in the
// paragraph at least MinConsecutiveLines consecutive lines sit inside the
// band and their lengths cluster within tolerance. Lines outside the band
// break a run but never veto the paragraph.
func (u *SmartUnwrap) isHardWrapped(lines []string) bool {
	lengths := make([]int, len(lines))
	for i, line := range lines {
		lengths[i] = lineLength(line)
	}

	for start := range lengths {
		lo, hi := lengths[start], lengths[start]
		run := 0
		for _, n := range lengths[start:] {
			if n < u.opts.MinLineLength || n > u.opts.MaxLineLength {
				break
			}
			lo, hi = min(lo, n), max(hi, n)
			if float64(hi-lo) > u.opts.LengthTolerance*float64(hi) {
				break
			}
			run++
			if run >= u.opts.MinConsecutiveLines {
				return true
			}
		}
	}
	return false
}

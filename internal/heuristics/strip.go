package heuristics

import (
	"strings"

	"github.com/hpungsan/clipflow/internal/errors"
)

// StripOptions configures WhitespaceStrip.
type StripOptions struct {
	// MaxStripWidth caps how many columns are removed from each line. 0 = no cap.
	MaxStripWidth int
	// TabWidth is the fixed column width of a leading tab.
	TabWidth int
	// TrimTrailing removes trailing spaces and tabs from every line.
	TrimTrailing bool
	// NormalizeLineEndings converts CRLF to LF.
	NormalizeLineEndings bool
}

// DefaultStripOptions returns the default options.
func DefaultStripOptions() StripOptions {
	return StripOptions{TabWidth: 4, TrimTrailing: true, NormalizeLineEndings: true}
}

// WhitespaceStrip removes the indentation common to every non-empty line,
// keeping relative indentation intact.
type WhitespaceStrip struct {
	opts     StripOptions
	detector *Detector
}

// NewWhitespaceStrip creates a WhitespaceStrip. A nil detector uses defaults.
func NewWhitespaceStrip(opts StripOptions, detector *Detector) *WhitespaceStrip {
	if opts.TabWidth <= 0 {
		opts.TabWidth = 4
	}
	if detector == nil {
		detector = NewDetector(DefaultDetectorConfig())
	}
	return &WhitespaceStrip{opts: opts, detector: detector}
}

// Apply strips the common leading whitespace from text.
// Returns EMPTY_INPUT for empty or whitespace-only text. Text the detector
// marks as obvious code is returned unchanged.
func (w *WhitespaceStrip) Apply(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.NewEmptyInput()
	}
	if w.detector.ShouldSkipTransformation(text) {
		return text, nil
	}

	if w.opts.NormalizeLineEndings {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}

	lines := strings.Split(text, "\n")
	if len(lines) == 1 {
		return w.trimTrailing(strings.TrimLeft(lines[0], " \t")), nil
	}

	width := w.commonIndent(lines)
	if w.opts.MaxStripWidth > 0 && width > w.opts.MaxStripWidth {
		width = w.opts.MaxStripWidth
	}

	for i, line := range lines {
		// Unnormalized CRLF lines keep their \r after trimming.
		body, cr := strings.CutSuffix(line, "\r")
		eol := ""
		if cr {
			eol = "\r"
		}
		if strings.TrimSpace(body) == "" {
			lines[i] = eol
			continue
		}
		lines[i] = w.trimTrailing(w.stripColumns(body, width)) + eol
	}

	return strings.Join(lines, "\n"), nil
}

// commonIndent returns the smallest indent width across non-empty lines.
func (w *WhitespaceStrip) commonIndent(lines []string) int {
	common := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		iw := indentWidth(leadingWhitespace(line), w.opts.TabWidth)
		if common < 0 || iw < common {
			common = iw
		}
	}
	return max(common, 0)
}

// stripColumns removes width columns of leading whitespace from line.
// A tab straddling the boundary is replaced by the spaces that remain of it.
func (w *WhitespaceStrip) stripColumns(line string, width int) string {
	removed := 0
	i := 0
	for i < len(line) && removed < width {
		switch line[i] {
		case ' ':
			removed++
		case '\t':
			if removed+w.opts.TabWidth > width {
				keep := removed + w.opts.TabWidth - width
				return strings.Repeat(" ", keep) + line[i+1:]
			}
			removed += w.opts.TabWidth
		default:
			return line[i:]
		}
		i++
	}
	return line[i:]
}

func (w *WhitespaceStrip) trimTrailing(line string) string {
	if !w.opts.TrimTrailing {
		return line
	}
	return strings.TrimRight(line, " \t")
}

// indentWidth measures leading whitespace in columns, tabs counting tabWidth.
func indentWidth(ws string, tabWidth int) int {
	n := 0
	for _, r := range ws {
		if r == '\t' {
			n += tabWidth
		} else {
			n++
		}
	}
	return n
}

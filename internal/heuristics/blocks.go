package heuristics

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// fencePattern matches fenced code block delimiters (``` or ~~~) at the start of a line,
// allowing 0-3 spaces of indentation per CommonMark. Captures the fence characters.
var fencePattern = regexp.MustCompile("^[ ]{0,3}(`{3,}|~{3,})")

// listPattern matches "-", "*", "+", "•" bullets and "1." / "1)" ordered markers.
var listPattern = regexp.MustCompile(`^\s*(?:[-*+•]|\d{1,9}[.)])\s`)

// quotePattern matches a ">" quote prefix.
var quotePattern = regexp.MustCompile(`^\s*>`)

// markdown is shared; goldmark parsers are safe for concurrent use.
var markdown = goldmark.New()

// block is a run of lines in the source text.
type block struct {
	Start  int // byte offset of the first line
	End    int // byte offset after the last line (excluding its newline)
	Lines  []string
	Blank  bool // whitespace-only lines
	Fenced bool // a fenced code block, delimiters included
}

// Text returns the block's lines joined as they appeared.
func (b block) Text() string {
	return strings.Join(b.Lines, "\n")
}

// splitBlocks splits text on "\n" into paragraph, blank, and fenced blocks.
// Joining every block's lines with "\n" reproduces text exactly.
// An unclosed fence runs to the end of the text, as in CommonMark.
func splitBlocks(text string) []block {
	var blocks []block
	var cur *block

	flush := func() {
		if cur != nil {
			blocks = append(blocks, *cur)
			cur = nil
		}
	}

	var fenceChar byte
	fenceLen := 0
	inFence := false

	offset := 0
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		start := offset
		end := start + len(line)
		offset = end + 1

		if inFence {
			cur.Lines = append(cur.Lines, line)
			cur.End = end
			if m := fencePattern.FindStringSubmatch(line); m != nil && m[1][0] == fenceChar && len(m[1]) >= fenceLen {
				inFence = false
				flush()
			}
			continue
		}

		if m := fencePattern.FindStringSubmatch(line); m != nil {
			flush()
			inFence = true
			fenceChar = m[1][0]
			fenceLen = len(m[1])
			cur = &block{Start: start, End: end, Lines: []string{line}, Fenced: true}
			if i == len(lines)-1 {
				flush()
			}
			continue
		}

		blank := strings.TrimSpace(line) == ""
		if cur != nil && cur.Blank != blank {
			flush()
		}
		if cur == nil {
			cur = &block{Start: start, Blank: blank}
		}
		cur.Lines = append(cur.Lines, line)
		cur.End = end
	}
	flush()

	return blocks
}

// hasFence reports whether text contains a fenced code block opener.
func hasFence(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if fencePattern.MatchString(line) {
			return true
		}
	}
	return false
}

// isStructured reports whether a paragraph is a list, a quote, or any other
// markdown construct that is not plain prose. Such paragraphs keep their
// line breaks.
func isStructured(lines []string) bool {
	for _, line := range lines {
		if listPattern.MatchString(line) || quotePattern.MatchString(line) {
			return true
		}
	}
	return !isPlainProse(strings.Join(lines, "\n"))
}

// isPlainProse parses the paragraph as markdown and reports whether every
// top-level node is an ordinary paragraph. Headings, lists, block quotes,
// indented code, HTML blocks, and thematic breaks all return false.
func isPlainProse(paragraph string) bool {
	src := []byte(paragraph)
	doc := markdown.Parser().Parse(gtext.NewReader(src))
	if doc.ChildCount() == 0 {
		return false
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindParagraph {
			return false
		}
	}
	return true
}

// lineLength returns the rune count of line without trailing whitespace.
func lineLength(line string) int {
	return utf8.RuneCountInString(strings.TrimRight(line, " \t\r"))
}

// leadingWhitespace returns the run of spaces and tabs at the start of line.
func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSnippet = `func main() {
    x := compute()
    if x > 0 {
        fmt.Println(x);
    }
    return
}`

const wrappedProse = "Clipboard middleware watches the pasteboard and cleans up text that\n" +
	"arrives with hard line breaks from terminals, emails, and PDF viewers\n" +
	"so that the pasted result reads as one continuous paragraph again."

const codeParagraph = "if x := load(); x != nil {\n    return x;\n}"

func TestConfidence_FencedShortCircuits(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	text := "Here is some prose.\n\n```swift\nlet x = 1\n```\n"

	score := d.Confidence(text)
	assert.True(t, score.Fenced)
	assert.Equal(t, 1.0, score.Value)
	assert.True(t, d.ShouldSkipTransformation(text))
}

func TestConfidence_UnclosedFenceStillCounts(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	assert.Equal(t, 1.0, d.CodeConfidence("~~~\nplain words\n"))
}

func TestConfidence_CodeAboveSkipThreshold(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	score := d.Confidence(goSnippet)
	assert.False(t, score.Fenced)
	assert.Equal(t, 1.0, score.Signals.Braces)
	assert.Equal(t, 0.7, score.Signals.Keywords)
	assert.Equal(t, 1.0, score.Signals.Indentation)
	assert.Equal(t, 0.6, score.Signals.Syntax)
	assert.Equal(t, 1.0, score.Signals.LineEndings)
	assert.InDelta(t, 0.865, score.Value, 1e-9)
	assert.True(t, d.ShouldSkipTransformation(goSnippet))
}

func TestConfidence_ProseIsLow(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	score := d.Confidence(wrappedProse)
	assert.Equal(t, 0.0, score.Value)
	assert.False(t, d.ShouldSkipTransformation(wrappedProse))
	assert.False(t, d.IsConservative(wrappedProse))
}

func TestConfidence_ConservativeBand(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	v := d.CodeConfidence(codeParagraph)
	assert.InDelta(t, 0.695, v, 1e-9)
	assert.True(t, d.IsConservative(codeParagraph))
	assert.False(t, d.ShouldSkipTransformation(codeParagraph))
}

func TestConfidence_Empty(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	assert.Equal(t, 0.0, d.CodeConfidence(""))
}

func TestSignalScores(t *testing.T) {
	tests := []struct {
		name string
		fn   func() float64
		want float64
	}{
		{"braces none", func() float64 { return braceScore("a { b") }, 0},
		{"braces pair", func() float64 { return braceScore("{ }") }, 0.7},
		{"braces many", func() float64 { return braceScore("{ { } }") }, 1.0},
		{"keywords none", func() float64 { return keywordScore("the cat sat") }, 0},
		{"keywords few", func() float64 { return keywordScore("def foo") }, 0.4},
		{"keywords many", func() float64 { return keywordScore("func return var const let") }, 1.0},
		{"indent flat", func() float64 { return indentationScore([]string{"a", "b"}) }, 0},
		{"indent two", func() float64 { return indentationScore([]string{"a", "  b"}) }, 0.6},
		{"indent three", func() float64 { return indentationScore([]string{"a", "  b", "\tc"}) }, 1.0},
		{"syntax arrow", func() float64 { return syntaxScore("x => y", nil) }, 0.6},
		{"syntax directive", func() float64 { return syntaxScore("#include <stdio.h>", []string{"#include <stdio.h>"}) }, 0.6},
		{"syntax many", func() float64 { return syntaxScore("a := b; c != d; e && f", nil) }, 1.0},
		{"endings none", func() float64 { return lineEndingScore([]string{"a", "b"}) }, 0},
		{"endings quarter", func() float64 { return lineEndingScore([]string{"a;", "b", "c", "d"}) }, 0.5},
		{"endings half", func() float64 { return lineEndingScore([]string{"a;", "b"}) }, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn())
		})
	}
}

func TestWeightsOrdering(t *testing.T) {
	assert.Greater(t, weightBraces, weightKeywords)
	assert.Greater(t, weightKeywords, weightIndentation)
	assert.Greater(t, weightIndentation, weightSyntax)
	assert.Greater(t, weightSyntax, weightLineEndings)
	assert.InDelta(t, 1.0, weightBraces+weightKeywords+weightIndentation+weightSyntax+weightLineEndings, 1e-9)
}

func TestNewDetector_Defaults(t *testing.T) {
	d := NewDetector(DetectorConfig{})
	assert.Equal(t, DefaultDetectorConfig(), d.Config())
}

func TestDetectCodeBlocks_Mixed(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	fence := "```\nx := 1\n```"
	text := wrappedProse + "\n\n" + codeParagraph + "\n\n" + fence

	spans := d.DetectCodeBlocks(text)
	require.Len(t, spans, 2)

	assert.Equal(t, codeParagraph, text[spans[0].Start:spans[0].End])
	assert.False(t, spans[0].Fenced)
	assert.Equal(t, fence, text[spans[1].Start:spans[1].End])
	assert.True(t, spans[1].Fenced)
}

func TestDetectCodeBlocks_FenceWithBlankLines(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	text := "intro\n\n```\nfirst\n\nsecond\n```\nafter"

	spans := d.DetectCodeBlocks(text)
	require.Len(t, spans, 1)
	assert.Equal(t, "```\nfirst\n\nsecond\n```", text[spans[0].Start:spans[0].End])
}

func TestDetectCodeBlocks_ProseOnly(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())
	assert.Empty(t, d.DetectCodeBlocks(wrappedProse))
}

func TestReport(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig())

	code := d.Report(goSnippet)
	assert.Equal(t, d.Confidence(goSnippet), code.Confidence)
	assert.True(t, code.Skip)
	assert.True(t, code.Conservative)
	require.NotEmpty(t, code.CodeBlocks)

	prose := d.Report(wrappedProse)
	assert.False(t, prose.Skip)
	assert.False(t, prose.Conservative)
	assert.NotNil(t, prose.CodeBlocks)
	assert.Empty(t, prose.CodeBlocks)
}

package heuristics

import (
	"regexp"
	"sort"
	"strings"
)

// Signal weights. Relative order matters more than the exact values:
// braces > keywords > indentation > syntax markers > line endings.
const (
	weightBraces      = 0.30
	weightKeywords    = 0.25
	weightIndentation = 0.20
	weightSyntax      = 0.15
	weightLineEndings = 0.10
)

// DetectorConfig holds the confidence thresholds.
type DetectorConfig struct {
	// SkipThreshold: at or above, heuristics leave the text untouched.
	SkipThreshold float64
	// ConservativeThreshold: at or above, only non-structural heuristics
	// (whitespace normalization) may run; reflow never does.
	ConservativeThreshold float64
}

// DefaultDetectorConfig returns the default thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{SkipThreshold: 0.8, ConservativeThreshold: 0.5}
}

// Signals is the per-signal breakdown of a score, each in [0,1].
type Signals struct {
	Braces      float64 `json:"braces"`
	Keywords    float64 `json:"keywords"`
	Indentation float64 `json:"indentation"`
	Syntax      float64 `json:"syntax"`
	LineEndings float64 `json:"line_endings"`
}

// Score is a code confidence in [0,1] with its breakdown.
type Score struct {
	Value   float64 `json:"value"`
	Signals Signals `json:"signals"`
	Fenced  bool    `json:"fenced"`
}

// Span is a byte range [Start, End) of text that must be preserved exactly.
type Span struct {
	Start  int  `json:"start"`
	End    int  `json:"end"`
	Fenced bool `json:"fenced"`
}

// Detector scores text for "looks like code or structured data".
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a Detector. Zero thresholds fall back to defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.SkipThreshold <= 0 {
		cfg.SkipThreshold = def.SkipThreshold
	}
	if cfg.ConservativeThreshold <= 0 {
		cfg.ConservativeThreshold = def.ConservativeThreshold
	}
	return &Detector{cfg: cfg}
}

// Config returns the detector's thresholds.
func (d *Detector) Config() DetectorConfig {
	return d.cfg
}

// Confidence scores text. A fenced code block anywhere yields 1.0.
func (d *Detector) Confidence(text string) Score {
	lines := nonBlankLines(text)
	s := Signals{
		Braces:      braceScore(text),
		Keywords:    keywordScore(text),
		Indentation: indentationScore(lines),
		Syntax:      syntaxScore(text, lines),
		LineEndings: lineEndingScore(lines),
	}

	score := Score{Signals: s}
	if hasFence(text) {
		score.Fenced = true
		score.Value = 1.0
		return score
	}

	v := weightBraces*s.Braces +
		weightKeywords*s.Keywords +
		weightIndentation*s.Indentation +
		weightSyntax*s.Syntax +
		weightLineEndings*s.LineEndings
	score.Value = min(max(v, 0), 1)
	return score
}

// CodeConfidence returns just the confidence value.
func (d *Detector) CodeConfidence(text string) float64 {
	return d.Confidence(text).Value
}

// ShouldSkipTransformation reports whether text is obvious code that every
// heuristic must leave untouched.
func (d *Detector) ShouldSkipTransformation(text string) bool {
	return d.CodeConfidence(text) >= d.cfg.SkipThreshold
}

// IsConservative reports whether text is code-like enough that reflow must
// not run, even though whitespace normalization may.
func (d *Detector) IsConservative(text string) bool {
	return d.CodeConfidence(text) >= d.cfg.ConservativeThreshold
}

// DetectCodeBlocks returns the spans of text that must be preserved: every
// fenced block plus every paragraph scoring at or above the conservative
// threshold. Spans are sorted and do not overlap.
func (d *Detector) DetectCodeBlocks(text string) []Span {
	var spans []Span
	for _, b := range splitBlocks(text) {
		switch {
		case b.Blank:
			continue
		case b.Fenced:
			spans = append(spans, Span{Start: b.Start, End: b.End, Fenced: true})
		case d.IsConservative(b.Text()):
			spans = append(spans, Span{Start: b.Start, End: b.End})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// Report is the full detector verdict for one text.
type Report struct {
	Confidence   Score  `json:"confidence"`
	Skip         bool   `json:"skip"`
	Conservative bool   `json:"conservative"`
	CodeBlocks   []Span `json:"code_blocks"`
}

// Report scores text once and derives every verdict from that score.
// CodeBlocks is never nil.
func (d *Detector) Report(text string) Report {
	score := d.Confidence(text)
	blocks := d.DetectCodeBlocks(text)
	if blocks == nil {
		blocks = []Span{}
	}
	return Report{
		Confidence:   score,
		Skip:         score.Value >= d.cfg.SkipThreshold,
		Conservative: score.Value >= d.cfg.ConservativeThreshold,
		CodeBlocks:   blocks,
	}
}

// overlaps reports whether [start, end) intersects any span.
func overlaps(start, end int, spans []Span) bool {
	for _, s := range spans {
		if start < s.End && s.Start < end {
			return true
		}
	}
	return false
}

func nonBlankLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimRight(line, "\r"))
		}
	}
	return out
}

func braceScore(text string) float64 {
	n := strings.Count(text, "{") + strings.Count(text, "}")
	switch {
	case n >= 4:
		return 1.0
	case n >= 2:
		return 0.7
	default:
		return 0
	}
}

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// codeKeywords are reserved words across common languages.
var codeKeywords = map[string]bool{
	"func": true, "function": true, "def": true, "fn": true, "lambda": true,
	"class": true, "struct": true, "enum": true, "interface": true, "impl": true,
	"trait": true, "protocol": true, "extension": true, "namespace": true, "typedef": true,
	"return": true, "if": true, "else": true, "elif": true, "for": true, "while": true,
	"switch": true, "case": true, "break": true, "continue": true, "guard": true,
	"try": true, "catch": true, "throw": true, "throws": true, "finally": true,
	"import": true, "package": true, "include": true, "using": true, "pub": true,
	"const": true, "let": true, "var": true, "static": true, "void": true,
	"public": true, "private": true, "async": true, "await": true, "yield": true,
	"nil": true, "null": true, "None": true, "self": true, "println": true,
	"printf": true, "console": true,
}

func keywordScore(text string) float64 {
	n := 0
	for _, tok := range identPattern.FindAllString(text, -1) {
		if codeKeywords[tok] {
			n++
		}
	}
	switch {
	case n >= 5:
		return 1.0
	case n >= 3:
		return 0.7
	case n >= 1:
		return 0.4
	default:
		return 0
	}
}

func indentationScore(lines []string) float64 {
	levels := make(map[int]bool)
	indented := false
	for _, line := range lines {
		w := indentWidth(leadingWhitespace(line), 4)
		if w > 0 {
			indented = true
		}
		levels[w] = true
	}
	if !indented {
		return 0
	}
	switch {
	case len(levels) >= 3:
		return 1.0
	case len(levels) == 2:
		return 0.6
	default:
		return 0
	}
}

// syntaxMarkers are operators and directives rarely seen in prose.
var syntaxMarkers = []string{
	"=>", "->", "<-", "::", ":=", "!=", "==", "&&", "||",
	"{{", "}}", "${", "</", "/>",
}

var directivePattern = regexp.MustCompile(`^\s*#\s*(include|define|import|pragma|ifdef|ifndef|endif|if)\b`)

func syntaxScore(text string, lines []string) float64 {
	n := 0
	for _, m := range syntaxMarkers {
		if strings.Contains(text, m) {
			n++
		}
	}
	for _, line := range lines {
		if directivePattern.MatchString(line) {
			n++
			break
		}
	}
	switch {
	case n >= 3:
		return 1.0
	case n >= 1:
		return 0.6
	default:
		return 0
	}
}

func lineEndingScore(lines []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	n := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, "{") || strings.HasSuffix(trimmed, "}") {
			n++
		}
	}
	ratio := float64(n) / float64(len(lines))
	if ratio >= 0.5 {
		return 1.0
	}
	return ratio * 2
}

package widgets

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/athapong/canvas-mcp/pkg/scene"
	mapset "github.com/deckarep/golang-set/v2"
)

// Detection methods.
const (
	MethodBracketTag = "bracket-tag"
	MethodPrefix     = "prefix"
	MethodKeyword    = "keyword"
	MethodNone       = "none"
)

const maxTitleLength = 50

// Source is the text-bearing element a detection runs on.
type Source struct {
	ElementID string
	Text      string
	Box       scene.BoundingBox
}

// Match is what a Matcher found in the text. Content is the free text that
// accompanies the tag, if any.
type Match struct {
	Tag     string
	Content string
}

// Matcher recognizes one widget notation.
type Matcher interface {
	Match(text string) (Match, bool)
}

// Extractor fills the type-specific configuration of md.
type Extractor func(md *Metadata, src Source, m Match)

// Pattern is one row of the detection table.
type Pattern struct {
	Matcher    Matcher
	Type       Type
	Confidence float64
	Method     string
	Extract    Extractor
}

// Detection is the verdict for one element. Negative results are kept so
// callers can audit why an element was not treated as a widget.
type Detection struct {
	ElementID  string    `json:"elementId"`
	IsWidget   bool      `json:"isWidget"`
	WidgetType Type      `json:"widgetType,omitempty"`
	Confidence float64   `json:"confidence"`
	Metadata   *Metadata `json:"metadata,omitempty"`
	Method     string    `json:"method"`
	Reasoning  []string  `json:"reasoning,omitempty"`
}

// RegexMatcher matches a regular expression; the first capture group, when
// present, becomes the match content.
type RegexMatcher struct {
	re *regexp.Regexp
}

// NewRegexMatcher compiles expr into a matcher.
func NewRegexMatcher(expr string) *RegexMatcher {
	return &RegexMatcher{re: regexp.MustCompile(expr)}
}

func (m *RegexMatcher) Match(text string) (Match, bool) {
	sub := m.re.FindStringSubmatch(text)
	if sub == nil {
		return Match{}, false
	}
	out := Match{Tag: sub[0]}
	if len(sub) > 1 {
		out.Content = strings.TrimSpace(sub[1])
	}
	return out, true
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// KeywordMatcher matches whole words or multi-word phrases, case-insensitively.
type KeywordMatcher struct {
	words   mapset.Set[string]
	phrases []string
}

// NewKeywordMatcher builds a matcher; keywords containing a space are
// treated as phrases.
func NewKeywordMatcher(keywords ...string) *KeywordMatcher {
	m := &KeywordMatcher{words: mapset.NewThreadUnsafeSet[string]()}
	for _, k := range keywords {
		k = strings.ToLower(k)
		if strings.Contains(k, " ") {
			m.phrases = append(m.phrases, k)
			continue
		}
		m.words.Add(k)
	}
	return m
}

func (m *KeywordMatcher) Match(text string) (Match, bool) {
	lower := strings.ToLower(text)
	for _, p := range m.phrases {
		if strings.Contains(lower, p) {
			return Match{Tag: p}, true
		}
	}
	for _, w := range wordPattern.FindAllString(lower, -1) {
		if m.words.Contains(w) {
			return Match{Tag: w}, true
		}
	}
	return Match{}, false
}

func bracketPattern(tag string) string {
	return `(?i)\[\s*` + tag + `\b\s*(?::\s*([^\]]*))?\]`
}

func prefixPattern(tag string) string {
	return `(?is)^\s*` + tag + `\s*:\s*(.*)$`
}

// DefaultPatterns is the detection table, highest confidence first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{NewRegexMatcher(bracketPattern("MAP")), TypeMap, 0.95, MethodBracketTag, extractMap},
		{NewRegexMatcher(bracketPattern("VIDEO")), TypeVideo, 0.95, MethodBracketTag, extractVideo},
		{NewRegexMatcher(bracketPattern("IFRAME")), TypeIFrame, 0.9, MethodBracketTag, extractIFrame},
		{NewRegexMatcher(bracketPattern("CHART")), TypeChart, 0.9, MethodBracketTag, extractChart},
		{NewRegexMatcher(bracketPattern("CALENDAR")), TypeCalendar, 0.9, MethodBracketTag, extractCalendar},

		{NewRegexMatcher(prefixPattern("CHART")), TypeChart, 0.8, MethodPrefix, extractChart},
		{NewRegexMatcher(prefixPattern("MAP")), TypeMap, 0.8, MethodPrefix, extractMap},
		{NewRegexMatcher(prefixPattern("VIDEO")), TypeVideo, 0.8, MethodPrefix, extractVideo},
		{NewRegexMatcher(prefixPattern("IFRAME")), TypeIFrame, 0.8, MethodPrefix, extractIFrame},
		{NewRegexMatcher(prefixPattern("CALENDAR")), TypeCalendar, 0.8, MethodPrefix, extractCalendar},

		{NewKeywordMatcher("google maps", "map", "maps", "location"), TypeMap, 0.7, MethodKeyword, extractMap},
		{NewKeywordMatcher("youtube", "vimeo", "video"), TypeVideo, 0.8, MethodKeyword, extractVideo},
		{NewKeywordMatcher("embed", "iframe", "website"), TypeIFrame, 0.7, MethodKeyword, extractIFrame},
		{NewKeywordMatcher("chart", "graph", "plot", "analytics"), TypeChart, 0.75, MethodKeyword, extractChart},
		{NewKeywordMatcher("calendar", "schedule", "events"), TypeCalendar, 0.75, MethodKeyword, extractCalendar},
	}
}

// Detector runs text through an ordered pattern table. The first matching
// row wins.
type Detector struct {
	patterns []Pattern
	now      func() time.Time
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithPatterns replaces the detection table.
func WithPatterns(p []Pattern) DetectorOption {
	return func(d *Detector) { d.patterns = p }
}

// WithClock sets the time source used for metadata timestamps.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector with the default pattern table.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		patterns: DefaultPatterns(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies one element.
func (d *Detector) Detect(src Source) Detection {
	det := Detection{ElementID: src.ElementID, Method: MethodNone}

	text := strings.TrimSpace(src.Text)
	if text == "" {
		det.Reasoning = []string{"no text to scan"}
		return det
	}

	for _, p := range d.patterns {
		m, ok := p.Matcher.Match(text)
		if !ok {
			continue
		}

		now := d.now()
		md := Metadata{
			ElementID:   src.ElementID,
			Type:        p.Type,
			Title:       widgetTitle(text, m, p.Type),
			Description: m.Content,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}
		if p.Extract != nil {
			p.Extract(&md, src, m)
		}

		det.IsWidget = true
		det.WidgetType = p.Type
		det.Confidence = p.Confidence
		det.Metadata = &md
		det.Method = p.Method
		det.Reasoning = []string{fmt.Sprintf("%s match %q for %s", p.Method, m.Tag, p.Type)}
		return det
	}

	det.Reasoning = []string{"no widget pattern matched"}
	return det
}

// DetectAll classifies every source, preserving order.
func (d *Detector) DetectAll(srcs []Source) []Detection {
	out := make([]Detection, len(srcs))
	for i, s := range srcs {
		out[i] = d.Detect(s)
	}
	return out
}

var bracketTagPattern = regexp.MustCompile(`\[[^\]]*\]`)

func widgetTitle(text string, m Match, t Type) string {
	title := strings.Join(strings.Fields(bracketTagPattern.ReplaceAllString(text, " ")), " ")
	if title == "" {
		title = m.Content
	}
	if title == "" {
		title = t.Label()
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	return title
}

package semantic

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	rawCharsPerToken     = 4.0
	compactCharsPerToken = 3.5

	// TargetReduction is the token reduction an extraction must reach.
	TargetReduction = 70.0

	// confidenceFloor is the share of the compact estimate that the
	// confidence-weighted estimate must exceed.
	confidenceFloor = 0.7

	compactTextLimit     = 40
	compactRelationships = 2
)

// TokenOptimization reports how much cheaper the component rendering is
// than the raw element rendering.
type TokenOptimization struct {
	RawCharacters     int        `json:"rawCharacters"`
	CompactCharacters int        `json:"compactCharacters"`
	RawTokens         int        `json:"rawTokens"`
	CompactTokens     int        `json:"compactTokens"`
	ReductionPercent  float64    `json:"reductionPercent"`
	WeightedTokens    float64    `json:"weightedTokens"`
	Validation        Validation `json:"validation"`

	// Exact counts are filled only when a TokenCounter is configured.
	Encoding           string `json:"encoding,omitempty"`
	ExactRawTokens     int    `json:"exactRawTokens,omitempty"`
	ExactCompactTokens int    `json:"exactCompactTokens,omitempty"`
}

// Validation is the verdict on a TokenOptimization. OverallSuccess needs
// every individual check to pass.
type Validation struct {
	ReductionMet         bool    `json:"reductionMet"`
	HasComponents        bool    `json:"hasComponents"`
	Grouped              bool    `json:"grouped"`
	ConfidenceMet        bool    `json:"confidenceMet"`
	OverallSuccess       bool    `json:"overallSuccess"`
	TargetReduction      float64 `json:"targetReduction"`
	ComponentsPerElement float64 `json:"componentsPerElement"`
}

// EstimateTokens renders both descriptions and measures them.
func EstimateTokens(n *scene.Normalized, comps []Component) TokenOptimization {
	raw := RenderRaw(n)
	lines := compactLines(comps)
	compact := strings.Join(lines, "\n")

	opt := TokenOptimization{
		RawCharacters:     utf8.RuneCountInString(raw),
		CompactCharacters: utf8.RuneCountInString(compact),
	}
	opt.RawTokens = estimate(opt.RawCharacters, rawCharsPerToken)
	opt.CompactTokens = estimate(opt.CompactCharacters, compactCharsPerToken)
	opt.ReductionPercent = reduction(opt.RawTokens, opt.CompactTokens)

	for i, line := range lines {
		opt.WeightedTokens += float64(estimate(utf8.RuneCountInString(line), compactCharsPerToken)) * comps[i].Confidence
	}

	opt.Validation = Validate(opt, len(comps), n.Len())
	return opt
}

// Validate checks opt against the reduction target.
func Validate(opt TokenOptimization, components, elements int) Validation {
	v := Validation{
		TargetReduction: TargetReduction,
		ReductionMet:    opt.ReductionPercent >= TargetReduction,
		HasComponents:   components > 0,
		ConfidenceMet:   opt.WeightedTokens > confidenceFloor*float64(opt.CompactTokens),
	}
	if elements > 0 {
		v.ComponentsPerElement = float64(components) / float64(elements)
		v.Grouped = v.ComponentsPerElement < 1
	}
	v.OverallSuccess = v.ReductionMet && v.HasComponents && v.Grouped && v.ConfidenceMet
	return v
}

func estimate(chars int, perToken float64) int {
	return int(math.Ceil(float64(chars) / perToken))
}

func reduction(raw, compact int) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Max(0, float64(raw-compact)/float64(raw)*100)
}

type rawRecord struct {
	Type        scene.Kind        `json:"type"`
	ID          string            `json:"id"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	Width       float64           `json:"width"`
	Height      float64           `json:"height"`
	Angle       float64           `json:"angle"`
	BoundingBox scene.BoundingBox `json:"boundingBox"`
	Style       scene.Style       `json:"style"`
	ZIndex      int               `json:"zIndex"`
	GroupID     string            `json:"groupId,omitempty"`
	Text        string            `json:"text,omitempty"`
}

// RenderRaw describes every element in full, one JSON object per line.
func RenderRaw(n *scene.Normalized) string {
	var b strings.Builder
	for i, el := range n.All {
		rec := rawRecord{
			Type:        el.Kind,
			ID:          el.ID,
			X:           el.Box.X,
			Y:           el.Box.Y,
			Width:       el.Box.Width,
			Height:      el.Box.Height,
			Angle:       el.Angle,
			BoundingBox: el.Box,
			Style:       el.Style,
			ZIndex:      el.ZIndex,
			GroupID:     el.GroupID,
			Text:        el.Text,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.Write(data)
	}
	return b.String()
}

// RenderCompact describes every component on one short line:
// ROLE "text" @(x,y) [REL:target,...] ; hint
func RenderCompact(comps []Component) string {
	return strings.Join(compactLines(comps), "\n")
}

func compactLines(comps []Component) []string {
	lines := make([]string, len(comps))
	for i, c := range comps {
		lines[i] = compactLine(c)
	}
	return lines
}

func compactLine(c Component) string {
	var b strings.Builder
	b.WriteString(string(c.Role))

	if text := strings.TrimSpace(c.Metadata.Text); text != "" {
		if utf8.RuneCountInString(text) > compactTextLimit {
			text = string([]rune(text)[:compactTextLimit]) + "…"
		}
		fmt.Fprintf(&b, " %q", text)
	}

	fmt.Fprintf(&b, " @(%d,%d)", int(math.Round(c.BoundingBox.CenterX)), int(math.Round(c.BoundingBox.CenterY)))

	if rels := topRelationships(c.Relationships, compactRelationships); len(rels) > 0 {
		parts := make([]string, len(rels))
		for i, r := range rels {
			parts[i] = fmt.Sprintf("%s:%s", r.Type, r.TargetComponentID)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ","))
	}

	if len(c.Metadata.SemanticHints) > 0 {
		b.WriteString(" ; ")
		b.WriteString(c.Metadata.SemanticHints[0])
	}
	return b.String()
}

func topRelationships(rels []Relationship, n int) []Relationship {
	sorted := append([]Relationship(nil), rels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// TokenCounter counts model tokens exactly.
type TokenCounter interface {
	Count(text string) int
	Name() string
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, cl100k_base when empty.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{name: encoding, enc: enc}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) Name() string { return t.name }

// countExact adds exact token counts to opt.
func countExact(opt TokenOptimization, counter TokenCounter, n *scene.Normalized, comps []Component) TokenOptimization {
	opt.Encoding = counter.Name()
	opt.ExactRawTokens = counter.Count(RenderRaw(n))
	opt.ExactCompactTokens = counter.Count(RenderCompact(comps))
	return opt
}

// RenderingDiff is a line diff between two compact renderings.
type RenderingDiff struct {
	Text      string `json:"text"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
}

// DiffRenderings compares two renderings line by line.
func DiffRenderings(before, after string) RenderingDiff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(terminated(before), terminated(after))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out RenderingDiff
	var sb strings.Builder
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			line = strings.TrimSuffix(line, "\n")
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				sb.WriteString("- " + line + "\n")
				out.Removed++
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+ " + line + "\n")
				out.Added++
			case diffmatchpatch.DiffEqual:
				sb.WriteString("  " + line + "\n")
				out.Unchanged++
			}
		}
	}
	out.Text = sb.String()
	return out
}

// terminated ends s with a newline so the last line compares like the rest.
func terminated(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

package semantic

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"github.com/sirupsen/logrus"
)

const maxNameWords = 3

// NameSuggester picks a short human name for a component. An empty result
// means no name could be derived and the role based fallback is used.
type NameSuggester interface {
	SuggestName(c Component) string
}

// ProseNamer derives names from the nouns, adjectives and verbs of a
// component's text.
type ProseNamer struct {
	logger *logrus.Logger
}

// NewProseNamer creates a ProseNamer
func NewProseNamer(logger *logrus.Logger) *ProseNamer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &ProseNamer{logger: logger}
}

func (p *ProseNamer) SuggestName(c Component) string {
	text := strings.TrimSpace(c.Metadata.Text)
	if text == "" {
		return ""
	}

	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		p.logger.WithError(err).WithField("component_id", c.ID).Debug("Failed to tokenize component text")
		return ""
	}

	words := make([]string, 0, maxNameWords)
	for _, tok := range doc.Tokens() {
		if !nameTag(tok.Tag) {
			continue
		}
		words = append(words, titleWord(tok.Text))
		if len(words) == maxNameWords {
			break
		}
	}
	return strings.Join(words, " ")
}

func nameTag(tag string) bool {
	for _, prefix := range []string{"NN", "JJ", "VB", "CD"} {
		if strings.HasPrefix(tag, prefix) {
			return true
		}
	}
	return false
}

func titleWord(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// assignNames fills Metadata.Name on every component. Components without a
// suggestion are named after their role and a per-role counter, for
// example "Process Step 2".
func assignNames(comps []Component, namer NameSuggester) []Component {
	counts := make(map[Role]int)
	out := make([]Component, len(comps))
	for i, c := range comps {
		counts[c.Role]++
		name := ""
		if namer != nil {
			name = namer.SuggestName(c)
		}
		if name == "" {
			name = fmt.Sprintf("%s %d", roleLabel(c.Role), counts[c.Role])
		}
		c.Metadata.Name = name
		out[i] = c
	}
	return out
}

func roleLabel(r Role) string {
	parts := strings.Split(strings.ToLower(string(r)), "_")
	for i, p := range parts {
		parts[i] = titleWord(p)
	}
	return strings.Join(parts, " ")
}

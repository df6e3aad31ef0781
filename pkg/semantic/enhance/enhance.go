// Package enhance refines an extraction result with a chat model. The
// refinement is optional: every failure leaves the original result intact.
package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/semantic/metrics"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Results outside this window are not worth a model call.
const (
	MinComponents = 3
	MaxComponents = 30
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 20 * time.Second
)

// Enhancer rewrites roles, names and relationships of a result.
type Enhancer interface {
	Enhance(ctx context.Context, res *semantic.Result) (*semantic.Result, error)
}

// ChatClient is the part of the OpenAI client the enhancer needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMEnhancer asks a chat model to review the compact rendering of a result.
type LLMEnhancer struct {
	client  ChatClient
	model   string
	timeout time.Duration
	logger  *logrus.Logger
}

// Option configures an LLMEnhancer.
type Option func(*LLMEnhancer)

func WithModel(model string) Option {
	return func(e *LLMEnhancer) {
		if model != "" {
			e.model = model
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *LLMEnhancer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(e *LLMEnhancer) { e.logger = l }
}

// NewLLMEnhancer creates an enhancer backed by client.
func NewLLMEnhancer(client ChatClient, opts ...Option) *LLMEnhancer {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &LLMEnhancer{
		client:  client,
		model:   defaultModel,
		timeout: defaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const systemPrompt = `You review UI components extracted from a whiteboard drawing.
Each line is: <component id> | ROLE "text" @(x,y) [RELATIONSHIP:target,...]
Allowed roles: %s
Allowed relationships: %s

Reply with JSON only:
{"components":[{"id":"...","role":"...","name":"..."}],
 "relationships":[{"source":"...","target":"...","type":"...","confidence":0.0}]}
List only components whose role or name you would change and relationships that are missing.`

// Enhance sends the result to the model and applies its suggestions to a
// copy of res.
func (e *LLMEnhancer) Enhance(ctx context.Context, res *semantic.Result) (*semantic.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: describe(res)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model %s", e.model)
	}

	reply, err := extractJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	out, changes := applyReply(res, reply)
	e.logger.WithFields(logrus.Fields{
		"model":   e.model,
		"changes": changes,
	}).Debug("Applied model suggestions")
	return out, nil
}

func buildSystemPrompt() string {
	roles := make([]string, 0, len(semantic.Roles()))
	for _, r := range semantic.Roles() {
		roles = append(roles, string(r))
	}
	rels := make([]string, 0, len(semantic.RelationshipTypes()))
	for _, t := range semantic.RelationshipTypes() {
		rels = append(rels, string(t))
	}
	return fmt.Sprintf(systemPrompt, strings.Join(roles, ", "), strings.Join(rels, ", "))
}

func describe(res *semantic.Result) string {
	var b strings.Builder
	for _, c := range res.Components {
		fmt.Fprintf(&b, "%s | %s\n", c.ID, semantic.RenderCompact([]semantic.Component{c}))
	}
	return b.String()
}

// extractJSON pulls the JSON object out of a reply that may be wrapped in
// prose or a code fence.
func extractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("model reply contains no JSON object")
	}
	body := content[start : end+1]
	if !gjson.Valid(body) {
		return "", fmt.Errorf("model reply is not valid JSON")
	}
	return body, nil
}

// applyReply returns a copy of res with the suggestions in reply applied,
// plus the number of accepted suggestions. Suggestions naming unknown
// components, roles or relationship types are ignored. Widgets keep their
// role.
func applyReply(res *semantic.Result, reply string) (*semantic.Result, int) {
	out := res.Clone()
	index := make(map[string]int, len(out.Components))
	for i, c := range out.Components {
		index[c.ID] = i
	}

	changes := 0
	gjson.Get(reply, "components").ForEach(func(_, v gjson.Result) bool {
		i, ok := index[v.Get("id").String()]
		if !ok {
			return true
		}
		c := &out.Components[i]
		if role, ok := semantic.ParseRole(v.Get("role").String()); ok && role != c.Role && c.Role != semantic.RoleWidget {
			c.Role = role
			c.Metadata.SemanticHints = append(c.Metadata.SemanticHints, "role suggested by model")
			changes++
		}
		if name := strings.TrimSpace(v.Get("name").String()); name != "" && name != c.Metadata.Name {
			c.Metadata.Name = name
			changes++
		}
		return true
	})

	gjson.Get(reply, "relationships").ForEach(func(_, v gjson.Result) bool {
		src, okSrc := index[v.Get("source").String()]
		tgt, okTgt := index[v.Get("target").String()]
		typ, okType := semantic.ParseRelationshipType(v.Get("type").String())
		if !okSrc || !okTgt || !okType || src == tgt {
			return true
		}
		conf := v.Get("confidence").Float()
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		before := len(out.Components[src].Relationships)
		semantic.AddRelationship(&out.Components[src], semantic.Relationship{
			Type:              typ,
			TargetComponentID: out.Components[tgt].ID,
			Confidence:        conf,
			Metadata:          map[string]string{"source": "model"},
		})
		if len(out.Components[src].Relationships) > before {
			changes++
		}
		return true
	})

	out.Recount()
	return out, changes
}

// Apply runs e over res when the result size is inside the enhancement
// window. It never fails: on any error or panic the original result is
// returned.
func Apply(ctx context.Context, e Enhancer, res *semantic.Result, logger *logrus.Logger) *semantic.Result {
	if e == nil || res == nil {
		return res
	}
	n := len(res.Components)
	if n < MinComponents || n > MaxComponents {
		metrics.EnhancerCalls.WithLabelValues("skipped").Inc()
		return res
	}

	enhanced, err := safeEnhance(ctx, e, res)
	if err != nil || enhanced == nil {
		metrics.EnhancerCalls.WithLabelValues("failed").Inc()
		if logger != nil {
			logger.WithError(err).WithField("component_count", n).Warn("Enhancement failed, using unenhanced result")
		}
		return res
	}

	metrics.EnhancerCalls.WithLabelValues("applied").Inc()
	enhanced.Summary.Enhanced = true
	return enhanced
}

func safeEnhance(ctx context.Context, e Enhancer, res *semantic.Result) (out *semantic.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("enhancer panicked: %v", r)
		}
	}()
	return e.Enhance(ctx, res)
}

package semantic

import (
	"strings"
	"time"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
)

// Role is the semantic label assigned to a component.
type Role string

const (
	RoleButton           Role = "BUTTON"
	RoleCard             Role = "CARD"
	RoleContainer        Role = "CONTAINER"
	RoleProcessStep      Role = "PROCESS_STEP"
	RoleDecisionPoint    Role = "DECISION_POINT"
	RoleRadioButton      Role = "RADIO_BUTTON"
	RoleIcon             Role = "ICON"
	RoleComponent        Role = "COMPONENT"
	RoleTitle            Role = "TITLE"
	RoleTextBlock        Role = "TEXT_BLOCK"
	RoleLabel            Role = "LABEL"
	RoleInputField       Role = "INPUT_FIELD"
	RoleImagePlaceholder Role = "IMAGE_PLACEHOLDER"
	RoleConnector        Role = "CONNECTOR"
	RoleWidget           Role = "WIDGET"
	RoleUnknown          Role = "UNKNOWN"
)

// Roles lists every role.
func Roles() []Role {
	return []Role{
		RoleButton, RoleCard, RoleContainer, RoleProcessStep, RoleDecisionPoint,
		RoleRadioButton, RoleIcon, RoleComponent, RoleTitle, RoleTextBlock, RoleLabel,
		RoleInputField, RoleImagePlaceholder, RoleConnector, RoleWidget, RoleUnknown,
	}
}

// ParseRole maps a case-insensitive role name onto a Role.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles() {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, true
		}
	}
	return "", false
}

// RelationshipType names a directed relation between two components.
type RelationshipType string

const (
	RelContains    RelationshipType = "CONTAINS"
	RelContainedBy RelationshipType = "CONTAINED_BY"
	RelAbove       RelationshipType = "ABOVE"
	RelBelow       RelationshipType = "BELOW"
	RelLeftOf      RelationshipType = "LEFT_OF"
	RelRightOf     RelationshipType = "RIGHT_OF"
	RelValidates   RelationshipType = "VALIDATES"
	RelValidatedBy RelationshipType = "VALIDATED_BY"
	RelTriggers    RelationshipType = "TRIGGERS"
	RelFlowsTo     RelationshipType = "FLOWS_TO"
	RelFlowsFrom   RelationshipType = "FLOWS_FROM"
	RelConnectedTo RelationshipType = "CONNECTED_TO"
)

// RelationshipTypes lists every relationship type.
func RelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelContains, RelContainedBy, RelAbove, RelBelow, RelLeftOf, RelRightOf,
		RelValidates, RelValidatedBy, RelTriggers, RelFlowsTo, RelFlowsFrom, RelConnectedTo,
	}
}

// ParseRelationshipType maps a case-insensitive name onto a RelationshipType.
func ParseRelationshipType(s string) (RelationshipType, bool) {
	for _, t := range RelationshipTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// Relationship is an edge from the owning component to TargetComponentID.
type Relationship struct {
	Type              RelationshipType  `json:"type"`
	TargetComponentID string            `json:"targetComponentId"`
	Confidence        float64           `json:"confidence"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Interaction describes how a user is expected to engage with a component.
type Interaction string

const (
	InteractionClickable  Interaction = "clickable"
	InteractionSelectable Interaction = "selectable"
	InteractionEditable   Interaction = "editable"
	InteractionNavigable  Interaction = "navigable"
	InteractionReadable   Interaction = "readable"
	InteractionEmbedded   Interaction = "embedded"
	InteractionStatic     Interaction = "static"
)

// VisualProperties is the style summary carried on a component.
type VisualProperties struct {
	BackgroundColor string  `json:"backgroundColor"`
	StrokeColor     string  `json:"strokeColor"`
	StrokeWidth     float64 `json:"strokeWidth"`
	Rounded         bool    `json:"rounded"`
	Opacity         float64 `json:"opacity"`
	FontSize        float64 `json:"fontSize,omitempty"`
}

// LayoutContext places a component in the hierarchy and on screen.
type LayoutContext struct {
	ParentID string   `json:"parentId,omitempty"`
	ChildIDs []string `json:"childIds,omitempty"`
	Depth    int      `json:"depth"`
	ZIndex   int      `json:"zIndex"`
	Region   string   `json:"region,omitempty"`
}

// ComponentMetadata bundles everything known about a component beyond its
// role and geometry.
type ComponentMetadata struct {
	Name          string            `json:"name,omitempty"`
	Text          string            `json:"text,omitempty"`
	Visual        VisualProperties  `json:"visual"`
	Interaction   Interaction       `json:"interaction"`
	Layout        LayoutContext     `json:"layout"`
	SemanticHints []string          `json:"semanticHints,omitempty"`
	Widget        *widgets.Metadata `json:"widget,omitempty"`
}

// Component is the unit of output: one or more elements with a role.
type Component struct {
	ID            string            `json:"id"`
	ElementIDs    []string          `json:"elementIds"`
	Role          Role              `json:"role"`
	Relationships []Relationship    `json:"relationships"`
	Confidence    float64           `json:"confidence"`
	BoundingBox   scene.BoundingBox `json:"boundingBox"`
	Metadata      ComponentMetadata `json:"metadata"`
}

// Depth selects how much optional work an extraction does.
type Depth string

const (
	DepthFast     Depth = "fast"
	DepthStandard Depth = "standard"
	DepthThorough Depth = "thorough"
)

// Options tunes an extraction. Start from DefaultOptions.
type Options struct {
	MinConfidence              float64 `json:"minConfidence"`
	EnableRelationshipAnalysis bool    `json:"enableRelationshipAnalysis"`
	EnableTokenOptimization    bool    `json:"enableTokenOptimization"`
	EnableWidgetDetection      bool    `json:"enableWidgetDetection"`
	MaxComponents              int     `json:"maxComponents"`
	AnalysisDepth              Depth   `json:"analysisDepth"`
}

// DefaultOptions returns the standard option set.
func DefaultOptions() Options {
	return Options{
		MinConfidence:              0.3,
		EnableRelationshipAnalysis: true,
		EnableTokenOptimization:    true,
		EnableWidgetDetection:      true,
		MaxComponents:              100,
		AnalysisDepth:              DepthStandard,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxComponents <= 0 {
		o.MaxComponents = 100
	}
	switch o.AnalysisDepth {
	case DepthFast, DepthStandard, DepthThorough:
	default:
		o.AnalysisDepth = DepthStandard
	}
	return o
}

func (o Options) relationshipsEnabled() bool {
	return o.EnableRelationshipAnalysis && o.AnalysisDepth != DepthFast
}

// Request is one extraction call.
type Request struct {
	Elements []scene.RawShape `json:"elements"`
	Viewport scene.Viewport   `json:"viewport"`
	Options  Options          `json:"options"`
}

// Summary aggregates an extraction result.
type Summary struct {
	TotalElements     int          `json:"totalElements"`
	TotalComponents   int          `json:"totalComponents"`
	RoleCounts        map[Role]int `json:"roleCounts"`
	WidgetCount       int          `json:"widgetCount"`
	RelationshipCount int          `json:"relationshipCount"`
	ConnectorCount    int          `json:"connectorCount"`
	AverageConfidence float64      `json:"averageConfidence"`
	DroppedComponents int          `json:"droppedComponents"`
	SkippedElements   []string     `json:"skippedElements,omitempty"`
	AnalysisDepth     Depth        `json:"analysisDepth"`
	Degraded          bool         `json:"degraded,omitempty"`
	Enhanced          bool         `json:"enhanced,omitempty"`
}

// Result is the output of an extraction.
type Result struct {
	Components        []Component         `json:"components"`
	Summary           Summary             `json:"summary"`
	TokenOptimization *TokenOptimization  `json:"tokenOptimization,omitempty"`
	Timestamp         time.Time           `json:"timestamp"`
	ProcessingTime    time.Duration       `json:"processingTime"`
	Detections        []widgets.Detection `json:"detections,omitempty"`
	Connectors        []Connector         `json:"connectors,omitempty"`
}

// Component looks a component up by id.
func (r *Result) Component(id string) (Component, bool) {
	for _, c := range r.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// Clone returns a copy of r whose components can be edited without
// touching r.
func (r *Result) Clone() *Result {
	out := *r
	out.Components = cloneComponents(r.Components)
	out.Summary.RoleCounts = make(map[Role]int, len(r.Summary.RoleCounts))
	for k, v := range r.Summary.RoleCounts {
		out.Summary.RoleCounts[k] = v
	}
	return &out
}

// AddRelationship appends r to c unless an edge of the same type to the
// same target already exists.
func AddRelationship(c *Component, r Relationship) {
	addRelationship(c, r)
}

// Recount refreshes the per-component totals of the summary after the
// components were edited.
func (r *Result) Recount() {
	s := &r.Summary
	s.TotalComponents = len(r.Components)
	s.RoleCounts = make(map[Role]int)
	s.RelationshipCount, s.WidgetCount, s.AverageConfidence = 0, 0, 0

	total := 0.0
	for _, c := range r.Components {
		s.RoleCounts[c.Role]++
		s.RelationshipCount += len(c.Relationships)
		total += c.Confidence
		if c.Role == RoleWidget {
			s.WidgetCount++
		}
	}
	if len(r.Components) > 0 {
		s.AverageConfidence = total / float64(len(r.Components))
	}
}

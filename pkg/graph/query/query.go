package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/semantic"
)

type Operator string

const (
	Equals   Operator = "eq"
	Contains Operator = "contains"
	AtLeast  Operator = "gte"
	AtMost   Operator = "lte"
)

// Field names a filterable component attribute.
type Field string

const (
	FieldRole        Field = "role"
	FieldText        Field = "text"
	FieldName        Field = "name"
	FieldRegion      Field = "region"
	FieldInteraction Field = "interaction"
	FieldConfidence  Field = "confidence"
	FieldDepth       Field = "depth"
	FieldParent      Field = "parent"
	FieldWidgetType  Field = "widget_type"
)

type Query struct {
	Filters []Filter `json:"filters"`
	OrderBy Field    `json:"order_by,omitempty"`
	Limit   int      `json:"limit"`
	Skip    int      `json:"skip"`
}

type Filter struct {
	Field    Field       `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

func NewQuery() *Query {
	return &Query{Filters: make([]Filter, 0)}
}

func (q *Query) AddFilter(filter Filter) *Query {
	q.Filters = append(q.Filters, filter)
	return q
}

// Where is shorthand for AddFilter.
func (q *Query) Where(field Field, op Operator, value interface{}) *Query {
	return q.AddFilter(Filter{Field: field, Operator: op, Value: value})
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

func (q *Query) SetSkip(skip int) *Query {
	q.Skip = skip
	return q
}

// SortBy orders results by a field, descending for confidence and depth,
// ascending otherwise.
func (q *Query) SortBy(field Field) *Query {
	q.OrderBy = field
	return q
}

func (q *Query) String() string {
	bytes, _ := json.MarshalIndent(q, "", "  ")
	return string(bytes)
}

// Validate reports filters that can never evaluate.
func (q *Query) Validate() error {
	for _, f := range q.Filters {
		if value(semantic.Component{}, f.Field) == nil {
			return fmt.Errorf("unknown filter field %q", f.Field)
		}
		switch f.Operator {
		case Equals, Contains:
		case AtLeast, AtMost:
			if _, ok := toFloat(f.Value); !ok {
				return fmt.Errorf("filter on %s: %s needs a number, got %v", f.Field, f.Operator, f.Value)
			}
		default:
			return fmt.Errorf("filter on %s: unsupported operator %q", f.Field, f.Operator)
		}
	}
	return nil
}

// Apply returns the components matching every filter.
func (q *Query) Apply(comps []semantic.Component) ([]semantic.Component, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	out := make([]semantic.Component, 0)
	for _, c := range comps {
		if q.matches(c) {
			out = append(out, c)
		}
	}

	switch q.OrderBy {
	case "":
	case FieldConfidence, FieldDepth:
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := toFloat(value(out[i], q.OrderBy))
			b, _ := toFloat(value(out[j], q.OrderBy))
			return a > b
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return fmt.Sprint(value(out[i], q.OrderBy)) < fmt.Sprint(value(out[j], q.OrderBy))
		})
	}

	if q.Skip > 0 {
		if q.Skip >= len(out) {
			return out[:0], nil
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (q *Query) matches(c semantic.Component) bool {
	for _, f := range q.Filters {
		if !f.matches(value(c, f.Field)) {
			return false
		}
	}
	return true
}

func (f Filter) matches(v interface{}) bool {
	switch f.Operator {
	case Equals:
		if n, ok := toFloat(v); ok {
			want, ok := toFloat(f.Value)
			return ok && n == want
		}
		return strings.EqualFold(fmt.Sprint(v), fmt.Sprint(f.Value))
	case Contains:
		return strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(f.Value)))
	case AtLeast, AtMost:
		n, ok := toFloat(v)
		want, _ := toFloat(f.Value)
		if !ok {
			return false
		}
		if f.Operator == AtLeast {
			return n >= want
		}
		return n <= want
	}
	return false
}

func value(c semantic.Component, f Field) interface{} {
	switch f {
	case FieldRole:
		return string(c.Role)
	case FieldText:
		return c.Metadata.Text
	case FieldName:
		return c.Metadata.Name
	case FieldRegion:
		return c.Metadata.Layout.Region
	case FieldInteraction:
		return string(c.Metadata.Interaction)
	case FieldConfidence:
		return c.Confidence
	case FieldDepth:
		return c.Metadata.Layout.Depth
	case FieldParent:
		return c.Metadata.Layout.ParentID
	case FieldWidgetType:
		if c.Metadata.Widget != nil {
			return string(c.Metadata.Widget.Type)
		}
		return ""
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

package graph

import (
	"context"
	"time"
)

// Node is one component in the graph
type Node struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	Type       string                 `json:"type"` // component role
	Confidence float64                `json:"confidence"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Elements   []string               `json:"elements,omitempty"` // canvas element ids behind the component
}

// Edge is one relationship between two components
type Edge struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Weight     float64                `json:"weight"`
}

// GraphData is a serializable snapshot of a component graph
type GraphData struct {
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ComponentGraph defines the operations available on a component graph
type ComponentGraph interface {
	AddNode(ctx context.Context, node Node) error
	AddEdge(ctx context.Context, edge Edge) error
	GetNode(ctx context.Context, id string) (*Node, error)
	Neighbors(ctx context.Context, id string, edgeType string) ([]Node, error)
	DeleteNode(ctx context.Context, id string) error
	DeleteEdge(ctx context.Context, id string) error
}

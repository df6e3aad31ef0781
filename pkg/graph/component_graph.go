package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/semantic/metrics"
	"github.com/sirupsen/logrus"
)

// MemoryComponentGraph implements ComponentGraph with in-memory storage
type MemoryComponentGraph struct {
	nodes  []Node
	edges  []Edge
	nodeID map[string]int
	edgeID map[string]int
	mutex  sync.RWMutex
	logger *logrus.Logger
}

// NewMemoryComponentGraph creates a new in-memory component graph
func NewMemoryComponentGraph() *MemoryComponentGraph {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &MemoryComponentGraph{
		nodes:  make([]Node, 0),
		edges:  make([]Edge, 0),
		nodeID: make(map[string]int),
		edgeID: make(map[string]int),
		logger: logger,
	}
}

// AddNode adds a node, replacing any node with the same id
func (g *MemoryComponentGraph) AddNode(ctx context.Context, node Node) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if node.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if i, exists := g.nodeID[node.ID]; exists {
		g.nodes[i] = node
		return nil
	}
	g.nodes = append(g.nodes, node)
	g.nodeID[node.ID] = len(g.nodes) - 1
	return nil
}

// AddEdge adds an edge between two existing nodes. Adding an edge whose
// id already exists keeps the higher weight.
func (g *MemoryComponentGraph) AddEdge(ctx context.Context, edge Edge) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	_, sourceExists := g.nodeID[edge.Source]
	_, targetExists := g.nodeID[edge.Target]
	if !sourceExists || !targetExists {
		return fmt.Errorf("source or target node not found")
	}

	if edge.ID == "" {
		edge.ID = EdgeID(edge.Source, edge.Type, edge.Target)
	}
	if i, exists := g.edgeID[edge.ID]; exists {
		if edge.Weight > g.edges[i].Weight {
			g.edges[i].Weight = edge.Weight
		}
		return nil
	}
	g.edges = append(g.edges, edge)
	g.edgeID[edge.ID] = len(g.edges) - 1
	return nil
}

// GetNode retrieves a node by id
func (g *MemoryComponentGraph) GetNode(ctx context.Context, id string) (*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	i, exists := g.nodeID[id]
	if !exists {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	node := g.nodes[i]
	return &node, nil
}

// Neighbors returns the nodes reachable over one outgoing edge, optionally
// restricted to one edge type. Every relationship is stored on both ends,
// so outgoing edges are enough to see all neighbors.
func (g *MemoryComponentGraph) Neighbors(ctx context.Context, id string, edgeType string) ([]Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if _, exists := g.nodeID[id]; !exists {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	seen := make(map[string]bool)
	related := make([]Node, 0)
	for _, edge := range g.edges {
		if edge.Source != id || (edgeType != "" && edge.Type != edgeType) {
			continue
		}
		if seen[edge.Target] {
			continue
		}
		if i, exists := g.nodeID[edge.Target]; exists {
			seen[edge.Target] = true
			related = append(related, g.nodes[i])
		}
	}
	return related, nil
}

// DeleteNode removes a node and every edge touching it
func (g *MemoryComponentGraph) DeleteNode(ctx context.Context, id string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.nodeID[id]; !exists {
		return fmt.Errorf("node not found: %s", id)
	}

	edges := g.edges[:0]
	for _, e := range g.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	g.edges = edges

	nodes := g.nodes[:0]
	for _, n := range g.nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	g.nodes = nodes
	g.reindex()
	return nil
}

// DeleteEdge removes an edge by id
func (g *MemoryComponentGraph) DeleteEdge(ctx context.Context, id string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	i, exists := g.edgeID[id]
	if !exists {
		return fmt.Errorf("edge not found: %s", id)
	}
	g.edges = append(g.edges[:i], g.edges[i+1:]...)
	g.reindex()
	return nil
}

func (g *MemoryComponentGraph) reindex() {
	g.nodeID = make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		g.nodeID[n.ID] = i
	}
	g.edgeID = make(map[string]int, len(g.edges))
	for i, e := range g.edges {
		g.edgeID[e.ID] = i
	}
}

// Data returns a copy of the graph for serialization or visualization
func (g *MemoryComponentGraph) Data() *GraphData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return &GraphData{
		Nodes:       append([]Node(nil), g.nodes...),
		Edges:       append([]Edge(nil), g.edges...),
		GeneratedAt: time.Now(),
	}
}

// EdgeID is the deterministic id of a typed edge
func EdgeID(source, typ, target string) string {
	return fmt.Sprintf("%s-%s-%s", source, typ, target)
}

// FromResult loads the components and relationships of an extraction into
// a new graph. Relationships pointing at components that were filtered out
// are skipped.
func FromResult(ctx context.Context, res *semantic.Result) (*MemoryComponentGraph, error) {
	g := NewMemoryComponentGraph()

	for _, c := range res.Components {
		if err := g.AddNode(ctx, NodeFromComponent(c)); err != nil {
			return nil, err
		}
	}

	for _, c := range res.Components {
		for _, r := range c.Relationships {
			edge := Edge{
				ID:     EdgeID(c.ID, string(r.Type), r.TargetComponentID),
				Source: c.ID,
				Target: r.TargetComponentID,
				Type:   string(r.Type),
				Weight: r.Confidence,
			}
			if len(r.Metadata) > 0 {
				edge.Properties = make(map[string]interface{}, len(r.Metadata))
				for k, v := range r.Metadata {
					edge.Properties[k] = v
				}
			}
			if err := g.AddEdge(ctx, edge); err != nil {
				g.logger.WithFields(logrus.Fields{
					"source": c.ID,
					"target": r.TargetComponentID,
					"type":   r.Type,
				}).Warn("Skipping relationship with unknown component")
			}
		}
	}

	g.recordMetrics()
	return g, nil
}

// NodeFromComponent converts a component into a graph node
func NodeFromComponent(c semantic.Component) Node {
	label := c.Metadata.Name
	if label == "" {
		label = c.ID
	}
	props := map[string]interface{}{
		"x":           c.BoundingBox.X,
		"y":           c.BoundingBox.Y,
		"width":       c.BoundingBox.Width,
		"height":      c.BoundingBox.Height,
		"interaction": string(c.Metadata.Interaction),
	}
	if c.Metadata.Text != "" {
		props["text"] = c.Metadata.Text
	}
	if c.Metadata.Layout.Region != "" {
		props["region"] = c.Metadata.Layout.Region
	}
	if c.Metadata.Widget != nil {
		props["widget_type"] = string(c.Metadata.Widget.Type)
	}

	return Node{
		ID:         c.ID,
		Label:      label,
		Type:       string(c.Role),
		Confidence: c.Confidence,
		Properties: props,
		Elements:   append([]string(nil), c.ElementIDs...),
	}
}

func (g *MemoryComponentGraph) recordMetrics() {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	metrics.GraphNodeCount.Reset()
	metrics.GraphEdgeCount.Reset()
	for _, n := range g.nodes {
		metrics.GraphNodeCount.WithLabelValues(n.Type).Inc()
	}
	for _, e := range g.edges {
		metrics.GraphEdgeCount.WithLabelValues(e.Type).Inc()
	}
}

package algorithms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/graph"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// ParseTraversalType maps a case-insensitive name onto a TraversalType,
// defaulting to BFS.
func ParseTraversalType(s string) (TraversalType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(BFS):
		return BFS, nil
	case string(DFS):
		return DFS, nil
	}
	return "", fmt.Errorf("unsupported traversal type: %s", s)
}

type GraphTraversal struct {
	graph    graph.ComponentGraph
	edgeType string
}

func NewGraphTraversal(g graph.ComponentGraph) *GraphTraversal {
	return &GraphTraversal{graph: g}
}

// FollowOnly restricts traversal to edges of one relationship type.
func (t *GraphTraversal) FollowOnly(edgeType string) *GraphTraversal {
	t.edgeType = edgeType
	return t
}

// Traverse visits nodes reachable from startID. The start node is at depth
// 0 and nodes up to maxDepth hops away are included.
func (t *GraphTraversal) Traverse(ctx context.Context, startID string, maxDepth int, traversalType TraversalType) ([]graph.Node, error) {
	visited := make(map[string]bool)
	result := make([]graph.Node, 0)

	switch traversalType {
	case BFS:
		return t.bfs(ctx, startID, maxDepth, visited)
	case DFS:
		return t.dfs(ctx, startID, maxDepth, visited, &result)
	default:
		return nil, fmt.Errorf("unsupported traversal type: %s", traversalType)
	}
}

func (t *GraphTraversal) bfs(ctx context.Context, startID string, maxDepth int, visited map[string]bool) ([]graph.Node, error) {
	queue := []string{startID}
	result := make([]graph.Node, 0)

	for depth := 0; len(queue) > 0 && depth <= maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := make([]string, 0)
		for _, current := range queue {
			if visited[current] {
				continue
			}
			visited[current] = true

			node, err := t.graph.GetNode(ctx, current)
			if err != nil {
				return nil, err
			}
			result = append(result, *node)

			related, err := t.graph.Neighbors(ctx, current, t.edgeType)
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				if !visited[r.ID] {
					next = append(next, r.ID)
				}
			}
		}
		queue = next
	}

	return result, nil
}

func (t *GraphTraversal) dfs(ctx context.Context, currentID string, maxDepth int, visited map[string]bool, result *[]graph.Node) ([]graph.Node, error) {
	if maxDepth < 0 || visited[currentID] {
		return *result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visited[currentID] = true
	node, err := t.graph.GetNode(ctx, currentID)
	if err != nil {
		return nil, err
	}
	*result = append(*result, *node)

	related, err := t.graph.Neighbors(ctx, currentID, t.edgeType)
	if err != nil {
		return nil, err
	}

	for _, r := range related {
		if !visited[r.ID] {
			if _, err := t.dfs(ctx, r.ID, maxDepth-1, visited, result); err != nil {
				return nil, err
			}
		}
	}

	return *result, nil
}

// ErrNoPath is returned by ShortestPath when toID cannot be reached.
var ErrNoPath = errors.New("no path between components")

// ShortestPath returns the nodes on a fewest-hops path from fromID to toID,
// both ends included, following only the FollowOnly edge type when set.
func (t *GraphTraversal) ShortestPath(ctx context.Context, fromID, toID string) ([]graph.Node, error) {
	if _, err := t.graph.GetNode(ctx, toID); err != nil {
		return nil, err
	}

	prev := map[string]string{fromID: ""}
	queue := []string{fromID}
	for len(queue) > 0 && !contains(prev, toID) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		related, err := t.graph.Neighbors(ctx, current, t.edgeType)
		if err != nil {
			return nil, err
		}
		for _, r := range related {
			if !contains(prev, r.ID) {
				prev[r.ID] = current
				queue = append(queue, r.ID)
			}
		}
	}
	if !contains(prev, toID) {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoPath, fromID, toID)
	}

	var ids []string
	for id := toID; id != ""; id = prev[id] {
		ids = append(ids, id)
	}
	path := make([]graph.Node, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		node, err := t.graph.GetNode(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		path = append(path, *node)
	}
	return path, nil
}

func contains(m map[string]string, id string) bool {
	_, ok := m[id]
	return ok
}

package semantic

import (
	"sort"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/scene"
	mapset "github.com/deckarep/golang-set/v2"
)

const (
	// minContainerArea is the box area a rectangle or ellipse needs before
	// it is considered able to hold other elements.
	minContainerArea = 5000

	// containmentOverlap is the share of an element's own area that must
	// lie inside a container when its center does not.
	containmentOverlap = 0.5

	groupPrefix = "group-"
)

// Hierarchy is the containment structure of a scene.
//
// Parents maps a child id to its container id, which is either an element
// id or a synthetic group key (group-<groupId>). Children keeps every
// claim ever made, so a grouped element can be listed under both its
// spatial container and its group.
type Hierarchy struct {
	Containers []scene.Element
	Children   map[string][]string
	Parents    map[string]string

	// GroupBoxes holds the union box of each synthetic group container.
	GroupBoxes map[string]scene.BoundingBox
}

// GroupKey returns the synthetic container key for a native group id.
func GroupKey(groupID string) string { return groupPrefix + groupID }

// IsGroupKey reports whether id names a synthetic group container.
func IsGroupKey(id string) bool { return strings.HasPrefix(id, groupPrefix) }

// Parent returns the container of id.
func (h *Hierarchy) Parent(id string) (string, bool) {
	p, ok := h.Parents[id]
	return p, ok
}

// Depth is the number of ancestors of id.
func (h *Hierarchy) Depth(id string) int {
	depth := 0
	seen := mapset.NewThreadUnsafeSet[string](id)
	for {
		p, ok := h.Parents[id]
		if !ok || !seen.Add(p) {
			return depth
		}
		depth++
		id = p
	}
}

// IsAncestor reports whether ancestor appears on the parent chain of id.
func (h *Hierarchy) IsAncestor(ancestor, id string) bool {
	seen := mapset.NewThreadUnsafeSet[string](id)
	for {
		p, ok := h.Parents[id]
		if !ok {
			return false
		}
		if p == ancestor {
			return true
		}
		if !seen.Add(p) {
			return false
		}
		id = p
	}
}

// ResolveContainers builds the containment hierarchy.
//
// Rectangles and ellipses larger than minContainerArea are candidates,
// visited in ascending z-order. Each candidate claims every element that
// has no parent yet and whose center lies inside it or which overlaps it by
// more than half of its own area. Claims are final. Native groups with two
// or more members are then layered on top: every member's parent becomes
// the group key.
func ResolveContainers(n *scene.Normalized) *Hierarchy {
	h := &Hierarchy{
		Containers: make([]scene.Element, 0),
		Children:   make(map[string][]string),
		Parents:    make(map[string]string),
		GroupBoxes: make(map[string]scene.BoundingBox),
	}

	for _, bucket := range [][]scene.Element{n.Rectangles, n.Ellipses} {
		for _, el := range bucket {
			if el.Box.Area > minContainerArea {
				h.Containers = append(h.Containers, el)
			}
		}
	}
	sort.SliceStable(h.Containers, func(i, j int) bool {
		return h.Containers[i].ZIndex < h.Containers[j].ZIndex
	})

	claimed := mapset.NewThreadUnsafeSet[string]()
	for _, c := range h.Containers {
		for _, el := range n.All {
			if el.ID == c.ID || claimed.Contains(el.ID) {
				continue
			}
			// Claiming an ancestor of c would close a cycle.
			if h.IsAncestor(el.ID, c.ID) {
				continue
			}
			if !contains(c.Box, el.Box) {
				continue
			}
			h.Parents[el.ID] = c.ID
			h.Children[c.ID] = append(h.Children[c.ID], el.ID)
			claimed.Add(el.ID)
		}
	}

	groups := make(map[string][]scene.Element)
	order := make([]string, 0)
	for _, el := range n.All {
		if el.GroupID == "" {
			continue
		}
		if _, seen := groups[el.GroupID]; !seen {
			order = append(order, el.GroupID)
		}
		groups[el.GroupID] = append(groups[el.GroupID], el)
	}
	for _, gid := range order {
		members := groups[gid]
		if len(members) < 2 {
			continue
		}
		key := GroupKey(gid)
		box := members[0].Box
		for _, m := range members {
			h.Parents[m.ID] = key
			h.Children[key] = append(h.Children[key], m.ID)
			box = box.Union(m.Box)
		}
		h.GroupBoxes[key] = box
	}

	return h
}

func contains(container, el scene.BoundingBox) bool {
	if container.ContainsPoint(el.CenterX, el.CenterY) {
		return true
	}
	return el.Area > 0 && container.OverlapArea(el) > containmentOverlap*el.Area
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/graph"
	"github.com/athapong/canvas-mcp/pkg/graph/algorithms"
	"github.com/athapong/canvas-mcp/pkg/graph/query"
	"github.com/athapong/canvas-mcp/pkg/graph/storage"
	"github.com/athapong/canvas-mcp/pkg/graph/visualizer"
	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
	"github.com/athapong/canvas-mcp/pkg/worker"
	"github.com/athapong/canvas-mcp/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// CanvasTools holds what the canvas tool handlers share.
type CanvasTools struct {
	Manager  *worker.Manager
	Defaults semantic.Options
	Widgets  *widgets.Storage
	Geocoder widgets.Geocoder
	Logger   *logrus.Logger

	// Neo4j settings for canvas_export_graph; an empty URI disables the target.
	Neo4jURI, Neo4jUser, Neo4jPassword string
}

func sceneOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("elements", mcp.Description("Canvas elements as JSON: an array of Excalidraw-style elements or an object with an \"elements\" array")),
		mcp.WithString("svg", mcp.Description("Canvas as an SVG document, used when elements is empty")),
		mcp.WithNumber("viewport_width", mcp.Description("Visible canvas width (default: scene extent)")),
		mcp.WithNumber("viewport_height", mcp.Description("Visible canvas height (default: scene extent)")),
		mcp.WithNumber("min_confidence", mcp.Description("Drop components below this confidence (default: 0.3)")),
		mcp.WithNumber("max_components", mcp.Description("Keep at most this many components (default: 100)")),
		mcp.WithString("analysis_depth", mcp.Description("fast, standard (default) or thorough")),
		mcp.WithBoolean("enable_relationships", mcp.Description("Infer spatial and functional relationships (default: true)")),
		mcp.WithBoolean("enable_widgets", mcp.Description("Detect embedded widget notations (default: true)")),
	}
}

// withScene puts opts in front of the shared scene arguments.
func withScene(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(opts, sceneOptions()...)
}

// RegisterCanvasTools registers extraction, compact rendering and diff.
func RegisterCanvasTools(s *server.MCPServer, ct *CanvasTools) {
	extractTool := mcp.NewTool("canvas_extract_components",
		withScene(
			mcp.WithDescription("Extract semantic UI components (buttons, cards, process steps, widgets...) with their relationships from a whiteboard canvas"),
		)...,
	)
	s.AddTool(extractTool, util.ErrorGuard(ct.extractHandler))

	compactTool := mcp.NewTool("canvas_compact",
		withScene(
			mcp.WithDescription("Describe a canvas in a compact one-line-per-component form and report the token savings over the raw element list"),
		)...,
	)
	s.AddTool(compactTool, util.ErrorGuard(ct.compactHandler))

	diffTool := mcp.NewTool("canvas_diff",
		mcp.WithDescription("Compare two versions of a canvas by their compact component descriptions"),
		mcp.WithString("before", mcp.Required(), mcp.Description("Elements JSON of the earlier canvas")),
		mcp.WithString("after", mcp.Required(), mcp.Description("Elements JSON of the later canvas")),
	)
	s.AddTool(diffTool, util.ErrorGuard(ct.diffHandler))
}

// RegisterCanvasGraphTools registers the tools that work on the component
// graph of a canvas.
func RegisterCanvasGraphTools(s *server.MCPServer, ct *CanvasTools) {
	queryTool := mcp.NewTool("canvas_query_components",
		withScene(
			mcp.WithDescription("Extract components and return those matching filters"),
			mcp.WithString("query", mcp.Required(), mcp.Description(`Query JSON, e.g. {"filters":[{"field":"role","operator":"eq","value":"BUTTON"}],"order_by":"confidence","limit":5}. Fields: role, text, name, region, interaction, confidence, depth, parent, widget_type. Operators: eq, contains, gte, lte`)),
		)...,
	)
	s.AddTool(queryTool, util.ErrorGuard(ct.queryHandler))

	contextTool := mcp.NewTool("canvas_component_context",
		withScene(
			mcp.WithDescription("Return the neighborhood of one component in the relationship graph, or the shortest path to another component"),
			mcp.WithString("component_id", mcp.Required(), mcp.Description("Component id, e.g. component-<element id>")),
			mcp.WithNumber("depth", mcp.Description("Maximum hops from the component (default: 1)")),
			mcp.WithString("traversal", mcp.Description("bfs (default) or dfs")),
			mcp.WithString("relationship", mcp.Description("Follow only this relationship type, e.g. FLOWS_TO")),
			mcp.WithString("target_id", mcp.Description("Return the shortest path to this component instead of the neighborhood")),
		)...,
	)
	s.AddTool(contextTool, util.ErrorGuard(ct.contextHandler))

	exportTool := mcp.NewTool("canvas_export_graph",
		withScene(
			mcp.WithDescription("Export the component graph of a canvas as JSON, as an HTML view, or into Neo4j"),
			mcp.WithString("format", mcp.Required(), mcp.Description("json, html or neo4j")),
			mcp.WithString("output", mcp.Description("Output file for json and html; the Neo4j graph name for neo4j")),
		)...,
	)
	s.AddTool(exportTool, util.ErrorGuard(ct.exportHandler))
}

// extract runs one extraction through the worker and post-processes the
// widgets: map centers are geocoded and the widget store is synced.
func (ct *CanvasTools) extract(ctx context.Context, arguments map[string]interface{}) (*semantic.Result, error) {
	req, err := ct.request(arguments)
	if err != nil {
		return nil, err
	}

	res := ct.Manager.ExtractOrFallback(ctx, req)

	if ct.Geocoder != nil && len(res.Detections) > 0 {
		res.Detections = widgets.ResolveMapCenters(ctx, ct.Geocoder, res.Detections, ct.Logger)
		refreshWidgetMetadata(res)
	}

	if ct.Widgets != nil && !res.Summary.Degraded {
		live := make([]string, 0, len(req.Elements))
		for _, el := range req.Elements {
			live = append(live, el.ID)
		}
		report := ct.Widgets.Sync(res.Detections, live)
		if len(report.Created)+len(report.Removed) > 0 && ct.Logger != nil {
			ct.Logger.WithFields(logrus.Fields{
				"created": report.Created,
				"removed": report.Removed,
			}).Info("Widget store synced")
		}
	}
	return res, nil
}

// refreshWidgetMetadata copies updated detection metadata onto the widget
// components built from the same element.
func refreshWidgetMetadata(res *semantic.Result) {
	byElement := make(map[string]*widgets.Metadata, len(res.Detections))
	for _, d := range res.Detections {
		if d.IsWidget && d.Metadata != nil {
			byElement[d.ElementID] = d.Metadata
		}
	}
	for i := range res.Components {
		c := &res.Components[i]
		if c.Metadata.Widget == nil {
			continue
		}
		if md, ok := byElement[c.Metadata.Widget.ElementID]; ok {
			c.Metadata.Widget = md
		}
	}
}

func (ct *CanvasTools) request(arguments map[string]interface{}) (semantic.Request, error) {
	shapes, err := parseShapes(arguments)
	if err != nil {
		return semantic.Request{}, err
	}

	opts := ct.Defaults
	if v, ok := arguments["min_confidence"].(float64); ok {
		opts.MinConfidence = v
	}
	if v, ok := arguments["max_components"].(float64); ok && v > 0 {
		opts.MaxComponents = int(v)
	}
	if v, ok := arguments["analysis_depth"].(string); ok && v != "" {
		opts.AnalysisDepth = semantic.Depth(strings.ToLower(v))
	}
	if v, ok := arguments["enable_relationships"].(bool); ok {
		opts.EnableRelationshipAnalysis = v
	}
	if v, ok := arguments["enable_widgets"].(bool); ok {
		opts.EnableWidgetDetection = v
	}

	return semantic.Request{
		Elements: shapes,
		Viewport: viewport(shapes, arguments),
		Options:  opts,
	}, nil
}

func parseShapes(arguments map[string]interface{}) ([]scene.RawShape, error) {
	switch v := arguments["elements"].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return scene.ParseElementsJSON([]byte(v))
		}
	case nil:
	default:
		// Clients may send the element array as structured JSON.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read elements: %w", err)
		}
		return scene.ParseElementsJSON(data)
	}

	if svg, ok := arguments["svg"].(string); ok && strings.TrimSpace(svg) != "" {
		return scene.ParseSVG(strings.NewReader(svg))
	}
	return nil, fmt.Errorf("either elements or svg is required")
}

// viewport uses the requested size or the extent of the shapes.
func viewport(shapes []scene.RawShape, arguments map[string]interface{}) scene.Viewport {
	var vp scene.Viewport
	for i, s := range shapes {
		if i == 0 || s.X < vp.MinX {
			vp.MinX = s.X
		}
		if i == 0 || s.Y < vp.MinY {
			vp.MinY = s.Y
		}
		if i == 0 || s.X+s.Width > vp.MaxX {
			vp.MaxX = s.X + s.Width
		}
		if i == 0 || s.Y+s.Height > vp.MaxY {
			vp.MaxY = s.Y + s.Height
		}
	}
	vp.Width = vp.MaxX - vp.MinX
	vp.Height = vp.MaxY - vp.MinY

	if w, ok := arguments["viewport_width"].(float64); ok && w > 0 {
		vp.Width = w
		vp.MaxX = vp.MinX + w
	}
	if h, ok := arguments["viewport_height"].(float64); ok && h > 0 {
		vp.Height = h
		vp.MaxY = vp.MinY + h
	}
	return vp
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal JSON: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (ct *CanvasTools) extractHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := ct.extract(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (ct *CanvasTools) compactHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()
	req, err := ct.request(arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req.Options.EnableTokenOptimization = true

	res := ct.Manager.ExtractOrFallback(ctx, req)

	var b strings.Builder
	b.WriteString(semantic.RenderCompact(res.Components))
	b.WriteString("\n\n")
	if opt := res.TokenOptimization; opt != nil {
		fmt.Fprintf(&b, "Tokens: %d raw -> %d compact (%.1f%% reduction, target %.0f%%)\n",
			opt.RawTokens, opt.CompactTokens, opt.ReductionPercent, opt.Validation.TargetReduction)
		if opt.ExactCompactTokens > 0 {
			fmt.Fprintf(&b, "Exact (%s): %d raw -> %d compact\n", opt.Encoding, opt.ExactRawTokens, opt.ExactCompactTokens)
		}
		fmt.Fprintf(&b, "Validation passed: %t\n", opt.Validation.OverallSuccess)
	}
	fmt.Fprintf(&b, "Components: %d from %d elements", res.Summary.TotalComponents, res.Summary.TotalElements)
	if res.Summary.Degraded {
		b.WriteString(" (degraded)")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (ct *CanvasTools) diffHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()

	render := func(key string) (string, error) {
		req, err := ct.request(map[string]interface{}{"elements": arguments[key]})
		if err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return semantic.RenderCompact(ct.Manager.ExtractOrFallback(ctx, req).Components), nil
	}

	before, err := render("before")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	after, err := render("after")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	diff := semantic.DiffRenderings(before, after)
	return mcp.NewToolResultText(fmt.Sprintf("%d added, %d removed, %d unchanged\n\n%s",
		diff.Added, diff.Removed, diff.Unchanged, diff.Text)), nil
}

func (ct *CanvasTools) queryHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()
	raw, _ := arguments["query"].(string)

	q := query.NewQuery()
	if err := json.Unmarshal([]byte(raw), q); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
	}
	if err := q.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := ct.extract(ctx, arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matched, err := q.Apply(res.Components)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"query":      q.String(),
		"total":      len(res.Components),
		"components": matched,
	})
}

func (ct *CanvasTools) contextHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()
	id, _ := arguments["component_id"].(string)
	if id == "" {
		return mcp.NewToolResultError("component_id is required"), nil
	}

	depth := 1
	if v, ok := arguments["depth"].(float64); ok && v >= 0 {
		depth = int(v)
	}
	kind := algorithms.BFS
	if v, ok := arguments["traversal"].(string); ok && v != "" {
		parsed, err := algorithms.ParseTraversalType(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		kind = parsed
	}

	res, err := ct.extract(ctx, arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := graph.FromResult(ctx, res)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	traversal := algorithms.NewGraphTraversal(g)
	if rel, ok := arguments["relationship"].(string); ok && rel != "" {
		t, ok := semantic.ParseRelationshipType(rel)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown relationship type %q", rel)), nil
		}
		traversal.FollowOnly(string(t))
	}

	if target, ok := arguments["target_id"].(string); ok && target != "" {
		path, err := traversal.ShortestPath(ctx, id, target)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{
			"component": id,
			"target":    target,
			"hops":      len(path) - 1,
			"path":      path,
		})
	}

	nodes, err := traversal.Traverse(ctx, id, depth, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	var edges []graph.Edge
	for _, e := range g.Data().Edges {
		if ids[e.Source] && ids[e.Target] {
			edges = append(edges, e)
		}
	}

	return jsonResult(map[string]interface{}{
		"component": id,
		"traversal": kind,
		"depth":     depth,
		"nodes":     nodes,
		"edges":     edges,
	})
}

func (ct *CanvasTools) exportHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()
	format, _ := arguments["format"].(string)
	output, _ := arguments["output"].(string)

	res, err := ct.extract(ctx, arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := graph.FromResult(ctx, res)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data := g.Data()

	var (
		target string
		store  storage.GraphStore
	)
	switch strings.ToLower(format) {
	case "json":
		if output == "" {
			return jsonResult(data)
		}
		store = storage.NewJSONGraphStore(output)
		target = output

	case "html":
		if output == "" {
			var b strings.Builder
			if err := visualizer.NewD3Visualizer("").Render(&b, data); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(b.String()), nil
		}
		if err := visualizer.NewD3Visualizer(output).Visualize(data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		target = output

	case "neo4j":
		if ct.Neo4jURI == "" {
			return mcp.NewToolResultError("NEO4J_URI is not configured"), nil
		}
		if output == "" {
			output = "canvas"
		}
		neo, err := storage.NewNeo4jStore(ct.Neo4jURI, ct.Neo4jUser, ct.Neo4jPassword, output)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defer neo.Close()
		if err := neo.Connect(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		store = neo
		target = fmt.Sprintf("Neo4j graph %q", output)

	default:
		return mcp.NewToolResultError("format must be json, html or neo4j"), nil
	}

	if store != nil {
		if err := store.StoreGraph(ctx, data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("Exported %d components and %d relationships to %s",
		len(data.Nodes), len(data.Edges), target)), nil
}

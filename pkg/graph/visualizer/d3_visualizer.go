package visualizer

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/athapong/canvas-mcp/pkg/graph"
)

// d3Template draws components at their canvas positions, sized by their
// bounding boxes. The force layout only nudges overlapping boxes apart.
const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body { margin: 0; font-family: Helvetica, Arial, sans-serif; }
        #canvas { width: 100%; height: 100vh; background: #fafafa; }
        .component { fill-opacity: 0.25; stroke-width: 1.5px; }
        .component.widget { stroke-dasharray: 4 2; }
        .relationship { fill: none; stroke-opacity: 0.7; }
        .caption { font-size: 11px; pointer-events: none; }
        .panel {
            position: absolute; top: 12px; left: 12px; max-width: 260px;
            background: rgba(255,255,255,0.9); padding: 10px 12px;
            border: 1px solid #ddd; border-radius: 4px;
        }
        .panel select { width: 100%; margin-bottom: 6px; }
        .legend span { display: inline-block; margin: 2px 6px 2px 0; font-size: 11px; }
        .legend i { display: inline-block; width: 10px; height: 10px; margin-right: 3px; }
    </style>
</head>
<body>
    <div id="canvas"></div>
    <div class="panel">
        <h3>{{.Title}}</h3>
        <p>Components: {{.NodeCount}}, Relationships: {{.EdgeCount}}</p>
        <label for="role">Role</label>
        <select id="role"><option value="">All</option></select>
        <label for="relationship">Relationship</label>
        <select id="relationship"><option value="">All</option></select>
        <div class="legend" id="legend"></div>
    </div>

    <script>
        const graphData = {{.GraphData}};
        const nodes = graphData.nodes || [];
        const edges = (graphData.edges || []).map(e => Object.assign({}, e));

        const prop = (n, k, def) => (n.properties && n.properties[k] !== undefined) ? n.properties[k] : def;
        nodes.forEach(n => {
            n.w = Math.max(prop(n, "width", 40), 8);
            n.h = Math.max(prop(n, "height", 24), 8);
            n.homeX = prop(n, "x", 0) + n.w / 2;
            n.homeY = prop(n, "y", 0) + n.h / 2;
            n.x = n.homeX;
            n.y = n.homeY;
        });

        const roles = [...new Set(nodes.map(n => n.type))].sort();
        const relTypes = [...new Set(edges.map(e => e.type))].sort();
        const roleColor = d3.scaleOrdinal(d3.schemeTableau10).domain(roles);
        const relColor = d3.scaleOrdinal(d3.schemeDark2).domain(relTypes);

        roles.forEach(r => d3.select("#role").append("option").attr("value", r).text(r));
        relTypes.forEach(r => d3.select("#relationship").append("option").attr("value", r).text(r));
        roles.forEach(r => {
            const item = d3.select("#legend").append("span");
            item.append("i").style("background", roleColor(r));
            item.append("text").text(r);
        });

        const svg = d3.select("#canvas").append("svg")
            .attr("width", "100%")
            .attr("height", "100%");
        const view = svg.append("g");
        svg.call(d3.zoom().on("zoom", event => view.attr("transform", event.transform)));

        svg.append("defs").selectAll("marker")
            .data(relTypes)
            .enter().append("marker")
            .attr("id", d => "arrow-" + d)
            .attr("viewBox", "0 -4 8 8")
            .attr("refX", 8)
            .attr("markerWidth", 6)
            .attr("markerHeight", 6)
            .attr("orient", "auto")
            .append("path")
            .attr("d", "M0,-4L8,0L0,4")
            .attr("fill", d => relColor(d));

        const byId = new Map(nodes.map(n => [n.id, n]));
        const link = view.append("g").selectAll("line")
            .data(edges.filter(e => byId.has(e.source) && byId.has(e.target)))
            .enter().append("line")
            .attr("class", "relationship")
            .attr("stroke", d => relColor(d.type))
            .attr("stroke-width", d => 1 + 2 * (d.weight || 0.5))
            .attr("marker-end", d => "url(#arrow-" + d.type + ")");
        link.append("title").text(d => d.type + " (" + (d.weight || 0).toFixed(2) + ")");

        const box = view.append("g").selectAll("rect")
            .data(nodes)
            .enter().append("rect")
            .attr("class", d => "component" + (prop(d, "widget_type", "") ? " widget" : ""))
            .attr("width", d => d.w)
            .attr("height", d => d.h)
            .attr("fill", d => roleColor(d.type))
            .attr("stroke", d => roleColor(d.type))
            .call(d3.drag()
                .on("start", (event, d) => { if (!event.active) simulation.alphaTarget(0.3).restart(); d.fx = d.x; d.fy = d.y; })
                .on("drag", (event, d) => { d.fx = event.x; d.fy = event.y; })
                .on("end", (event, d) => { if (!event.active) simulation.alphaTarget(0); d.fx = null; d.fy = null; }));
        box.append("title").text(d =>
            d.label + "\n" + d.type + " " + (d.confidence || 0).toFixed(2) +
            (prop(d, "text", "") ? "\n\"" + prop(d, "text", "") + "\"" : ""));

        const caption = view.append("g").selectAll("text")
            .data(nodes)
            .enter().append("text")
            .attr("class", "caption")
            .text(d => d.type + (prop(d, "text", "") ? ": " + prop(d, "text", "").slice(0, 24) : ""));

        const simulation = d3.forceSimulation(nodes)
            .force("x", d3.forceX(d => d.homeX).strength(0.6))
            .force("y", d3.forceY(d => d.homeY).strength(0.6))
            .force("collide", d3.forceCollide(d => Math.min(d.w, d.h) / 2))
            .on("tick", () => {
                box.attr("x", d => d.x - d.w / 2).attr("y", d => d.y - d.h / 2);
                caption.attr("x", d => d.x - d.w / 2 + 3).attr("y", d => d.y - d.h / 2 - 3);
                link
                    .attr("x1", d => byId.get(d.source).x)
                    .attr("y1", d => byId.get(d.source).y)
                    .attr("x2", d => byId.get(d.target).x)
                    .attr("y2", d => byId.get(d.target).y);
            });

        function applyFilters() {
            const role = d3.select("#role").property("value");
            const rel = d3.select("#relationship").property("value");
            const shown = d => !role || d.type === role;
            box.style("opacity", d => shown(d) ? 1 : 0.1);
            caption.style("opacity", d => shown(d) ? 1 : 0.1);
            link.style("visibility", d =>
                (!rel || d.type === rel) && (shown(byId.get(d.source)) || shown(byId.get(d.target))) ? "visible" : "hidden");
        }
        d3.select("#role").on("change", applyFilters);
        d3.select("#relationship").on("change", applyFilters);
    </script>
</body>
</html>
`

// D3Visualizer renders component graphs as a D3.js force layout
type D3Visualizer struct {
	outputPath string
	title      string
}

// NewD3Visualizer creates a new D3.js visualizer
func NewD3Visualizer(outputPath string) *D3Visualizer {
	return &D3Visualizer{
		outputPath: outputPath,
		title:      "Component Graph",
	}
}

// WithTitle sets the heading shown above the graph
func (v *D3Visualizer) WithTitle(title string) *D3Visualizer {
	v.title = title
	return v
}

// Render writes the HTML page for g to w
func (v *D3Visualizer) Render(w io.Writer, g *graph.GraphData) error {
	graphData, err := json.Marshal(g)
	if err != nil {
		return err
	}

	tmpl, err := template.New("d3").Parse(d3Template)
	if err != nil {
		return err
	}

	data := struct {
		Title     string
		GraphData template.JS
		NodeCount int
		EdgeCount int
	}{
		Title:     v.title,
		GraphData: template.JS(graphData),
		NodeCount: len(g.Nodes),
		EdgeCount: len(g.Edges),
	}

	return tmpl.Execute(w, data)
}

// Visualize writes the HTML page for g to the output path
func (v *D3Visualizer) Visualize(g *graph.GraphData) error {
	dir := filepath.Dir(v.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := v.Render(&buf, g); err != nil {
		return err
	}

	return os.WriteFile(v.outputPath, buf.Bytes(), 0644)
}

package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/config"
	"github.com/athapong/canvas-mcp/pkg/graph"
	"github.com/athapong/canvas-mcp/pkg/graph/storage"
	"github.com/athapong/canvas-mcp/pkg/graph/visualizer"
	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/sirupsen/logrus"
)

var (
	inputDir  = flag.String("input", "", "Directory containing canvas files (.json elements or .svg)")
	outputDir = flag.String("output", "components", "Directory for the component graphs, one JSON file per canvas")
	visualize = flag.Bool("visualize", false, "Also write an HTML view of each component graph")
	toNeo4j   = flag.Bool("neo4j", false, "Also store each graph in Neo4j (NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD)")
	envFile   = flag.String("env", ".env", "Path to environment file")
	logLevel  = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
)

type canvasFile struct {
	path string
	name string
}

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Warnf("Could not load env file: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	files, err := readInputFiles(*inputDir)
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input files found")
	}
	logger.Infof("Processing %d canvas files...", len(files))

	var (
		reqs   []semantic.Request
		loaded []canvasFile
	)
	for _, f := range files {
		shapes, err := parseCanvas(f.path)
		if err != nil {
			logger.Errorf("Failed to parse %s: %v", f.path, err)
			continue
		}
		reqs = append(reqs, semantic.Request{Elements: shapes, Options: cfg.Extraction})
		loaded = append(loaded, f)
	}

	pipelineOpts := []semantic.Option{semantic.WithLogger(logger)}
	if cfg.ExactTokens {
		if counter, err := semantic.NewTiktokenCounter("cl100k_base"); err == nil {
			pipelineOpts = append(pipelineOpts, semantic.WithTokenCounter(counter))
		} else {
			logger.Warnf("Exact token counts disabled: %v", err)
		}
	}
	pipeline := semantic.NewPipeline(pipelineOpts...)

	ctx := context.Background()
	results, err := pipeline.BatchExtract(ctx, reqs)
	if err != nil {
		logger.Fatalf("Failed to extract components: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("Failed to create output directory: %v", err)
	}

	var neo *storage.Neo4jStore
	if *toNeo4j {
		neo, err = storage.NewNeo4jStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, "canvas")
		if err != nil {
			logger.Fatalf("Failed to create Neo4j store: %v", err)
		}
		defer neo.Close()
		if err := neo.Connect(ctx); err != nil {
			logger.Fatalf("Failed to connect to Neo4j: %v", err)
		}
	}

	for i, res := range results {
		f := loaded[i]
		g, err := graph.FromResult(ctx, res)
		if err != nil {
			logger.Errorf("Failed to build graph for %s: %v", f.path, err)
			continue
		}
		data := g.Data()

		out := filepath.Join(*outputDir, f.name+".json")
		if err := storage.NewJSONGraphStore(out).StoreGraph(ctx, data); err != nil {
			logger.Errorf("Failed to store graph for %s: %v", f.path, err)
			continue
		}
		logger.WithFields(logrus.Fields{
			"file":          f.path,
			"components":    len(data.Nodes),
			"relationships": len(data.Edges),
			"widgets":       res.Summary.WidgetCount,
		}).Infof("Component graph saved to %s", out)

		if *visualize {
			vizOut := filepath.Join(*outputDir, f.name+".html")
			viz := visualizer.NewD3Visualizer(vizOut).WithTitle(f.name)
			if err := viz.Visualize(data); err != nil {
				logger.Errorf("Failed to visualize %s: %v", f.path, err)
			} else {
				logger.Infof("Visualization saved to %s", vizOut)
			}
		}

		if neo != nil {
			if err := neo.Named(f.name).StoreGraph(ctx, data); err != nil {
				logger.Errorf("Failed to store %s in Neo4j: %v", f.path, err)
			} else {
				logger.Infof("Stored %s in Neo4j", f.name)
			}
		}
	}
}

func parseCanvas(path string) ([]scene.RawShape, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return scene.ParseSVG(bytes.NewReader(content))
	}
	return scene.ParseElementsJSON(content)
}

// readInputFiles lists the canvas files under inputDir
func readInputFiles(inputDir string) ([]canvasFile, error) {
	supportedExtensions := map[string]bool{
		".json": true, ".excalidraw": true, ".svg": true,
	}

	var files []canvasFile
	err := filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			ext := strings.ToLower(filepath.Ext(path))
			if supportedExtensions[ext] {
				files = append(files, canvasFile{
					path: path,
					name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				})
			}
		}
		return nil
	})

	return files, err
}

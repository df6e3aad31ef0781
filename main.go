package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athapong/canvas-mcp/pkg/config"
	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/semantic/enhance"
	"github.com/athapong/canvas-mcp/pkg/semantic/metrics"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
	"github.com/athapong/canvas-mcp/pkg/worker"
	"github.com/athapong/canvas-mcp/prompts"
	"github.com/athapong/canvas-mcp/services"
	"github.com/athapong/canvas-mcp/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	enableSSE := flag.Bool("sse", false, "Enable SSE server")
	sseAddr := flag.String("sse-addr", ":8080", "Address for SSE server to listen on")
	sseBasePath := flag.String("sse-base-path", "/mcp", "Base path for SSE endpoints")
	flag.Parse()

	// stdout carries the stdio transport, so logs go to stderr.
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.WithError(err).Warn("Could not load env file")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	manager := worker.NewManager(
		worker.WithLogger(logger),
		worker.WithExtractor(newPipeline(cfg, logger)),
		worker.WithMaxConcurrent(cfg.WorkerMaxConcurrent),
		worker.WithTimeout(cfg.WorkerTimeout),
		worker.WithEnhancer(newEnhancer(cfg, logger)),
	)
	defer manager.Close()

	store := widgets.NewStorage(widgets.WithStorageLogger(logger))

	var geocoder widgets.Geocoder
	if cfg.GoogleMapsAPIKey != "" {
		g, err := widgets.NewGoogleGeocoder(cfg.GoogleMapsAPIKey)
		if err != nil {
			logger.WithError(err).Warn("Google Maps geocoding disabled")
		} else {
			geocoder = g
		}
	}

	mcpServer := server.NewMCPServer(
		"canvas-mcp",
		"1.0.0",
		server.WithLogging(),
		server.WithPromptCapabilities(true),
	)

	if cfg.ToolEnabled("tool_manager") {
		tools.RegisterToolManagerTool(mcpServer)
	}

	canvasTools := &tools.CanvasTools{
		Manager:       manager,
		Defaults:      cfg.Extraction,
		Widgets:       store,
		Geocoder:      geocoder,
		Logger:        logger,
		Neo4jURI:      cfg.Neo4jURI,
		Neo4jUser:     cfg.Neo4jUser,
		Neo4jPassword: cfg.Neo4jPassword,
	}
	if cfg.ToolEnabled("canvas") {
		tools.RegisterCanvasTools(mcpServer, canvasTools)
		prompts.RegisterCanvasPrompts(mcpServer, manager, cfg.Extraction)
	}
	if cfg.ToolEnabled("canvas_graph") {
		tools.RegisterCanvasGraphTools(mcpServer, canvasTools)
	}
	if cfg.ToolEnabled("widgets") {
		tools.RegisterWidgetTools(mcpServer, &tools.WidgetTools{Store: store, Geocoder: geocoder})
	}
	if cfg.ToolEnabled("planner") {
		tools.RegisterPlannerTool(mcpServer, cfg.EnhancerModel)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	if *enableSSE || os.Getenv("ENABLE_SSE") == "true" {
		sseServer := server.NewSSEServer(
			mcpServer,
			server.WithBasePath(*sseBasePath),
			server.WithKeepAlive(true),
		)

		go func() {
			logger.WithFields(logrus.Fields{"addr": *sseAddr, "base_path": *sseBasePath}).Info("Starting SSE server")
			if err := sseServer.Start(*sseAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Fatal("Failed to start SSE server")
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("SSE server shutdown failed")
		}
		logger.Info("SSE server shutdown complete")
		return
	}

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.WithError(err).Error("Server error")
	}
}

func newPipeline(cfg *config.Config, logger *logrus.Logger) *semantic.Pipeline {
	opts := []semantic.Option{semantic.WithLogger(logger)}
	if cfg.ExactTokens {
		counter, err := semantic.NewTiktokenCounter("cl100k_base")
		if err != nil {
			logger.WithError(err).Warn("Exact token counts disabled")
		} else {
			opts = append(opts, semantic.WithTokenCounter(counter))
		}
	}
	return semantic.NewPipeline(opts...)
}

// newEnhancer returns nil unless the enhancer is switched on and an LLM
// provider is configured.
func newEnhancer(cfg *config.Config, logger *logrus.Logger) enhance.Enhancer {
	if !cfg.EnableEnhancer {
		return nil
	}
	client, err := services.DefaultLLMClient()
	if err != nil {
		logger.WithError(err).Warn("LLM enhancement disabled")
		return nil
	}
	return enhance.NewLLMEnhancer(client,
		enhance.WithModel(cfg.EnhancerModel),
		enhance.WithTimeout(cfg.EnhancerTimeout),
		enhance.WithLogger(logger),
	)
}

func serveMetrics(addr string, logger *logrus.Logger) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			metrics.UpdateSystemMetrics()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Error("Metrics server stopped")
	}
}

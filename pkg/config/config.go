// Package config reads the server and CLI settings from the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/worker"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the full set of runtime settings.
type Config struct {
	Extraction  semantic.Options
	ExactTokens bool

	WorkerMaxConcurrent int
	WorkerTimeout       time.Duration

	LogLevel logrus.Level

	// EnabledTools is empty when every tool is enabled.
	EnabledTools []string

	EnableEnhancer  bool
	EnhancerModel   string
	EnhancerTimeout time.Duration

	GoogleMapsAPIKey string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	MetricsAddr string
}

// LoadEnvFile merges path into the environment. A missing file is not an
// error; variables already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment. Unset variables take
// their defaults; malformed ones are reported.
func Load() (*Config, error) {
	cfg := &Config{
		Extraction:          semantic.DefaultOptions(),
		WorkerMaxConcurrent: worker.DefaultMaxConcurrent,
		WorkerTimeout:       worker.DefaultTimeout,
		LogLevel:            logrus.InfoLevel,
		EnhancerModel:       "gpt-4o-mini",
		EnhancerTimeout:     20 * time.Second,
		Neo4jURI:            "bolt://localhost:7687",
		Neo4jUser:           "neo4j",
	}

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	if v, ok := lookup("CANVAS_MIN_CONFIDENCE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			fail("CANVAS_MIN_CONFIDENCE", fmt.Errorf("must be a number in [0,1], got %q", v))
		} else {
			cfg.Extraction.MinConfidence = f
		}
	}
	if v, ok := lookup("CANVAS_MAX_COMPONENTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail("CANVAS_MAX_COMPONENTS", fmt.Errorf("must be a positive integer, got %q", v))
		} else {
			cfg.Extraction.MaxComponents = n
		}
	}
	if v, ok := lookup("CANVAS_ANALYSIS_DEPTH"); ok {
		switch d := semantic.Depth(strings.ToLower(v)); d {
		case semantic.DepthFast, semantic.DepthStandard, semantic.DepthThorough:
			cfg.Extraction.AnalysisDepth = d
		default:
			fail("CANVAS_ANALYSIS_DEPTH", fmt.Errorf("must be fast, standard or thorough, got %q", v))
		}
	}

	boolVar(&cfg.Extraction.EnableRelationshipAnalysis, "CANVAS_ENABLE_RELATIONSHIPS", fail)
	boolVar(&cfg.Extraction.EnableWidgetDetection, "CANVAS_ENABLE_WIDGETS", fail)
	boolVar(&cfg.Extraction.EnableTokenOptimization, "CANVAS_ENABLE_TOKENS", fail)
	boolVar(&cfg.ExactTokens, "CANVAS_EXACT_TOKENS", fail)
	boolVar(&cfg.EnableEnhancer, "ENABLE_ENHANCER", fail)

	if v, ok := lookup("WORKER_MAX_CONCURRENT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail("WORKER_MAX_CONCURRENT", fmt.Errorf("must be a positive integer, got %q", v))
		} else {
			cfg.WorkerMaxConcurrent = n
		}
	}
	durationVar(&cfg.WorkerTimeout, "WORKER_TIMEOUT", fail)
	durationVar(&cfg.EnhancerTimeout, "ENHANCER_TIMEOUT", fail)

	if v, ok := lookup("LOG_LEVEL"); ok {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			fail("LOG_LEVEL", err)
		} else {
			cfg.LogLevel = level
		}
	}

	cfg.EnabledTools = ParseToolList(os.Getenv("ENABLE_TOOLS"))

	if v, ok := lookup("ENHANCER_MODEL"); ok {
		cfg.EnhancerModel = v
	}
	cfg.GoogleMapsAPIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	if v, ok := lookup("NEO4J_URI"); ok {
		cfg.Neo4jURI = v
	}
	if v, ok := lookup("NEO4J_USER"); ok {
		cfg.Neo4jUser = v
	}
	cfg.Neo4jPassword = os.Getenv("NEO4J_PASSWORD")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// ToolEnabled reports whether name is switched on.
func (c *Config) ToolEnabled(name string) bool {
	return len(c.EnabledTools) == 0 || slices.Contains(c.EnabledTools, name)
}

// ParseToolList splits a comma separated ENABLE_TOOLS value.
func ParseToolList(v string) []string {
	var out []string
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func boolVar(dst *bool, key string, fail func(string, error)) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		fail(key, fmt.Errorf("must be a boolean, got %q", v))
		return
	}
	*dst = b
}

func durationVar(dst *time.Duration, key string, fail func(string, error)) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		fail(key, fmt.Errorf("must be a positive duration, got %q", v))
		return
	}
	*dst = d
}

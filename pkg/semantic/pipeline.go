package semantic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic/metrics"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Pipeline runs the extraction stages over a scene. It holds no per-call
// state and is safe for concurrent use.
type Pipeline struct {
	logger    *logrus.Logger
	detector  *widgets.Detector
	counter   TokenCounter
	namer     NameSuggester
	batchSize int
	now       func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithDetector replaces the default widget detector
func WithDetector(d *widgets.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

// WithTokenCounter enables exact token counts at thorough depth
func WithTokenCounter(c TokenCounter) Option {
	return func(p *Pipeline) { p.counter = c }
}

// WithNameSuggester sets how components are named
func WithNameSuggester(n NameSuggester) Option {
	return func(p *Pipeline) { p.namer = n }
}

// WithBatchSize sets how many requests BatchExtract runs at once
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPipelineClock sets the clock used for timestamps
func WithPipelineClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a new extraction pipeline
func NewPipeline(opts ...Option) *Pipeline {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	p := &Pipeline{
		logger:    logger,
		batchSize: 10,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.detector == nil {
		p.detector = widgets.NewDetector(widgets.WithClock(p.now))
	}
	if p.namer == nil {
		p.namer = NewProseNamer(p.logger)
	}
	return p
}

// Extract runs every stage over req and returns the component graph.
// Malformed elements never fail the call; only a cancelled context does.
func (p *Pipeline) Extract(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	opts := req.Options.withDefaults()
	log := p.logger.WithFields(logrus.Fields{
		"element_count":  len(req.Elements),
		"analysis_depth": opts.AnalysisDepth,
	})
	log.Debug("Starting extraction")

	var s stageOutput

	s.normalized = timed("normalize", func() *scene.Normalized { return scene.Normalize(req.Elements) })
	if len(s.normalized.Skipped) > 0 {
		log.WithField("skipped", s.normalized.Skipped).Warn("Skipped elements with non-finite geometry")
	}
	if err := checkpoint(ctx, "normalize"); err != nil {
		return nil, err
	}

	s.hierarchy = timed("containers", func() *Hierarchy { return ResolveContainers(s.normalized) })
	s.attachments = timed("text", func() []TextAttachment { return AttachText(s.normalized, s.hierarchy) })
	s.connectors = timed("connectors", func() []Connector { return AnalyzeConnectors(s.normalized, s.attachments) })
	if err := checkpoint(ctx, "connectors"); err != nil {
		return nil, err
	}

	s.roles = timed("roles", func() []RoleAssignment {
		return ClassifyRoles(s.normalized, s.hierarchy, s.attachments, s.connectors)
	})

	if opts.EnableWidgetDetection {
		s.detections = timed("widgets", func() []widgets.Detection { return p.detectWidgets(s) })
	}
	if err := checkpoint(ctx, "widgets"); err != nil {
		return nil, err
	}

	comps := timed("assemble", func() []Component { return assembleComponents(s, req.Viewport) })
	comps, dropped := selectComponents(comps, opts.MinConfidence, opts.MaxComponents)
	comps = linkLayout(comps, s.hierarchy)

	if opts.relationshipsEnabled() {
		comps = timed("relationships", func() []Component { return AnalyzeRelationships(comps) })
	}
	comps = ConnectorRelationships(comps, s.connectors)
	comps = assignNames(comps, p.namer)
	if err := checkpoint(ctx, "relationships"); err != nil {
		return nil, err
	}

	res := &Result{
		Components: comps,
		Timestamp:  start,
		Detections: s.detections,
		Connectors: s.connectors,
	}

	if opts.EnableTokenOptimization {
		opt := timed("tokens", func() TokenOptimization { return EstimateTokens(s.normalized, comps) })
		if opts.AnalysisDepth == DepthThorough && p.counter != nil {
			opt = countExact(opt, p.counter, s.normalized, comps)
		}
		res.TokenOptimization = &opt
		metrics.TokenReduction.Observe(opt.ReductionPercent)
	}

	res.Summary = summarize(res, s.normalized, dropped, opts.AnalysisDepth)
	res.ProcessingTime = p.now().Sub(start)

	for _, c := range comps {
		metrics.ComponentsByRole.WithLabelValues(string(c.Role)).Inc()
	}
	metrics.ExtractionsTotal.WithLabelValues("success").Inc()

	log.WithFields(logrus.Fields{
		"component_count": len(comps),
		"dropped":         dropped,
		"widgets":         res.Summary.WidgetCount,
		"duration_ms":     res.ProcessingTime.Milliseconds(),
	}).Info("Extraction completed")

	return res, nil
}

// detectWidgets scans every rectangle (own or attached text) and text
// element, hidden ones included. Negative detections are kept.
func (p *Pipeline) detectWidgets(s stageOutput) []widgets.Detection {
	idx := indexAttachments(s.attachments)
	srcs := make([]widgets.Source, 0, len(s.normalized.Rectangles)+len(s.normalized.Texts))
	for _, el := range s.normalized.All {
		var text string
		switch el.Kind {
		case scene.KindRectangle:
			text = elementText(s.normalized, idx, el)
		case scene.KindText:
			text = strings.TrimSpace(el.Text)
		default:
			continue
		}
		srcs = append(srcs, widgets.Source{ElementID: el.ID, Text: text, Box: el.Box})
	}

	out := p.detector.DetectAll(srcs)
	for _, d := range out {
		if d.IsWidget {
			metrics.WidgetDetections.WithLabelValues(string(d.WidgetType), d.Method).Inc()
		}
	}
	return out
}

// BatchExtract runs Extract over reqs, batchSize at a time. Results are in
// input order. The first error aborts the remaining batches.
func (p *Pipeline) BatchExtract(ctx context.Context, reqs []Request) ([]*Result, error) {
	p.logger.WithField("request_count", len(reqs)).Info("Starting batch extraction")

	results := make([]*Result, len(reqs))
	for i := 0; i < len(reqs); i += p.batchSize {
		end := i + p.batchSize
		if end > len(reqs) {
			end = len(reqs)
		}

		errs := make(chan error, end-i)
		var wg sync.WaitGroup
		for j := i; j < end; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				res, err := p.Extract(ctx, reqs[j])
				if err != nil {
					p.logger.WithError(err).WithField("index", j).Error("Failed to extract components")
					errs <- fmt.Errorf("request %d: %w", j, err)
					return
				}
				results[j] = res
			}(j)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			return nil, fmt.Errorf("batch extraction failed: %w", err)
		}
	}

	p.logger.Info("Batch extraction completed")
	return results, nil
}

func summarize(res *Result, n *scene.Normalized, dropped int, depth Depth) Summary {
	res.Summary = Summary{
		TotalElements:     n.Len(),
		ConnectorCount:    len(res.Connectors),
		DroppedComponents: dropped,
		SkippedElements:   append([]string(nil), n.Skipped...),
		AnalysisDepth:     depth,
	}
	res.Recount()
	return res.Summary
}

func timed[T any](stage string, fn func() T) T {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(stage))
	defer timer.ObserveDuration()
	return fn()
}

func checkpoint(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		metrics.ExtractionsTotal.WithLabelValues("cancelled").Inc()
		return fmt.Errorf("extraction cancelled after %s: %w", stage, err)
	}
	return nil
}

// Package worker runs extractions on a background goroutine with a bounded
// number of pending requests and a per-request deadline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/semantic/enhance"
	"github.com/athapong/canvas-mcp/pkg/semantic/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	ErrTimeout       = errors.New("extraction timed out")
	ErrQueueFull     = errors.New("too many pending extractions")
	ErrWorkerCrashed = errors.New("extraction worker crashed")
	ErrClosed        = errors.New("worker manager is closed")
)

const (
	DefaultMaxConcurrent = 10
	DefaultTimeout       = 30 * time.Second
)

// Extractor is the computation the worker runs.
type Extractor interface {
	Extract(ctx context.Context, req semantic.Request) (*semantic.Result, error)
}

type message struct {
	id  string
	ctx context.Context
	req semantic.Request
}

type reply struct {
	result *semantic.Result
	err    error
}

// Manager owns one worker goroutine and the table of requests waiting on it.
type Manager struct {
	extractor     Extractor
	enhancer      enhance.Enhancer
	logger        *logrus.Logger
	maxConcurrent int
	timeout       time.Duration

	sem   *semaphore.Weighted
	inbox chan message
	done  chan struct{}
	wg    sync.WaitGroup

	mu       sync.Mutex
	pending  map[string]chan reply
	closed   bool
	restarts atomic.Int32
}

// Option configures a Manager.
type Option func(*Manager)

func WithExtractor(e Extractor) Option {
	return func(m *Manager) { m.extractor = e }
}

// WithEnhancer sets the optional enhancer run on successful results.
func WithEnhancer(e enhance.Enhancer) Option {
	return func(m *Manager) { m.enhancer = e }
}

func WithLogger(l *logrus.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager starts a worker and returns its handle. Close releases it.
func NewManager(opts ...Option) *Manager {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	m := &Manager{
		logger:        logger,
		maxConcurrent: DefaultMaxConcurrent,
		timeout:       DefaultTimeout,
		pending:       make(map[string]chan reply),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.extractor == nil {
		m.extractor = semantic.NewPipeline(semantic.WithLogger(m.logger))
	}

	m.sem = semaphore.NewWeighted(int64(m.maxConcurrent))
	m.inbox = make(chan message, m.maxConcurrent)
	m.spawn()
	return m
}

func (m *Manager) spawn() {
	m.wg.Add(1)
	go m.run()
}

func (m *Manager) run() {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("panic", fmt.Sprint(r)).Error("Extraction worker crashed")
			m.crash()
		}
	}()

	for {
		select {
		case <-m.done:
			return
		case msg := <-m.inbox:
			if !m.isPending(msg.id) {
				continue
			}
			res, err := m.extractor.Extract(msg.ctx, msg.req)
			m.deliver(msg.id, reply{result: res, err: err})
		}
	}
}

// crash rejects everything in flight and starts a fresh worker.
func (m *Manager) crash() {
	m.mu.Lock()
	closed := m.closed
	if !closed {
		m.restarts.Add(1)
	}
	for id, ch := range m.pending {
		ch <- reply{err: ErrWorkerCrashed}
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !closed {
		m.spawn()
	}
}

func (m *Manager) isPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

// deliver hands r to the waiting caller. Replies for requests that already
// gave up are dropped.
func (m *Manager) deliver(id string, r reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.pending[id]; ok {
		ch <- r
		delete(m.pending, id)
	}
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Extract queues req for the worker and waits for its reply.
func (m *Manager) Extract(ctx context.Context, req semantic.Request) (*semantic.Result, error) {
	res, err := m.extract(ctx, req)
	if err != nil {
		metrics.WorkerOutcomes.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	metrics.WorkerOutcomes.WithLabelValues("success").Inc()
	return enhance.Apply(ctx, m.enhancer, res, m.logger), nil
}

func (m *Manager) extract(ctx context.Context, req semantic.Request) (*semantic.Result, error) {
	if !m.sem.TryAcquire(1) {
		return nil, ErrQueueFull
	}
	defer m.sem.Release(1)

	id := uuid.NewString()
	ch := make(chan reply, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.pending[id] = ch
	m.mu.Unlock()

	metrics.WorkerPending.Inc()
	defer metrics.WorkerPending.Dec()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	select {
	case m.inbox <- message{id: id, ctx: ctx, req: req}:
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		m.forget(id)
		return nil, deadlineError(ctx)
	}

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return r.result, r.err
	case <-ctx.Done():
		m.forget(id)
		return nil, deadlineError(ctx)
	}
}

func deadlineError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrWorkerCrashed):
		return "crashed"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return "error"
}

// ExtractOrFallback returns the full extraction when the worker answers and
// a degraded per-element extraction when it does not.
func (m *Manager) ExtractOrFallback(ctx context.Context, req semantic.Request) *semantic.Result {
	res, err := m.Extract(ctx, req)
	if err == nil {
		return res
	}
	m.logger.WithError(err).WithField("element_count", len(req.Elements)).Warn("Falling back to minimal extraction")
	return semantic.MinimalExtract(req)
}

// Pending reports how many requests are waiting on the worker.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Restarts reports how many times the worker was respawned after a crash.
func (m *Manager) Restarts() int {
	return int(m.restarts.Load())
}

// Close rejects pending requests with ErrClosed and stops the worker.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, ch := range m.pending {
		ch <- reply{err: ErrClosed}
		delete(m.pending, id)
	}
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}

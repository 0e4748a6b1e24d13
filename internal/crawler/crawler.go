package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/guidecrawler/internal/extract"
	"github.com/JakeFAU/guidecrawler/internal/metrics"
	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

// Defaults applied by NewEngine.
const (
	DefaultMaxPages    = 200
	DefaultConcurrency = 4
	DefaultTimeout     = 20 * time.Second
)

// ErrFetch marks a page that could not be retrieved.
var ErrFetch = errors.New("fetch failed")

// State is the lifecycle of a single crawl.
type State int

// Crawl states. A crawl only moves forward.
const (
	StateIdle State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "done"
	}
}

// Config governs crawl traversal.
type Config struct {
	MaxPages       int
	SameDomainOnly bool
	Concurrency    int
	Timeout        time.Duration
}

// Engine holds the collaborators shared by every crawl. Crawls started from
// the same Engine share no traversal state.
type Engine struct {
	fetcher   Fetcher
	extractor *extract.Extractor
	limiter   RateLimiter
	cfg       Config
	logger    *zap.Logger
}

// NewEngine builds an Engine. limiter may be nil.
func NewEngine(fetcher Fetcher, extractor *extract.Extractor, limiter RateLimiter, cfg Config, logger *zap.Logger) *Engine {
	if extractor == nil {
		extractor = extract.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Engine{
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl prepares a crawl rooted at startURL. maxPages overrides the engine
// default when positive. Nothing is fetched until Next is called.
func (e *Engine) Crawl(startURL string, maxPages int) *Crawler {
	cfg := e.cfg
	if maxPages > 0 {
		cfg.MaxPages = maxPages
	}
	start := urlnorm.Canonicalize(startURL)
	return &Crawler{
		engine:     e,
		cfg:        cfg,
		start:      start,
		baseDomain: urlnorm.Host(start),
		frontier:   []string{start},
		seen:       map[string]struct{}{start: {}},
		visited:    make(map[string]struct{}),
		failed:     make(map[string]struct{}),
		logger:     e.logger.With(zap.String("start_url", start)),
	}
}

// Crawler is a single breadth-first traversal. It is not safe for concurrent
// use; fetches run in parallel internally but results are applied by the
// caller's goroutine in dequeue order.
type Crawler struct {
	engine     *Engine
	cfg        Config
	start      string
	baseDomain string
	state      State

	frontier []string
	seen     map[string]struct{}
	visited  map[string]struct{}
	failed   map[string]struct{}
	pending  []extract.PageContent

	logger *zap.Logger
}

// State reports where the crawl is in its lifecycle.
func (c *Crawler) State() State {
	return c.state
}

// BaseDomain is the host crawl scope is measured against.
func (c *Crawler) BaseDomain() string {
	return c.baseDomain
}

// Visited returns how many pages have been marked visited.
func (c *Crawler) Visited() int {
	return len(c.visited)
}

// Next returns the next extracted HTML page. ok is false once the frontier is
// exhausted or the page budget is spent. A canceled context ends the crawl and
// returns the context error.
func (c *Crawler) Next(ctx context.Context) (extract.PageContent, bool, error) {
	if c.state == StateIdle {
		c.state = StateRunning
		c.logger.Info("crawl started", zap.Int("max_pages", c.cfg.MaxPages))
	}
	for {
		if len(c.pending) > 0 {
			page := c.pending[0]
			c.pending = c.pending[1:]
			return page, true, nil
		}
		if c.state == StateDone {
			return extract.PageContent{}, false, nil
		}
		if err := ctx.Err(); err != nil {
			c.finish()
			return extract.PageContent{}, false, fmt.Errorf("crawl canceled: %w", err)
		}

		batch := c.nextBatch()
		if len(batch) == 0 {
			c.finish()
			continue
		}
		results := c.fetchBatch(ctx, batch)
		if err := ctx.Err(); err != nil {
			c.finish()
			return extract.PageContent{}, false, fmt.Errorf("crawl canceled: %w", err)
		}
		c.integrate(batch, results)
	}
}

// Walk drains the crawl, handing each page to fn. It stops at the first
// error returned by fn.
func (c *Crawler) Walk(ctx context.Context, fn func(extract.PageContent) error) error {
	for {
		page, ok, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
	}
}

func (c *Crawler) finish() {
	if c.state == StateDone {
		return
	}
	c.state = StateDone
	c.logger.Info("crawl finished",
		zap.Int("visited", len(c.visited)),
		zap.Int("failed", len(c.failed)),
		zap.Int("frontier", len(c.frontier)),
	)
}

// nextBatch dequeues fetchable URLs, never more than the remaining page budget
// so that a fully successful batch cannot overshoot MaxPages.
func (c *Crawler) nextBatch() []string {
	budget := min(c.cfg.Concurrency, c.cfg.MaxPages-len(c.visited))
	var batch []string
	for len(batch) < budget && len(c.frontier) > 0 {
		next := c.frontier[0]
		c.frontier = c.frontier[1:]
		if _, done := c.visited[next]; done {
			continue
		}
		if !c.inScope(next) {
			continue
		}
		batch = append(batch, next)
	}
	return batch
}

func (c *Crawler) inScope(target string) bool {
	return !c.cfg.SameDomainOnly || urlnorm.IsInternal(target, c.baseDomain)
}

type fetchResult struct {
	resp FetchResponse
	err  error
}

func (c *Crawler) fetchBatch(ctx context.Context, batch []string) []fetchResult {
	results := make([]fetchResult, len(batch))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, target := range batch {
		g.Go(func() error {
			results[i] = c.fetch(ctx, target)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Crawler) fetch(ctx context.Context, target string) fetchResult {
	if c.engine.limiter != nil {
		if err := c.engine.limiter.Wait(ctx, target); err != nil {
			return fetchResult{err: fmt.Errorf("%w: %w", ErrFetch, err)}
		}
	}
	req := FetchRequest{URL: target, Timeout: c.cfg.Timeout}
	if c.cfg.SameDomainOnly {
		req.AllowedDomain = c.baseDomain
	}
	resp, err := c.engine.fetcher.Fetch(ctx, req)
	if err != nil {
		return fetchResult{err: fmt.Errorf("%w: %w", ErrFetch, err)}
	}
	return fetchResult{resp: resp}
}

// integrate applies fetch results in dequeue order. Failed URLs are not
// marked visited but are never refetched; non-HTML responses are visited and
// skipped.
func (c *Crawler) integrate(batch []string, results []fetchResult) {
	for i, target := range batch {
		res := results[i]
		site := c.baseDomain
		if res.err != nil {
			c.failed[target] = struct{}{}
			metrics.ObservePage(site, metrics.PageFailed, 0)
			c.logger.Warn("page fetch failed", zap.String("url", target), zap.Error(res.err))
			continue
		}
		c.visited[target] = struct{}{}
		if !res.resp.IsHTML() {
			metrics.ObservePage(site, metrics.PageSkipped, len(res.resp.Body))
			c.logger.Info("skipping non-html page",
				zap.String("url", target),
				zap.String("content_type", res.resp.ContentType()),
			)
			continue
		}

		page, err := c.engine.extractor.Extract(target, string(res.resp.Body))
		if err != nil {
			metrics.ObservePage(site, metrics.PageFailed, len(res.resp.Body))
			c.logger.Warn("page extraction failed", zap.String("url", target), zap.Error(err))
			continue
		}
		metrics.ObservePage(site, metrics.PageFetched, len(res.resp.Body))
		c.logger.Debug("page fetched",
			zap.String("url", target),
			zap.Int("status", res.resp.StatusCode),
			zap.Duration("duration", res.resp.Duration),
			zap.Int("links", len(page.Links)),
		)
		c.pending = append(c.pending, page)
		c.enqueue(page.Links)
	}
}

func (c *Crawler) enqueue(links []string) {
	for _, link := range links {
		if _, ok := c.seen[link]; ok {
			continue
		}
		if !c.inScope(link) {
			continue
		}
		c.seen[link] = struct{}{}
		c.frontier = append(c.frontier, link)
	}
}

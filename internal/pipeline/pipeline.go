// Package pipeline implements the boss sync run: list, fetch, extract,
// enrich, persist.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/boss"
	"github.com/tibialore/boss-sync/internal/metrics"
	"github.com/tibialore/boss-sync/internal/wikitext"
)

// Config controls Pipeline behavior.
type Config struct {
	// Category is the wiki category whose member pages are synced.
	Category string
	// Concurrency bounds the number of in-flight fetch+extract workers.
	Concurrency int
	// BatchSize is the number of records enriched and persisted together.
	BatchSize int
	// Topic is the destination for run summary events. Empty disables
	// publishing.
	Topic string
	// ArchivePrefix is the blob path prefix for raw markup archival.
	ArchivePrefix string
}

func (c Config) withDefaults() Config {
	if c.Category == "" {
		c.Category = "Bosses"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.ArchivePrefix == "" {
		c.ArchivePrefix = "raw"
	}
	return c
}

// Pipeline orchestrates one full sync run under the cross-process lock.
type Pipeline struct {
	lister     boss.PageLister
	fetcher    boss.ContentFetcher
	images     boss.ImageResolver
	repo       boss.Repository
	lock       boss.Lock
	deadLetter boss.DeadLetter
	blobStore  boss.BlobStore
	publisher  boss.Publisher
	clock      boss.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Pipeline. blobStore and publisher may be nil, disabling
// raw markup archival and run summary events respectively.
func New(
	lister boss.PageLister,
	fetcher boss.ContentFetcher,
	images boss.ImageResolver,
	repo boss.Repository,
	lock boss.Lock,
	deadLetter boss.DeadLetter,
	blobStore boss.BlobStore,
	publisher boss.Publisher,
	clock boss.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		lister:     lister,
		fetcher:    fetcher,
		images:     images,
		repo:       repo,
		lock:       lock,
		deadLetter: deadLetter,
		blobStore:  blobStore,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// extracted pairs a record with the markup it came from.
type extracted struct {
	record boss.Record
	markup string
}

// Run executes one sync run. When the lock is already held the run is
// skipped and the returned summary has Skipped set. Per-item failures are
// dead-lettered and never abort the run.
func (p *Pipeline) Run(ctx context.Context) (summary boss.RunSummary, err error) {
	summary.StartedAt = p.clock.Now()

	if lockErr := p.lock.Ensure(ctx); lockErr != nil {
		return summary, fmt.Errorf("ensure sync lock: %w", lockErr)
	}
	acquired, lockErr := p.lock.Acquire(ctx)
	if lockErr != nil {
		return summary, fmt.Errorf("acquire sync lock: %w", lockErr)
	}
	if !acquired {
		p.logger.Info("sync already running, skipping")
		summary.Skipped = true
		summary.FinishedAt = p.clock.Now()
		metrics.ObserveRun("skipped", 0, 0)
		p.publishSummary(ctx, "sync.skipped", summary)
		return summary, nil
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("sync run panicked", zap.Any("panic", r))
			err = fmt.Errorf("sync run panicked: %v", r)
		}
		if releaseErr := p.lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			p.logger.Error("release sync lock failed", zap.Error(releaseErr))
		}
		summary.FinishedAt = p.clock.Now()
		if err != nil {
			metrics.ObserveRun("failed", 0, 0)
			return
		}
		metrics.ObserveRun("completed", summary.SuccessRate, summary.FinishedAt.Sub(summary.StartedAt))
		p.publishSummary(ctx, "sync.completed", summary)
	}()

	pages, listErr := p.lister.ListCategoryMembers(ctx, p.cfg.Category)
	if listErr != nil {
		return summary, fmt.Errorf("list category %q: %w", p.cfg.Category, listErr)
	}
	summary.Listed = len(pages)
	p.logger.Info("category listed",
		zap.String("category", p.cfg.Category),
		zap.Int("pages", len(pages)),
	)

	items := p.fetchAndExtract(ctx, pages)
	summary.Extracted = len(items)

	for start := 0; start < len(items); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		saved, batchErr := p.persistBatch(ctx, items[start:end])
		if batchErr != nil {
			return summary, batchErr
		}
		summary.Saved += saved
	}

	if summary.Listed > 0 {
		summary.SuccessRate = float64(summary.Extracted) / float64(summary.Listed)
	}
	p.logger.Info("sync run finished",
		zap.Int("listed", summary.Listed),
		zap.Int("extracted", summary.Extracted),
		zap.Int("saved", summary.Saved),
		zap.Float64("success_rate", summary.SuccessRate),
	)
	return summary, nil
}

// fetchAndExtract runs bounded workers over the page list. Failed items are
// dead-lettered; the order of results follows the page list.
func (p *Pipeline) fetchAndExtract(ctx context.Context, pages []boss.PageRef) []extracted {
	results := make([]*extracted, len(pages))
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, page := range pages {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, page boss.PageRef) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.processPage(ctx, page)
		}(i, page)
	}
	wg.Wait()

	out := make([]extracted, 0, len(pages))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// processPage fetches and extracts one page. It returns nil when the page
// is skipped or dead-lettered.
func (p *Pipeline) processPage(ctx context.Context, page boss.PageRef) *extracted {
	markup, ok, fetchErr := p.fetcher.FetchPageContent(ctx, page.PageID, "")
	if fetchErr != nil {
		p.reportFailure(page.Title, fmt.Sprintf("fetch page content: %v", fetchErr), markup)
		return nil
	}
	if !ok {
		p.logger.Debug("page has no content, skipping", zap.String("title", page.Title))
		metrics.ObservePage("missing")
		return nil
	}

	p.archiveMarkup(ctx, page, markup)

	rec, extractErr := wikitext.Extract(markup, page.Title)
	if extractErr != nil {
		p.reportFailure(page.Title, fmt.Sprintf("extract infobox: %v", extractErr), markup)
		return nil
	}
	metrics.ObservePage("extracted")
	return &extracted{record: rec, markup: markup}
}

// persistBatch resolves images for one batch and upserts the records.
func (p *Pipeline) persistBatch(ctx context.Context, items []extracted) (int, error) {
	filenames := make([]string, 0, len(items))
	for _, item := range items {
		if item.record.Visuals != nil && item.record.Visuals.Filename != nil {
			filenames = append(filenames, *item.record.Visuals.Filename)
		}
	}
	urls := p.images.Resolve(ctx, filenames)

	records := make([]boss.Record, 0, len(items))
	for _, item := range items {
		rec := item.record
		if rec.Visuals != nil && rec.Visuals.Filename != nil {
			if url, ok := urls[*rec.Visuals.Filename]; ok {
				u := url
				rec.Visuals.ResolvedURL = &u
			}
		}
		records = append(records, rec)
	}

	saved, err := p.repo.UpsertBatch(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("persist batch: %w", err)
	}
	for i := 0; i < saved; i++ {
		metrics.ObservePage("saved")
	}
	return saved, nil
}

// archiveMarkup uploads the raw page markup when a blob store is configured.
func (p *Pipeline) archiveMarkup(ctx context.Context, page boss.PageRef, markup string) {
	if p.blobStore == nil {
		return
	}
	path := fmt.Sprintf("%s/%s.txt", p.cfg.ArchivePrefix, boss.Slugify(page.Title))
	uri, err := p.blobStore.PutObject(ctx, path, "text/plain; charset=utf-8", []byte(markup))
	if err != nil {
		p.logger.Warn("archive markup failed",
			zap.String("title", page.Title),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("markup archived", zap.String("uri", uri))
}

// reportFailure dead-letters one failed item. Dead letter write failures
// are logged and dropped.
func (p *Pipeline) reportFailure(title, errorSummary, markup string) {
	p.logger.Warn("page failed",
		zap.String("title", title),
		zap.String("error", errorSummary),
	)
	metrics.ObservePage("dead_lettered")
	metrics.ObserveDeadLetter()
	entry := boss.DeadLetterEntry{
		Timestamp:      p.clock.Now().UTC(),
		ItemName:       title,
		ErrorSummary:   errorSummary,
		RawDataSnippet: markup,
	}
	if err := p.deadLetter.Append(entry); err != nil {
		p.logger.Error("dead letter append failed", zap.Error(err))
	}
}

func (p *Pipeline) publishSummary(ctx context.Context, event string, summary boss.RunSummary) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	if _, err := p.publisher.Publish(context.WithoutCancel(ctx), p.cfg.Topic, summary); err != nil {
		p.logger.Error("publish run summary failed",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

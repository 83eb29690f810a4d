package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tibialore/boss-sync/internal/boss"
	"github.com/tibialore/boss-sync/internal/metrics"
	pubmemory "github.com/tibialore/boss-sync/internal/publisher/memory"
	"github.com/tibialore/boss-sync/internal/storage/memory"
	"github.com/tibialore/boss-sync/internal/wiki"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeClock struct{}

func (fakeClock) Now() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

type fakeLister struct {
	pages []boss.PageRef
	err   error
	calls int
}

func (l *fakeLister) ListCategoryMembers(_ context.Context, _ string) ([]boss.PageRef, error) {
	l.calls++
	return l.pages, l.err
}

type fakeFetcher struct {
	content map[int]string // empty string means missing page
	err     map[int]error
}

func (f *fakeFetcher) FetchPageContent(_ context.Context, pageID int, _ string) (string, bool, error) {
	if err, ok := f.err[pageID]; ok {
		return "", false, err
	}
	markup, ok := f.content[pageID]
	if !ok || markup == "" {
		return "", false, nil
	}
	return markup, true, nil
}

type fakeResolver struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *fakeResolver) Resolve(_ context.Context, filenames []string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]string(nil), filenames...))
	out := make(map[string]string, len(filenames))
	for _, fn := range filenames {
		out[fn] = "https://img.example/" + fn
	}
	return out
}

type fakeDeadLetter struct {
	mu      sync.Mutex
	entries []boss.DeadLetterEntry
}

func (d *fakeDeadLetter) Append(entry boss.DeadLetterEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
	return nil
}

func bossMarkup(name string) string {
	return fmt.Sprintf("{{Infobox Boss|name=%s|hp=1000|exp=500}}", name)
}

type harness struct {
	lister     *fakeLister
	fetcher    *fakeFetcher
	resolver   *fakeResolver
	repo       *memory.BossStore
	lock       *memory.LockStore
	deadLetter *fakeDeadLetter
	blobs      *memory.BlobStore
	publisher  *pubmemory.Publisher
}

func newHarness() *harness {
	return &harness{
		lister:     &fakeLister{},
		fetcher:    &fakeFetcher{content: map[int]string{}, err: map[int]error{}},
		resolver:   &fakeResolver{},
		repo:       memory.NewBossStore(),
		lock:       memory.NewLockStore(fakeClock{}),
		deadLetter: &fakeDeadLetter{},
		blobs:      memory.NewBlobStore(),
		publisher:  pubmemory.New(),
	}
}

func (h *harness) pipeline(cfg Config) *Pipeline {
	return New(
		h.lister, h.fetcher, h.resolver,
		h.repo, h.lock, h.deadLetter,
		h.blobs, h.publisher,
		fakeClock{}, cfg, nil,
	)
}

func TestRunFullSync(t *testing.T) {
	h := newHarness()
	h.lister.pages = []boss.PageRef{
		{PageID: 1, Title: "Abyssador"},
		{PageID: 2, Title: "Ghazbaran"},
		{PageID: 3, Title: "Empty Page"},
		{PageID: 4, Title: "City Article"},
	}
	h.fetcher.content[1] = bossMarkup("Abyssador")
	h.fetcher.content[2] = bossMarkup("Ghazbaran")
	// page 3 is missing, page 4 has no usable infobox
	h.fetcher.content[4] = "{{Infobox City|name=Thais}}"

	summary, err := h.pipeline(Config{Topic: "boss-sync-events"}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Listed)
	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 2, summary.Saved)
	assert.InDelta(t, 0.5, summary.SuccessRate, 1e-9)
	assert.False(t, summary.Skipped)

	rec, err := h.repo.FindBySlug(context.Background(), "abyssador")
	require.NoError(t, err)
	require.NotNil(t, rec.Visuals)
	require.NotNil(t, rec.Visuals.ResolvedURL)
	assert.Equal(t, "https://img.example/Abyssador.gif", *rec.Visuals.ResolvedURL)

	// page 4 was dead-lettered with a markup snippet
	require.Len(t, h.deadLetter.entries, 1)
	assert.Equal(t, "City Article", h.deadLetter.entries[0].ItemName)
	assert.Contains(t, h.deadLetter.entries[0].RawDataSnippet, "Infobox City")

	// raw markup archived for every fetched page
	assert.Equal(t, 2, h.blobs.Len())
	data, ok := h.blobs.Object("raw/abyssador.txt")
	require.True(t, ok)
	assert.Equal(t, bossMarkup("Abyssador"), string(data))

	// lock released, run summary published
	acquired, err := h.lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
	summaries := h.publisher.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Saved)
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	h := newHarness()
	h.lister.pages = []boss.PageRef{{PageID: 1, Title: "Abyssador"}}

	require.NoError(t, h.lock.Ensure(context.Background()))
	acquired, err := h.lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	summary, err := h.pipeline(Config{Topic: "boss-sync-events"}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Zero(t, summary.Listed)
	assert.Equal(t, 0, h.lister.calls)

	// the holder keeps the lock
	st, err := h.lock.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, boss.LockRunning, st.Status)
}

func TestRunListErrorReleasesLock(t *testing.T) {
	h := newHarness()
	h.lister.err = fmt.Errorf("api unreachable")

	_, err := h.pipeline(Config{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api unreachable")

	acquired, err := h.lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired, "lock must be released after a failed run")
}

func TestRunFetchErrorIsDeadLettered(t *testing.T) {
	h := newHarness()
	h.lister.pages = []boss.PageRef{
		{PageID: 1, Title: "Abyssador"},
		{PageID: 2, Title: "Broken Page"},
	}
	h.fetcher.content[1] = bossMarkup("Abyssador")
	h.fetcher.err[2] = fmt.Errorf("boom")

	summary, err := h.pipeline(Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Saved)

	require.Len(t, h.deadLetter.entries, 1)
	assert.Equal(t, "Broken Page", h.deadLetter.entries[0].ItemName)
	assert.Contains(t, h.deadLetter.entries[0].ErrorSummary, "boom")
}

func TestRunBatchesImageResolution(t *testing.T) {
	h := newHarness()
	for i := 1; i <= 5; i++ {
		title := fmt.Sprintf("Boss %d", i)
		h.lister.pages = append(h.lister.pages, boss.PageRef{PageID: i, Title: title})
		h.fetcher.content[i] = bossMarkup(title)
	}

	summary, err := h.pipeline(Config{BatchSize: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Saved)

	// 5 records in batches of 2 -> 3 resolver calls
	require.Len(t, h.resolver.batches, 3)
	assert.Len(t, h.resolver.batches[0], 2)
	assert.Len(t, h.resolver.batches[2], 1)
}

func TestRunResolvesImagesViaFileNamespace(t *testing.T) {
	// An imageinfo endpoint faithful to the real API: only titles in the
	// File: namespace resolve, anything else is reported missing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		titles := strings.Split(r.PostForm.Get("titles"), "|")
		pages := make(map[string]any, len(titles))
		for i, title := range titles {
			if !strings.HasPrefix(title, "File:") {
				pages[fmt.Sprintf("-%d", i+1)] = map[string]any{"title": title, "missing": ""}
				continue
			}
			pages[fmt.Sprint(i+1)] = map[string]any{
				"title":     title,
				"imageinfo": []map[string]string{{"url": "https://static.example/" + strings.TrimPrefix(title, "File:")}},
			}
		}
		require.NoError(t, json.NewEncoder(w).Encode(
			map[string]any{"query": map[string]any{"pages": pages}},
		))
	}))
	defer srv.Close()

	h := newHarness()
	h.lister.pages = []boss.PageRef{{PageID: 1, Title: "Abyssador"}}
	h.fetcher.content[1] = bossMarkup("Abyssador")

	images := wiki.NewImageResolver(wiki.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, 50, nil)
	defer images.Close()

	p := New(
		h.lister, h.fetcher, images,
		h.repo, h.lock, h.deadLetter,
		h.blobs, h.publisher,
		fakeClock{}, Config{}, nil,
	)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// The stored filename stays bare while the URL resolved through the
	// File: namespace, not the placeholder.
	rec, err := h.repo.FindBySlug(context.Background(), "abyssador")
	require.NoError(t, err)
	require.NotNil(t, rec.Visuals)
	require.NotNil(t, rec.Visuals.Filename)
	assert.Equal(t, "Abyssador.gif", *rec.Visuals.Filename)
	require.NotNil(t, rec.Visuals.ResolvedURL)
	assert.Equal(t, "https://static.example/Abyssador.gif", *rec.Visuals.ResolvedURL)
}

// partialRepo drops one slug from every batch to model a partial upsert.
type partialRepo struct {
	*memory.BossStore
	dropSlug string
}

func (r *partialRepo) UpsertBatch(ctx context.Context, recs []boss.Record) (int, error) {
	kept := make([]boss.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Slug == r.dropSlug {
			continue
		}
		kept = append(kept, rec)
	}
	return r.BossStore.UpsertBatch(ctx, kept)
}

func TestRunSuccessRateCountsExtracted(t *testing.T) {
	h := newHarness()
	h.lister.pages = []boss.PageRef{
		{PageID: 1, Title: "Abyssador"},
		{PageID: 2, Title: "Ghazbaran"},
	}
	h.fetcher.content[1] = bossMarkup("Abyssador")
	h.fetcher.content[2] = bossMarkup("Ghazbaran")

	repo := &partialRepo{BossStore: h.repo, dropSlug: "ghazbaran"}
	p := New(
		h.lister, h.fetcher, h.resolver,
		repo, h.lock, h.deadLetter,
		h.blobs, h.publisher,
		fakeClock{}, Config{}, nil,
	)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	// The rate tracks extraction over listing; a partial upsert lowers
	// Saved without touching it.
	assert.Equal(t, 2, summary.Listed)
	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.Saved)
	assert.InDelta(t, 1.0, summary.SuccessRate, 1e-9)
}

func TestRunPreservesPageOrder(t *testing.T) {
	h := newHarness()
	names := []string{"Zomba", "Abyssador", "Morgaroth"}
	for i, name := range names {
		h.lister.pages = append(h.lister.pages, boss.PageRef{PageID: i + 1, Title: name})
		h.fetcher.content[i+1] = bossMarkup(name)
	}

	_, err := h.pipeline(Config{Concurrency: 2}).Run(context.Background())
	require.NoError(t, err)

	// the first resolver batch follows the category listing order
	require.NotEmpty(t, h.resolver.batches)
	var got []string
	for _, fn := range h.resolver.batches[0] {
		got = append(got, strings.TrimSuffix(fn, ".gif"))
	}
	assert.Equal(t, names, got)
}

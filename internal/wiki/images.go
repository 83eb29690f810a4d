package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/boss"
	"github.com/tibialore/boss-sync/internal/metrics"
)

// DefaultImageBatchSize caps the number of titles per imageinfo request.
const DefaultImageBatchSize = 50

// ImageResolver resolves image filenames to concrete URLs in batches.
// It never fails: every requested filename resolves to a URL or to the
// placeholder.
type ImageResolver struct {
	cfg       Config
	batchSize int
	httpc     *http.Client
	logger    *zap.Logger
}

// NewImageResolver builds an ImageResolver from cfg. batchSize <= 0 selects
// the default.
func NewImageResolver(cfg Config, batchSize int, logger *zap.Logger) *ImageResolver {
	cfg = cfg.withDefaults()
	if batchSize <= 0 {
		batchSize = DefaultImageBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageResolver{
		cfg:       cfg,
		batchSize: batchSize,
		httpc:     &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// Close releases idle connections held by the underlying pool.
func (r *ImageResolver) Close() {
	r.httpc.CloseIdleConnections()
}

// Resolve maps every input filename (deduplicated, first occurrence order)
// to a URL. A batch-level failure degrades that batch to placeholders and
// must not abort later batches.
func (r *ImageResolver) Resolve(ctx context.Context, filenames []string) map[string]string {
	result := make(map[string]string, len(filenames))
	unique := dedupe(filenames)
	if len(unique) == 0 {
		return result
	}

	batches := (len(unique) + r.batchSize - 1) / r.batchSize
	r.logger.Info("resolving images",
		zap.Int("filenames", len(unique)),
		zap.Int("batches", batches),
	)

	for start := 0; start < len(unique); start += r.batchSize {
		end := start + r.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]
		resolved, err := r.resolveBatch(ctx, batch)
		if err != nil {
			r.logger.Warn("image batch failed, using placeholders",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			metrics.ObserveImageBatch("failed")
			for _, name := range batch {
				result[name] = boss.PlaceholderImageURL
			}
			continue
		}
		metrics.ObserveImageBatch("resolved")
		for name, u := range resolved {
			result[name] = u
		}
	}

	// Defend against API omissions: every requested filename gets a value.
	for _, name := range unique {
		if _, ok := result[name]; !ok {
			r.logger.Warn("image missing from API response, using placeholder",
				zap.String("filename", name),
			)
			result[name] = boss.PlaceholderImageURL
		}
	}
	return result
}

type imageInfoResponse struct {
	Query struct {
		Redirects []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"redirects"`
		Pages map[string]struct {
			Title     string  `json:"title"`
			Missing   *string `json:"missing"`
			ImageInfo []struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// resolveBatch issues one form-encoded POST for the whole batch. The body
// encoding avoids URI-length limits with 50 pipe-joined titles. Queried
// titles carry the File: namespace the API expects; the result map is keyed
// by the caller's bare filenames.
func (r *ImageResolver) resolveBatch(ctx context.Context, filenames []string) (map[string]string, error) {
	titles := make([]string, len(filenames))
	for i, name := range filenames {
		titles[i] = fileTitle(name)
	}
	form := url.Values{
		"action":    {"query"},
		"titles":    {strings.Join(titles, "|")},
		"prop":      {"imageinfo"},
		"iiprop":    {"url"},
		"redirects": {"1"},
		"format":    {"json"},
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, r.cfg.BaseURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("build imageinfo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imageinfo request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Warn("close response body", zap.Error(closeErr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imageinfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read imageinfo response: %w", err)
	}
	var parsed imageInfoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode imageinfo response: %w", err)
	}

	urlsByTitle := make(map[string]string)
	for _, page := range parsed.Query.Pages {
		if page.Missing != nil || len(page.ImageInfo) == 0 {
			continue
		}
		if u := page.ImageInfo[0].URL; u != "" {
			urlsByTitle[page.Title] = u
		}
	}
	redirects := make(map[string]string, len(parsed.Query.Redirects))
	for _, rd := range parsed.Query.Redirects {
		redirects[rd.From] = rd.To
	}

	result := make(map[string]string, len(filenames))
	for _, name := range filenames {
		target := fileTitle(name)
		if to, ok := redirects[target]; ok {
			target = to
		}
		if u, ok := urlsByTitle[target]; ok {
			result[name] = u
			continue
		}
		r.logger.Warn("image not resolved, using placeholder", zap.String("filename", name))
		result[name] = boss.PlaceholderImageURL
	}
	return result, nil
}

// fileTitle puts a filename into the File: namespace the imageinfo API
// resolves. Names already carrying a namespace prefix pass through.
func fileTitle(name string) string {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "file:") || strings.HasPrefix(lower, "image:") {
		return name
	}
	return "File:" + name
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

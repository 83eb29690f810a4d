// Package wiki talks to the MediaWiki-style API of the wiki site.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tibialore/boss-sync/internal/boss"
	"github.com/tibialore/boss-sync/internal/metrics"
)

// Sentinel errors surfaced by the client.
var (
	// ErrInvalidArgument reports misuse of the page-content contract:
	// exactly one of pageID or title must be given.
	ErrInvalidArgument = errors.New("exactly one of page id or title is required")

	// ErrRateLimited wraps an HTTP 429 that survived all retries.
	ErrRateLimited = errors.New("rate limited by wiki API")
)

// Config controls the wiki API client.
type Config struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoffBase  time.Duration
	RequestsPerSecond float64
	PageLimit         int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://tibia.fandom.com/api.php"
	}
	if c.UserAgent == "" {
		c.UserAgent = "boss-sync/0.1 (+https://github.com/tibialore/boss-sync)"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 500
	}
	return c
}

// Client is a pooled HTTP client for the wiki API. It is safe for
// concurrent use; Close releases the connection pool.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: lim,
		logger:  logger,
	}
}

// Close releases idle connections held by the underlying pool.
func (c *Client) Close() {
	c.httpc.CloseIdleConnections()
}

type listResponse struct {
	Query struct {
		CategoryMembers []boss.PageRef `json:"categorymembers"`
	} `json:"query"`
	Continue struct {
		CMContinue string `json:"cmcontinue"`
	} `json:"continue"`
}

// ListCategoryMembers returns every page of the category, following the
// cmcontinue pagination protocol until exhausted.
func (c *Client) ListCategoryMembers(ctx context.Context, category string) ([]boss.PageRef, error) {
	var all []boss.PageRef
	cont := ""
	for {
		params := url.Values{
			"action":      {"query"},
			"list":        {"categorymembers"},
			"cmtitle":     {category},
			"cmlimit":     {strconv.Itoa(c.cfg.PageLimit)},
			"cmnamespace": {"0"},
			"cmtype":      {"page"},
			"format":      {"json"},
		}
		if cont != "" {
			params.Set("cmcontinue", cont)
		}

		body, err := c.getWithBackoff(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list category %q: %w", category, err)
		}

		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode category listing: %w", err)
		}
		all = append(all, resp.Query.CategoryMembers...)
		c.logger.Debug("category page fetched",
			zap.String("category", category),
			zap.Int("total", len(all)),
		)

		if resp.Continue.CMContinue == "" {
			break
		}
		cont = resp.Continue.CMContinue
	}
	c.logger.Info("category listing complete",
		zap.String("category", category),
		zap.Int("pages", len(all)),
	)
	return all, nil
}

type pageResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID    int     `json:"pageid"`
			Title     string  `json:"title"`
			Missing   *string `json:"missing"`
			Revisions []struct {
				Slots struct {
					Main struct {
						Content string `json:"*"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

// FetchPageContent returns the latest revision wikitext of one page,
// addressed by page ID or by title (exactly one of the two). A missing page
// or a page without revision content yields ok=false without an error.
func (c *Client) FetchPageContent(ctx context.Context, pageID int, title string) (string, bool, error) {
	if (pageID == 0) == (title == "") {
		return "", false, ErrInvalidArgument
	}

	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
		"format":  {"json"},
	}
	if pageID != 0 {
		params.Set("pageids", strconv.Itoa(pageID))
	} else {
		params.Set("titles", title)
	}

	body, err := c.getWithBackoff(ctx, params)
	if err != nil {
		return "", false, fmt.Errorf("fetch page content: %w", err)
	}

	var resp pageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("decode page content: %w", err)
	}

	for _, page := range resp.Query.Pages {
		if title != "" && page.Title != title {
			continue
		}
		if page.Missing != nil {
			c.logger.Warn("page reported missing",
				zap.Int("pageid", pageID),
				zap.String("title", title),
			)
			return "", false, nil
		}
		if len(page.Revisions) == 0 {
			c.logger.Warn("page has no revisions",
				zap.Int("pageid", pageID),
				zap.String("title", title),
			)
			return "", false, nil
		}
		return page.Revisions[0].Slots.Main.Content, true, nil
	}
	return "", false, nil
}

// getWithBackoff issues a GET and retries HTTP 429 with exponential backoff.
// Other HTTP errors and network errors propagate immediately.
func (c *Client) getWithBackoff(ctx context.Context, params url.Values) ([]byte, error) {
	delay := c.cfg.RetryBackoffBase
	for attempt := 1; ; attempt++ {
		body, status, err := c.get(ctx, params)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return body, nil
		}
		if status != http.StatusTooManyRequests {
			return nil, fmt.Errorf("wiki API returned status %d", status)
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts", ErrRateLimited, attempt)
		}
		c.logger.Warn("rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("backoff interrupted: %w", ctx.Err())
		}
		delay *= 2
	}
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("wiki API request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close response body", zap.Error(closeErr))
		}
	}()

	action := params.Get("list")
	if action == "" {
		action = params.Get("prop")
	}
	metrics.ObserveWikiRequest(action, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

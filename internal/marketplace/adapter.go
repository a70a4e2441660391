package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dropship-rest-api/internal/model"
	"dropship-rest-api/internal/resilience"
	"dropship-rest-api/pkg/logger"
)

// Adapter searches one marketplace. Search never returns an error: failures
// resolve to a degraded, empty result carrying a reason.
type Adapter interface {
	Source() model.Source
	Search(ctx context.Context, query string, filters model.SearchFilters) model.AdapterResult
}

// DefaultLimit is used when filters carry no limit.
const DefaultLimit = 20

// Options is the outbound request policy shared by every adapter.
type Options struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
	Retries int
	// RetryBaseDelay is the first backoff step; it doubles per attempt.
	RetryBaseDelay time.Duration

	// HTTPClient overrides the client used for page fetches and API calls.
	HTTPClient *http.Client
	// Pages overrides the search page fetcher.
	Pages Fetcher
	// Headers overrides the user-agent rotation.
	Headers *HeaderRotator
}

// searchFunc is one acquisition path: an official API or a page scrape.
type searchFunc func(ctx context.Context, query string, f model.SearchFilters) ([]*model.Product, error)

// base carries the pacing, retry and fetch plumbing common to all adapters.
type base struct {
	source  model.Source
	client  *http.Client
	pages   Fetcher
	headers *HeaderRotator
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	log     zerolog.Logger
}

func newBase(src model.Source, opts Options) base {
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.Timeout)
	}
	headers := opts.Headers
	if headers == nil {
		headers = NewHeaderRotator(nil)
	}
	pages := opts.Pages
	if pages == nil {
		pages = NewHTTPFetcher(client, headers)
	}

	rps := opts.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	delay := opts.RetryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	log := logger.Component("marketplace").With().Str("source", string(src)).Logger()

	return base{
		source:  src,
		client:  client,
		pages:   pages,
		headers: headers,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry: resilience.RetryConfig{
			Retries:   opts.Retries,
			BaseDelay: delay,
			MaxDelay:  5 * time.Second,
			Retryable: IsRetryable,
			Logger:    &log,
		},
		log: log,
	}
}

func (b *base) Source() model.Source { return b.source }

// fetchPage GETs a search page through the limiter with retries.
func (b *base) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte
	err := b.retry.Do(ctx, string(b.source)+" page", func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return resilience.Permanent(err)
		}
		var err error
		body, err = b.pages.Fetch(ctx, pageURL)
		return err
	})
	return body, err
}

// callAPI executes an API request through the limiter with retries. build is
// invoked once per attempt so signed requests get a fresh signature.
func (b *base) callAPI(ctx context.Context, operation string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := b.retry.Do(ctx, operation, func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return resilience.Permanent(err)
		}
		req, err := build(ctx)
		if err != nil {
			return resilience.Permanent(err)
		}
		body, err = readResponse(b.client, req)
		return err
	})
	return body, err
}

// search runs the official API path when configured, then the scrape path,
// and finally settles for a degraded empty result.
func (b *base) search(ctx context.Context, query string, f model.SearchFilters, api, scrape searchFunc) model.AdapterResult {
	start := time.Now()
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}

	result := func(r model.AdapterResult) model.AdapterResult {
		r.Latency = time.Since(start)
		return r
	}
	upstream := withCategory(query, f.Category)

	if api != nil {
		products, err := api(ctx, upstream, f)
		switch {
		case err != nil:
			b.log.Warn().Err(err).Str("query", query).Msg("official api failed, falling back to scrape")
		case len(products) == 0:
			b.log.Debug().Str("query", query).Msg("official api returned no products, falling back to scrape")
		default:
			return result(model.AdapterResult{
				Source:   b.source,
				Products: applyFilters(products, f),
				Origin:   model.OriginAPI,
			})
		}
	}

	if ctx.Err() != nil {
		return result(model.DegradedResult(b.source, ctx.Err().Error()))
	}

	products, err := scrape(ctx, upstream, f)
	if err != nil {
		b.log.Warn().Err(err).Str("query", query).Msg("scrape failed")
		return result(model.DegradedResult(b.source, fmt.Sprintf("scrape failed: %v", err)))
	}
	if len(products) == 0 {
		b.log.Warn().Str("query", query).Msg("scrape extracted no products")
		return result(model.DegradedResult(b.source, "no products extracted"))
	}

	return result(model.AdapterResult{
		Source:   b.source,
		Products: applyFilters(products, f),
		Origin:   model.OriginScrape,
	})
}

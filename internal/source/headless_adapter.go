package source

import (
	"context"
	"time"

	"jobradar/internal/config"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// HeadlessAdapter renders a search page in headless Chrome before extracting
// listings with the same selectors an HTMLAdapter uses.
type HeadlessAdapter struct {
	cfg     config.SourceConfig
	timeout time.Duration
	limiter *rate.Limiter
}

func NewHeadlessAdapter(cfg config.SourceConfig, timeout time.Duration) *HeadlessAdapter {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HeadlessAdapter{cfg: cfg, timeout: timeout, limiter: newLimiter(cfg.RequestsPerMinute)}
}

func (a *HeadlessAdapter) Name() string { return a.cfg.Name }

func (a *HeadlessAdapter) Fetch(ctx context.Context, spec SearchSpec, resultsWanted, maxAgeHours int) ([]RawListing, error) {
	if err := waitTurn(ctx, a.cfg.Name, a.limiter); err != nil {
		return nil, err
	}

	pageURL := ExpandURL(a.cfg.SearchURL, URLParams{
		Spec:        spec,
		Limit:       resultsWanted,
		MaxAgeHours: maxAgeHours,
		Page:        1,
	})

	html, err := a.render(ctx, pageURL)
	if err != nil {
		return nil, &SourceError{Source: a.cfg.Name, Err: err}
	}

	items, err := ParseHTMLListings(html, pageURL, a.cfg.ItemSelector, a.cfg.Fields, a.cfg.Name)
	if err != nil {
		return nil, &SourceError{Source: a.cfg.Name, Err: err}
	}
	if len(items) > resultsWanted {
		items = items[:resultsWanted]
	}
	return items, nil
}

func (a *HeadlessAdapter) render(ctx context.Context, pageURL string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(userAgent),
		)...,
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	reqCtx, reqCancel := context.WithTimeout(browserCtx, a.timeout)
	defer reqCancel()

	wait := a.cfg.WaitSelector
	if wait == "" {
		wait = "body"
	}

	var html string
	err := chromedp.Run(reqCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

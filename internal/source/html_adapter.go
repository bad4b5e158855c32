package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"jobradar/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// HTMLAdapter scrapes a server-rendered search results page with colly.
// ItemSelector picks one element per listing and Fields are CSS selectors
// relative to it.
type HTMLAdapter struct {
	cfg     config.SourceConfig
	timeout time.Duration
	limiter *rate.Limiter
}

func NewHTMLAdapter(cfg config.SourceConfig, timeout time.Duration) *HTMLAdapter {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &HTMLAdapter{cfg: cfg, timeout: timeout, limiter: newLimiter(cfg.RequestsPerMinute)}
}

func (a *HTMLAdapter) Name() string { return a.cfg.Name }

func (a *HTMLAdapter) Fetch(ctx context.Context, spec SearchSpec, resultsWanted, maxAgeHours int) ([]RawListing, error) {
	out := make([]RawListing, 0, resultsWanted)
	seen := map[string]struct{}{}

	for page := 0; page < maxPages && len(out) < resultsWanted; page++ {
		if page > 0 && !paginated(a.cfg.SearchURL) {
			break
		}
		if err := waitTurn(ctx, a.cfg.Name, a.limiter); err != nil {
			return out, err
		}

		u := ExpandURL(a.cfg.SearchURL, URLParams{
			Spec:        spec,
			Limit:       resultsWanted,
			MaxAgeHours: maxAgeHours,
			Offset:      len(out),
			Page:        page + 1,
		})
		items, err := a.scrapePage(ctx, u)
		if err != nil {
			return out, err
		}

		added := 0
		for _, it := range items {
			if it.URL != "" {
				if _, dup := seen[it.URL]; dup {
					continue
				}
				seen[it.URL] = struct{}{}
			}
			out = append(out, it)
			added++
		}
		if added == 0 {
			break
		}
	}

	if len(out) > resultsWanted {
		out = out[:resultsWanted]
	}
	return out, nil
}

func (a *HTMLAdapter) scrapePage(ctx context.Context, pageURL string) ([]RawListing, error) {
	if ctx.Err() != nil {
		return nil, &SourceError{Source: a.cfg.Name, Err: ctx.Err()}
	}

	c := colly.NewCollector(colly.UserAgent(userAgent))
	timeout := a.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	c.SetRequestTimeout(timeout)

	items := make([]RawListing, 0)
	var reqErr error

	c.OnRequest(func(r *colly.Request) {
		for k, v := range httpHeaders() {
			r.Headers.Set(k, v)
		}
	})

	c.OnHTML(a.cfg.ItemSelector, func(e *colly.HTMLElement) {
		vals := extractFields(e.DOM, a.cfg.Fields, e.Request.AbsoluteURL)
		items = append(items, listingFromFields(a.cfg.Name, vals))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			reqErr = statusError(a.cfg.Name, r.StatusCode)
		}
		if reqErr == nil {
			reqErr = &SourceError{Source: a.cfg.Name, Err: err}
		}
	})

	if err := c.Visit(pageURL); err != nil {
		if reqErr != nil {
			return nil, reqErr
		}
		return nil, &SourceError{Source: a.cfg.Name, Err: err}
	}
	c.Wait()
	if reqErr != nil {
		return nil, reqErr
	}
	return items, nil
}

// ParseHTMLListings extracts listings from a rendered page.
func ParseHTMLListings(html, pageURL, itemSelector string, fields map[string]string, source string) ([]RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	base, _ := url.Parse(pageURL)
	resolve := func(ref string) string {
		if base == nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return base.ResolveReference(r).String()
	}

	out := make([]RawListing, 0)
	doc.Find(itemSelector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, listingFromFields(source, extractFields(sel, fields, resolve)))
	})
	return out, nil
}

func extractFields(sel *goquery.Selection, fields map[string]string, resolve func(string) string) map[string]string {
	vals := make(map[string]string, len(fields))
	for name, spec := range fields {
		css, attr := splitSelector(spec)
		node := sel
		if css != "" {
			node = sel.Find(css).First()
		}
		var v string
		if attr != "" {
			v, _ = node.Attr(attr)
		} else {
			v = node.Text()
		}
		v = collapseSpace(v)
		if v != "" && (name == FieldURL || name == FieldCompanyURL) {
			v = resolve(v)
		}
		vals[name] = v
	}
	return vals
}

// splitSelector separates "css@attr" into its parts.
func splitSelector(spec string) (string, string) {
	i := strings.LastIndex(spec, "@")
	if i < 0 {
		return strings.TrimSpace(spec), ""
	}
	attr := spec[i+1:]
	if attr == "" || strings.ContainsAny(attr, " ]'\"=") {
		return strings.TrimSpace(spec), ""
	}
	return strings.TrimSpace(spec[:i]), strings.TrimSpace(attr)
}

package source

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes = 5 << 20
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

func httpHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept-Language": "en-US,en;q=0.9",
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// newLimiter paces requests to one site. rpm <= 0 disables pacing.
func newLimiter(rpm float64) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rpm/60), 1)
}

func waitTurn(ctx context.Context, source string, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return &SourceError{Source: source, Err: errors.Wrap(err, "pacing")}
	}
	return nil
}

// statusError maps a non-2xx response to a SourceError; 429 is rate limiting.
func statusError(source string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &SourceError{
		Source:      source,
		StatusCode:  code,
		RateLimited: code == http.StatusTooManyRequests,
		Err:         errors.Newf("unexpected status %d", code),
	}
}

func httpGet(ctx context.Context, client *http.Client, source, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}
	for k, v := range httpHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if err := statusError(source, resp.StatusCode); err != nil {
		return nil, err
	}
	b, err := readAllLimit(resp.Body, maxBodyBytes)
	if err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}
	return b, nil
}

func readAllLimit(r io.Reader, max int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: max}
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if lr.N <= 0 {
		return nil, errors.New("response too large")
	}
	return b, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

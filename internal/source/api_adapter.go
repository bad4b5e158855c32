package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"jobradar/internal/config"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

const maxPages = 5

// APIAdapter reads listings from a JSON search API. Fields map listing
// attributes to dotted paths inside each result object.
type APIAdapter struct {
	cfg     config.SourceConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewAPIAdapter(cfg config.SourceConfig, client *http.Client) *APIAdapter {
	if client == nil {
		client = newHTTPClient(0)
	}
	return &APIAdapter{cfg: cfg, client: client, limiter: newLimiter(cfg.RequestsPerMinute)}
}

func (a *APIAdapter) Name() string { return a.cfg.Name }

func (a *APIAdapter) Fetch(ctx context.Context, spec SearchSpec, resultsWanted, maxAgeHours int) ([]RawListing, error) {
	key := a.cfg.APIKey()
	if a.cfg.APIKeyEnv != "" && key == "" {
		return nil, &SourceError{Source: a.cfg.Name, Err: errors.Newf("%s is not set", a.cfg.APIKeyEnv)}
	}
	headers := map[string]string{"Accept": "application/json"}
	if a.cfg.APIKeyHeader != "" {
		headers[a.cfg.APIKeyHeader] = key
	}

	out := make([]RawListing, 0, resultsWanted)
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
			APIKey:      key,
		})
		body, err := httpGet(ctx, a.client, a.cfg.Name, u, headers)
		if err != nil {
			return out, err
		}

		items, err := ParseJSONListings(body, a.cfg.ResultsPath, a.cfg.Fields, a.cfg.Name)
		if err != nil {
			return out, &SourceError{Source: a.cfg.Name, Err: err}
		}
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
	}

	if len(out) > resultsWanted {
		out = out[:resultsWanted]
	}
	return out, nil
}

func paginated(tmpl string) bool {
	return strings.Contains(tmpl, "{offset}") || strings.Contains(tmpl, "{page}")
}

// ParseJSONListings decodes body and maps every object found at resultsPath
// into a RawListing. An empty resultsPath means the body is the array itself.
func ParseJSONListings(body []byte, resultsPath string, fields map[string]string, source string) ([]RawListing, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}

	node := doc
	if strings.TrimSpace(resultsPath) != "" {
		node = lookup(doc, resultsPath)
	}
	if node == nil {
		return nil, nil
	}
	arr, ok := node.([]any)
	if !ok {
		return nil, errors.Newf("results path %q is not an array", resultsPath)
	}

	out := make([]RawListing, 0, len(arr))
	for _, it := range arr {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		vals := make(map[string]string, len(fields))
		for name, path := range fields {
			vals[name] = stringify(lookup(obj, path))
		}
		out = append(out, listingFromFields(source, vals))
	}
	return out, nil
}

// lookup walks a dotted path; numeric segments index arrays.
func lookup(node any, path string) any {
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		switch n := node.(type) {
		case map[string]any:
			node = n[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil
			}
			node = n[i]
		default:
			return nil
		}
	}
	return node
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return collapseSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := stringify(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"jobradar/internal/config"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandURL(t *testing.T) {
	got := ExpandURL("https://x.test/s?q={term}&l={location}&n={limit}&d={days}&h={hours}&s={seconds}&o={offset}&p={page}&k={api_key}", URLParams{
		Spec:        SearchSpec{Term: "Go Developer", Location: "San Francisco, CA"},
		Limit:       50,
		MaxAgeHours: 48,
		Offset:      10,
		Page:        2,
		APIKey:      "k&y",
	})
	assert.Equal(t, "https://x.test/s?q=Go+Developer&l=San+Francisco%2C+CA&n=50&d=2&h=48&s=172800&o=10&p=2&k=k%26y", got)
}

func TestExpandURL_DaysAtLeastOne(t *testing.T) {
	got := ExpandURL("{days}", URLParams{MaxAgeHours: 0})
	assert.Equal(t, "1", got)
	got = ExpandURL("{days}", URLParams{MaxAgeHours: 25})
	assert.Equal(t, "2", got)
}

func TestIsRateLimited(t *testing.T) {
	err := &SourceError{Source: "indeed", RateLimited: true, StatusCode: 429}
	assert.True(t, IsRateLimited(err))
	assert.True(t, IsRateLimited(errors.Wrap(err, "fetch")))
	assert.False(t, IsRateLimited(&SourceError{Source: "indeed", StatusCode: 500}))
	assert.False(t, IsRateLimited(errors.New("plain")))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestAPIAdapter_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobs":[
			{"name":"Backend Engineer","hiring_company":{"name":"Acme","url":"https://acme.io"},"location":"Remote","url":"https://acme.io/jobs/1","salary_min_annual":120000,"salary_max_annual":"150,000","snippet":"Build  APIs"},
			{"name":"Data Engineer","url":"https://beta.dev/jobs/2"}
		]}`))
	}))
	defer srv.Close()

	a := NewAPIAdapter(config.SourceConfig{
		Name:        "zip_recruiter",
		Kind:        config.SourceKindAPI,
		SearchURL:   srv.URL + "/jobs?search={term}&location={location}&days_ago={days}&jobs_per_page={limit}",
		ResultsPath: "jobs",
		Fields: map[string]string{
			FieldTitle:       "name",
			FieldCompany:     "hiring_company.name",
			FieldCompanyURL:  "hiring_company.url",
			FieldLocation:    "location",
			FieldDescription: "snippet",
			FieldURL:         "url",
			FieldSalaryMin:   "salary_min_annual",
			FieldSalaryMax:   "salary_max_annual",
		},
	}, srv.Client())

	got, err := a.Fetch(context.Background(), SearchSpec{Term: "backend", Location: "Remote", Source: "zip_recruiter"}, 10, 48)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "search=backend&location=Remote&days_ago=2&jobs_per_page=10", gotQuery)
	assert.Equal(t, "Backend Engineer", got[0].Title)
	assert.Equal(t, "Acme", got[0].Company)
	assert.Equal(t, "https://acme.io", got[0].CompanyURL)
	assert.Equal(t, "Build APIs", got[0].Description)
	require.NotNil(t, got[0].MinAmount)
	require.NotNil(t, got[0].MaxAmount)
	assert.Equal(t, 120000.0, *got[0].MinAmount)
	assert.Equal(t, 150000.0, *got[0].MaxAmount)
	assert.Equal(t, "zip_recruiter", got[0].Source)

	assert.Equal(t, "", got[1].Company)
	assert.Nil(t, got[1].MinAmount)
}

func TestAPIAdapter_Paginates(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page := r.URL.Query().Get("page")
		if page == "3" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = fmt.Fprintf(w, `[{"t":"Job %s-a","u":"https://a.test/%s/a"},{"t":"Job %s-b","u":"https://a.test/%s/b"}]`, page, page, page, page)
	}))
	defer srv.Close()

	a := NewAPIAdapter(config.SourceConfig{
		Name:      "feed",
		SearchURL: srv.URL + "/?q={term}&page={page}",
		Fields:    map[string]string{FieldTitle: "t", FieldURL: "u"},
	}, srv.Client())

	got, err := a.Fetch(context.Background(), SearchSpec{Term: "go"}, 3, 24)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, "Job 2-a", got[2].Title)
}

func TestAPIAdapter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAPIAdapter(config.SourceConfig{Name: "google", SearchURL: srv.URL + "/?q={term}"}, srv.Client())
	_, err := a.Fetch(context.Background(), SearchSpec{Term: "go"}, 10, 24)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var se *SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 429, se.StatusCode)
}

func TestAPIAdapter_ServerErrorIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAPIAdapter(config.SourceConfig{Name: "google", SearchURL: srv.URL}, srv.Client())
	_, err := a.Fetch(context.Background(), SearchSpec{Term: "go"}, 10, 24)
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
}

func TestAPIAdapter_MissingKey(t *testing.T) {
	t.Setenv("JOBRADAR_TEST_KEY", "")
	a := NewAPIAdapter(config.SourceConfig{Name: "google", SearchURL: "http://127.0.0.1:1/?k={api_key}", APIKeyEnv: "JOBRADAR_TEST_KEY"}, nil)
	_, err := a.Fetch(context.Background(), SearchSpec{Term: "go"}, 10, 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBRADAR_TEST_KEY")
}

func TestAPIAdapter_KeyHeader(t *testing.T) {
	t.Setenv("JOBRADAR_TEST_KEY", "secret")
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	a := NewAPIAdapter(config.SourceConfig{Name: "feed", SearchURL: srv.URL, APIKeyEnv: "JOBRADAR_TEST_KEY", APIKeyHeader: "X-Api-Key"}, srv.Client())
	_, err := a.Fetch(context.Background(), SearchSpec{Term: "go"}, 10, 24)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

const resultsPage = `<html><body>
<div class="card">
  <h2 class="title"><a href="/viewjob?jk=1">Senior  Go Engineer</a></h2>
  <span class="company">Acme Corp</span>
  <div class="loc">Remote</div>
  <div class="salary">$120,000 - $150,000 a year</div>
</div>
<div class="card">
  <h2 class="title"><a href="https://other.test/jobs/2">Platform Engineer</a></h2>
  <div class="loc">Austin, TX</div>
</div>
</body></html>`

var cardFields = map[string]string{
	FieldTitle:    "h2.title a",
	FieldCompany:  "span.company",
	FieldLocation: "div.loc",
	FieldSalary:   "div.salary",
	FieldURL:      "h2.title a@href",
}

func TestHTMLAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	a := NewHTMLAdapter(config.SourceConfig{
		Name:         "indeed",
		Kind:         config.SourceKindHTML,
		SearchURL:    srv.URL + "/jobs?q={term}&l={location}",
		ItemSelector: "div.card",
		Fields:       cardFields,
	}, 5*time.Second)

	got, err := a.Fetch(context.Background(), SearchSpec{Term: "go", Location: "Remote", Source: "indeed"}, 10, 48)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Senior Go Engineer", got[0].Title)
	assert.Equal(t, "Acme Corp", got[0].Company)
	assert.Equal(t, srv.URL+"/viewjob?jk=1", got[0].URL)
	assert.Equal(t, "$120,000 - $150,000 a year", got[0].SalaryText)
	assert.Equal(t, "https://other.test/jobs/2", got[1].URL)
	assert.Equal(t, "", got[1].Company)
}

func TestHTMLAdapter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewHTMLAdapter(config.SourceConfig{Name: "indeed", SearchURL: srv.URL + "/jobs?q={term}", ItemSelector: "div.card", Fields: cardFields}, 5*time.Second)
	_, err := a.Fetch(context.Background(), SearchSpec{Term: "go"}, 10, 48)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestParseHTMLListings_ResolvesRelativeLinks(t *testing.T) {
	got, err := ParseHTMLListings(resultsPage, "https://www.linkedin.com/jobs/search?keywords=go", "div.card", cardFields, "linkedin")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.linkedin.com/viewjob?jk=1", got[0].URL)
	assert.Equal(t, "linkedin", got[0].Source)
}

func TestSplitSelector(t *testing.T) {
	cases := []struct {
		in, css, attr string
	}{
		{"a.link@href", "a.link", "href"},
		{"time@datetime", "time", "datetime"},
		{"@href", "", "href"},
		{"span.title", "span.title", ""},
		{"a[href*='@x']", "a[href*='@x']", ""},
	}
	for _, tc := range cases {
		css, attr := splitSelector(tc.in)
		assert.Equal(t, tc.css, css, tc.in)
		assert.Equal(t, tc.attr, attr, tc.in)
	}
}

func TestBuildRegistry(t *testing.T) {
	r, err := BuildRegistry([]config.SourceConfig{
		{Name: "indeed", Kind: config.SourceKindHTML, SearchURL: "https://x"},
		{Name: "linkedin", Kind: config.SourceKindHeadless, SearchURL: "https://y"},
		{Name: "google", Kind: config.SourceKindAPI, SearchURL: "https://z"},
		{Name: "off", Kind: config.SourceKindAPI, SearchURL: "https://z", Disabled: true},
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"google", "indeed", "linkedin"}, r.Names())

	a, ok := r.Get("linkedin")
	require.True(t, ok)
	_, isHeadless := a.(*HeadlessAdapter)
	assert.True(t, isHeadless)

	_, err = BuildRegistry([]config.SourceConfig{{Name: "x", Kind: "ftp"}}, time.Second)
	require.Error(t, err)
}

package config

import (
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Source kinds understood by the adapter registry.
const (
	SourceKindAPI      = "api"
	SourceKindHTML     = "html"
	SourceKindHeadless = "headless"
)

// DefaultDailyLimits are applied when a source omits daily_limit.
var DefaultDailyLimits = map[string]int{
	"indeed":        300,
	"linkedin":      100,
	"glassdoor":     150,
	"google":        100,
	"zip_recruiter": 200,
}

const FallbackDailyLimit = 100

// SourceConfig describes one job-listing site. SearchURL is a template whose
// {placeholders} are expanded per request (see source.ExpandURL). Fields maps
// listing attributes to a JSON path (api) or a CSS selector relative to
// ItemSelector (html, headless); a selector suffix "@attr" reads an attribute.
type SourceConfig struct {
	Name              string            `mapstructure:"name"`
	Kind              string            `mapstructure:"kind"`
	SearchURL         string            `mapstructure:"search_url"`
	DailyLimit        int               `mapstructure:"daily_limit"`
	Priority          int               `mapstructure:"priority"`
	RequestsPerMinute float64           `mapstructure:"requests_per_minute"`
	APIKeyEnv         string            `mapstructure:"api_key_env"`
	APIKeyHeader      string            `mapstructure:"api_key_header"`
	ResultsPath       string            `mapstructure:"results_path"`
	ItemSelector      string            `mapstructure:"item_selector"`
	WaitSelector      string            `mapstructure:"wait_selector"`
	Fields            map[string]string `mapstructure:"fields"`
	Disabled          bool              `mapstructure:"disabled"`
}

// Limit returns the configured daily quota for the source.
func (s SourceConfig) Limit() int {
	if s.DailyLimit > 0 {
		return s.DailyLimit
	}
	if v, ok := DefaultDailyLimits[strings.ToLower(s.Name)]; ok {
		return v
	}
	return FallbackDailyLimit
}

// APIKey resolves the key from the environment variable named by APIKeyEnv.
func (s SourceConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.APIKeyEnv))
}

// WindowConfig is a named collection window: a cron schedule plus the subset
// of sources (and optionally focus/locations) it collects from.
type WindowConfig struct {
	Name      string   `mapstructure:"name"`
	Schedule  string   `mapstructure:"schedule"`
	Sources   []string `mapstructure:"sources"`
	Focus     []string `mapstructure:"focus"`
	Locations []string `mapstructure:"locations"`
	Strategy  string   `mapstructure:"strategy"`
}

type SourcesFile struct {
	Sources    []SourceConfig      `mapstructure:"sources"`
	Windows    []WindowConfig      `mapstructure:"windows"`
	Categories map[string][]string `mapstructure:"categories"`
}

// Enabled returns the non-disabled sources ordered by priority, then name.
func (f SourcesFile) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(f.Sources))
	for _, s := range f.Sources {
		if s.Disabled {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Limits maps source name to its daily quota.
func (f SourcesFile) Limits() map[string]int {
	out := make(map[string]int, len(f.Sources))
	for _, s := range f.Sources {
		out[s.Name] = s.Limit()
	}
	return out
}

// Window looks up a collection window by name.
func (f SourcesFile) Window(name string) (WindowConfig, bool) {
	for _, w := range f.Windows {
		if strings.EqualFold(w.Name, name) {
			return w, true
		}
	}
	return WindowConfig{}, false
}

// LoadSources reads the sources YAML at path.
func LoadSources(path string) (SourcesFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return SourcesFile{}, errors.New("empty sources file path")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return SourcesFile{}, errors.Wrapf(err, "read sources file %s", path)
	}

	var out SourcesFile
	if err := v.Unmarshal(&out); err != nil {
		return SourcesFile{}, errors.Wrapf(err, "decode sources file %s", path)
	}

	seen := map[string]struct{}{}
	for i, s := range out.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return SourcesFile{}, errors.Newf("source #%d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return SourcesFile{}, errors.Newf("duplicate source %q", name)
		}
		seen[name] = struct{}{}

		switch s.Kind {
		case SourceKindAPI, SourceKindHTML, SourceKindHeadless:
		default:
			return SourcesFile{}, errors.Newf("source %q: unknown kind %q", name, s.Kind)
		}
		if strings.TrimSpace(s.SearchURL) == "" {
			return SourcesFile{}, errors.Newf("source %q: search_url is required", name)
		}
		out.Sources[i].Name = name
	}

	for _, w := range out.Windows {
		for _, src := range w.Sources {
			if _, ok := seen[src]; !ok {
				return SourcesFile{}, errors.Newf("window %q references unknown source %q", w.Name, src)
			}
		}
	}

	return out, nil
}

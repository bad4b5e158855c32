package collector

import (
	"sort"
	"strings"

	"jobradar/internal/source"
)

const (
	maxFocusTerms     = 10
	termsPerCategory  = 3
	maxUnfocusedTerms = 12
	DefaultStrategy   = "comprehensive"
)

// DefaultCategoryOrder fixes the order categories are walked when no focus is given.
var DefaultCategoryOrder = []string{"software_engineering", "data_and_ai", "infrastructure", "specialized"}

var DefaultCategories = map[string][]string{
	"software_engineering": {
		"software engineer",
		"senior software engineer",
		"staff software engineer",
		"principal software engineer",
		"software architect",
		"full stack developer",
		"backend developer",
		"frontend developer",
		"full stack engineer",
	},
	"data_and_ai": {
		"data scientist",
		"senior data scientist",
		"data engineer",
		"machine learning engineer",
		"AI engineer",
		"data analyst",
		"analytics engineer",
		"research scientist",
	},
	"infrastructure": {
		"devops engineer",
		"site reliability engineer",
		"cloud engineer",
		"infrastructure engineer",
		"platform engineer",
		"security engineer",
		"systems engineer",
	},
	"specialized": {
		"mobile developer",
		"ios developer",
		"android developer",
		"react developer",
		"python developer",
		"javascript developer",
		"node.js developer",
		"go developer",
	},
}

var DefaultLocations = []string{
	"Remote",
	"San Francisco, CA",
	"New York, NY",
	"Seattle, WA",
	"Austin, TX",
	"Boston, MA",
}

// Planner turns configuration into SearchSpecs. It has no side effects; the
// caller decides which specs a cycle runs.
type Planner struct {
	Categories map[string][]string
	Order      []string
	Locations  []string
}

// NewPlanner uses categories when non-empty and the built-in terms otherwise.
func NewPlanner(categories map[string][]string, locations []string) Planner {
	p := Planner{Categories: DefaultCategories, Order: DefaultCategoryOrder, Locations: DefaultLocations}
	if len(categories) > 0 {
		p.Categories = categories
		p.Order = orderFirst(sortedKeys(categories), DefaultCategoryOrder)
	}
	if len(locations) > 0 {
		p.Locations = locations
	}
	return p
}

// Terms resolves focus into search terms. A focus entry naming a category
// expands to that category; anything else is used as a literal term. Without
// focus, the first few terms of every category are used.
func (p Planner) Terms(focus []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}

	if len(focus) > 0 {
		for _, f := range focus {
			if terms, ok := p.Categories[strings.TrimSpace(f)]; ok {
				for _, t := range terms {
					add(t)
				}
				continue
			}
			add(f)
		}
		return capTerms(out, maxFocusTerms)
	}

	for _, name := range p.Order {
		terms := p.Categories[name]
		if len(terms) > termsPerCategory {
			terms = terms[:termsPerCategory]
		}
		for _, t := range terms {
			add(t)
		}
	}
	return capTerms(out, maxUnfocusedTerms)
}

// Plan builds one spec per (location, term, source), locations outermost so
// a cycle cut short by its listing budget still covers every term somewhere.
func (p Planner) Plan(focus, locations, sources []string, strategy string) []source.SearchSpec {
	if len(locations) == 0 {
		locations = p.Locations
	}
	if strings.TrimSpace(strategy) == "" {
		strategy = DefaultStrategy
	}
	terms := p.Terms(focus)

	specs := make([]source.SearchSpec, 0, len(locations)*len(terms)*len(sources))
	for _, loc := range locations {
		for _, term := range terms {
			for _, src := range sources {
				specs = append(specs, source.SearchSpec{
					Term:     term,
					Location: strings.TrimSpace(loc),
					Source:   src,
					Strategy: strategy,
				})
			}
		}
	}
	return specs
}

func capTerms(terms []string, n int) []string {
	if len(terms) > n {
		return terms[:n]
	}
	return terms
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// orderFirst moves the names listed in preferred to the front, keeping the rest in place.
func orderFirst(names, preferred []string) []string {
	present := map[string]bool{}
	for _, n := range names {
		present[n] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range preferred {
		if present[n] {
			out = append(out, n)
			delete(present, n)
		}
	}
	for _, n := range names {
		if present[n] {
			out = append(out, n)
		}
	}
	return out
}

package app

import (
	"context"
	"strings"
	"time"

	"jobradar/internal/collector"
	"jobradar/internal/config"
	"jobradar/internal/scheduler"

	"github.com/cockroachdb/errors"
)

// CollectOptions selects what a collection cycle covers. Empty fields fall
// back to the window (when named) and then to the environment config.
type CollectOptions struct {
	Window    string
	Focus     []string
	Locations []string
	Sources   []string
	Strategy  string
}

// Resolve merges opts with the named window and the config defaults. The
// returned sources keep priority order and contain only registered adapters.
func Resolve(opts CollectOptions, sources config.SourcesFile, coll config.CollectionConfig, registered []string) (CollectOptions, error) {
	out := opts
	if name := strings.TrimSpace(opts.Window); name != "" {
		w, ok := sources.Window(name)
		if !ok {
			return CollectOptions{}, errors.Newf("unknown collection window %q", name)
		}
		out.Window = w.Name
		if len(out.Sources) == 0 {
			out.Sources = w.Sources
		}
		if len(out.Focus) == 0 {
			out.Focus = w.Focus
		}
		if len(out.Locations) == 0 {
			out.Locations = w.Locations
		}
		if out.Strategy == "" {
			out.Strategy = w.Strategy
		}
	}
	if len(out.Focus) == 0 {
		out.Focus = coll.Focus
	}
	if len(out.Locations) == 0 {
		out.Locations = coll.Locations
	}
	if out.Strategy == "" {
		out.Strategy = coll.Strategy
	}

	reg := make(map[string]bool, len(registered))
	for _, n := range registered {
		reg[n] = true
	}
	wanted := map[string]bool{}
	for _, s := range out.Sources {
		wanted[strings.TrimSpace(s)] = true
	}
	var ordered []string
	for _, s := range sources.Enabled() {
		if !reg[s.Name] {
			continue
		}
		if len(wanted) > 0 && !wanted[s.Name] {
			continue
		}
		ordered = append(ordered, s.Name)
	}
	for s := range wanted {
		if !reg[s] {
			return CollectOptions{}, errors.Newf("unknown or disabled source %q", s)
		}
	}
	if len(ordered) == 0 {
		return CollectOptions{}, errors.New("no sources to collect from")
	}
	out.Sources = ordered
	return out, nil
}

// Collect plans and runs one collection cycle.
func (c *Container) Collect(ctx context.Context, opts CollectOptions) (collector.Summary, error) {
	resolved, err := Resolve(opts, c.Sources, c.Config.Collection, c.Adapters.Names())
	if err != nil {
		return collector.Summary{}, err
	}
	specs := c.Planner.Plan(resolved.Focus, resolved.Locations, resolved.Sources, resolved.Strategy)
	return c.Orchestrator.RunCycle(ctx, specs, collector.RunOptions{Window: resolved.Window})
}

// Dedupe removes residual duplicate rows left by concurrent writers.
func (c *Container) Dedupe(ctx context.Context) (int64, error) {
	n, err := c.Jobs.DeleteResidualDuplicates(ctx)
	if err != nil {
		return 0, err
	}
	c.Log.Infow("residual duplicates removed", "pipeline", "dedupe", "deleted", n)
	if n > 0 {
		_ = c.Redis.InvalidateLatest(ctx)
	}
	return n, nil
}

// Scheduler registers every collection window plus the maintenance passes.
func (c *Container) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(scheduler.NewRedisLocker(c.Redis), c.Log.Named("scheduler"))
	sch := c.Config.Schedule

	for _, w := range c.Sources.Windows {
		if strings.TrimSpace(w.Schedule) == "" {
			continue
		}
		name := w.Name
		if err := s.Add("collect:"+name, w.Schedule, 3*time.Hour, func(ctx context.Context) error {
			_, err := c.Collect(ctx, CollectOptions{Window: name})
			return err
		}); err != nil {
			return nil, err
		}
	}

	passes := []struct {
		name string
		spec string
		ttl  time.Duration
		task scheduler.Task
	}{
		{"embed-submit", sch.EmbedSubmit, 30 * time.Minute, func(ctx context.Context) error {
			_, err := c.Submitter.Run(ctx)
			return err
		}},
		{"embed-poll", sch.EmbedPoll, 30 * time.Minute, func(ctx context.Context) error {
			_, err := c.Poller.Run(ctx)
			return err
		}},
		{"extract", sch.Extract, 2 * time.Hour, func(ctx context.Context) error {
			_, err := c.Extractor.Run(ctx)
			return err
		}},
		{"dedupe", sch.Dedupe, 30 * time.Minute, func(ctx context.Context) error {
			_, err := c.Dedupe(ctx)
			return err
		}},
		{"health", sch.Health, 10 * time.Minute, func(ctx context.Context) error {
			_, err := c.Monitor.Report(ctx)
			return err
		}},
	}
	for _, p := range passes {
		if strings.TrimSpace(p.spec) == "" {
			continue
		}
		if err := s.Add(p.name, p.spec, p.ttl, p.task); err != nil {
			return nil, err
		}
	}
	return s, nil
}

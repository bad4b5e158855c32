// Package quota tracks per-source, per-day collection usage.
//
// A record exists per (source, day). Rolling over to a new day simply addresses
// a new key, so there is no reset step.
package quota

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// ErrExhausted signals that a reservation would exceed the daily limit. It is
// a control signal for the caller, not a failure.
var ErrExhausted = errors.New("quota exhausted")

const DayLayout = "2006-01-02"

// Day renders t as the ledger's day key.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

type Record struct {
	Source string `json:"source"`
	Day    string `json:"day"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
}

func (r Record) Remaining() int {
	if r.Used >= r.Limit {
		return 0
	}
	return r.Limit - r.Used
}

// Store persists quota records. Add must apply the increment atomically and
// report ok=false, leaving the record untouched, when used+n would exceed the limit.
type Store interface {
	Get(ctx context.Context, source, day string, limit int) (Record, error)
	Add(ctx context.Context, source, day string, limit, n int) (Record, bool, error)
}

type Ledger struct {
	store        Store
	limits       map[string]int
	defaultLimit int
	log          *zap.SugaredLogger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewLedger(store Store, limits map[string]int, defaultLimit int, log *zap.SugaredLogger) *Ledger {
	cp := make(map[string]int, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Ledger{
		store:        store,
		limits:       cp,
		defaultLimit: defaultLimit,
		log:          logger.OrNop(log),
		keys:         map[string]*sync.Mutex{},
	}
}

func (l *Ledger) Limit(source string) int {
	if v, ok := l.limits[source]; ok {
		return v
	}
	return l.defaultLimit
}

func (l *Ledger) lock(source, day string) func() {
	key := source + "|" + day
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// CanConsume reports whether at least one unit is left for source on day.
func (l *Ledger) CanConsume(ctx context.Context, source, day string) (bool, error) {
	rec, err := l.Status(ctx, source, day)
	if err != nil {
		return false, err
	}
	return rec.Remaining() > 0, nil
}

// Status returns the record for (source, day), creating it lazily.
func (l *Ledger) Status(ctx context.Context, source, day string) (Record, error) {
	rec, err := l.store.Get(ctx, source, day, l.Limit(source))
	if err != nil {
		return Record{}, errors.Wrapf(err, "read quota source=%s day=%s", source, day)
	}
	return rec, nil
}

// Consume reserves n units. When the reservation does not fit, it returns the
// unchanged record together with ErrExhausted.
func (l *Ledger) Consume(ctx context.Context, source, day string, n int) (Record, error) {
	if n <= 0 {
		return Record{}, errors.Newf("quota consume: n must be positive, got %d", n)
	}

	unlock := l.lock(source, day)
	defer unlock()

	rec, ok, err := l.store.Add(ctx, source, day, l.Limit(source), n)
	if err != nil {
		return Record{}, errors.Wrapf(err, "consume quota source=%s day=%s", source, day)
	}
	if !ok {
		l.log.Infow("quota exhausted", "source", source, "day", day, "used", rec.Used, "limit", rec.Limit, "requested", n)
		return rec, errors.Wrapf(ErrExhausted, "source=%s day=%s used=%d limit=%d requested=%d", source, day, rec.Used, rec.Limit, n)
	}
	return rec, nil
}

// Snapshot returns the records of the given sources for day, sorted by source.
func (l *Ledger) Snapshot(ctx context.Context, day string, sources []string) ([]Record, error) {
	out := make([]Record, 0, len(sources))
	for _, s := range sources {
		rec, err := l.Status(ctx, s, day)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"jobradar/internal/database"
	"jobradar/internal/domain/batch"
	"jobradar/internal/domain/job"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan dest mismatch: %d != %d", len(dest), len(r.vals))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer {
			return fmt.Errorf("dest %d is not a pointer", i)
		}
		target := dv.Elem()
		if r.vals[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(r.vals[i])
		if !v.Type().AssignableTo(target.Type()) {
			if !v.Type().ConvertibleTo(target.Type()) {
				return fmt.Errorf("dest %d: cannot assign %s to %s", i, v.Type(), target.Type())
			}
			v = v.Convert(target.Type())
		}
		target.Set(v)
	}
	return nil
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func isNilArg(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// coalesced lists upsert argument positions merged with COALESCE(EXCLUDED.x, jobs.x).
var coalesced = map[int]bool{4: true, 5: true, 6: true, 9: true, 10: true, 11: true, 12: true, 13: true, 14: true, 15: true, 16: true, 17: true, 18: true, 19: true}

// fakeDB emulates the jobs upsert and batch_jobs compare-and-set statements.
type fakeDB struct {
	mu      sync.Mutex
	jobs    map[string][]any
	batches map[string]*batch.BatchJob
	execs   []string

	// cores records, per job id, whether a core-requirements vector is stored.
	cores map[string]bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{jobs: map[string][]any{}, batches: map[string]*batch.BatchJob{}, cores: map[string]bool{}}
}

func (db *fakeDB) Ping(ctx context.Context) error { return nil }
func (db *fakeDB) Close() error                   { return nil }
func (db *fakeDB) SQLDB() *sql.DB                 { return nil }

func (db *fakeDB) Begin(ctx context.Context) (database.Tx, error) {
	return nil, fmt.Errorf("not implemented")
}

func (db *fakeDB) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	return nil, fmt.Errorf("not implemented")
}

func (db *fakeDB) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	db.mu.Lock()
	defer db.mu.Unlock()

	q := normalizeQuery(query)
	if strings.HasPrefix(q, "with prev as") && strings.Contains(q, "update jobs set") {
		id := fmt.Sprint(args[0])
		had, ok := db.cores[id]
		if !ok {
			return fakeRow{err: database.ErrNoRows}
		}
		if !isNilArg(args[1]) {
			db.cores[id] = true
		}
		return fakeRow{vals: []any{!had}}
	}
	if !strings.HasPrefix(q, "insert into jobs") {
		return fakeRow{err: fmt.Errorf("unexpected query: %s", q)}
	}

	key := args[1].(string)
	stored, ok := db.jobs[key]
	if !ok {
		db.jobs[key] = append([]any(nil), args...)
		return fakeRow{vals: []any{true}}
	}
	if stored[21].(time.Time).After(args[21].(time.Time)) {
		return fakeRow{err: database.ErrNoRows}
	}
	for i := 2; i < len(args); i++ {
		switch {
		case coalesced[i] && isNilArg(args[i]):
		case i == 3 && args[i] == job.UnknownCompany:
		case i == 20 && args[i] == job.SalaryNotSpecified:
		default:
			stored[i] = args[i]
		}
	}
	return fakeRow{vals: []any{false}}
}

func (db *fakeDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	q := normalizeQuery(query)
	db.execs = append(db.execs, q)
	switch {
	case strings.HasPrefix(q, "insert into batch_jobs"):
		id := args[0].(string)
		if _, ok := db.batches[id]; ok {
			return 0, fmt.Errorf("duplicate batch_id")
		}
		db.batches[id] = &batch.BatchJob{
			BatchID:        id,
			Status:         batch.Status(args[1].(string)),
			JobCount:       args[2].(int),
			ProcessedCount: args[3].(int),
			CreatedAt:      args[4].(time.Time),
			UpdatedAt:      args[5].(time.Time),
		}
		return 1, nil
	case strings.HasPrefix(q, "update batch_jobs set status"):
		b, ok := db.batches[args[0].(string)]
		if !ok || string(b.Status) != args[1].(string) {
			return 0, nil
		}
		b.Status = batch.Status(args[2].(string))
		if p, ok := args[3].(*int); ok && p != nil {
			b.ProcessedCount = *p
		}
		if m, ok := args[4].(*string); ok && m != nil {
			b.ErrorMessage = m
		}
		b.UpdatedAt = args[5].(time.Time)
		if c, ok := args[6].(*time.Time); ok && c != nil {
			b.CompletedAt = c
		}
		return 1, nil
	case strings.HasPrefix(q, "update batch_jobs set processed_count"):
		b, ok := db.batches[args[0].(string)]
		if !ok || batch.IsTerminal(b.Status) {
			return 0, nil
		}
		b.ProcessedCount += args[1].(int)
		return 1, nil
	}
	return 0, nil
}

package embedding

import (
	"context"
	"sync"
	"time"

	"jobradar/internal/domain/batch"
	"jobradar/internal/domain/job"
	"jobradar/internal/repository"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type memJobs struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*job.Job
	order    []uuid.UUID
	batches  map[string]batch.Status
	writes   int
	assigned map[string][]uuid.UUID

	// failOn makes the n-th UpdateEmbeddings call fail once.
	failOn int
	calls  int
}

func newMemJobs(jobs ...job.Job) *memJobs {
	m := &memJobs{jobs: map[uuid.UUID]*job.Job{}, batches: map[string]batch.Status{}, assigned: map[string][]uuid.UUID{}}
	for i := range jobs {
		j := jobs[i]
		m.jobs[j.ID] = &j
		m.order = append(m.order, j.ID)
	}
	return m
}

func (m *memJobs) ListPendingEmbedding(ctx context.Context, limit int) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.Job
	for _, id := range m.order {
		j := m.jobs[id]
		if j.HasEmbedding() {
			continue
		}
		if j.Embeddings.BatchID != nil && m.batches[*j.Embeddings.BatchID] != batch.StatusCompleted {
			continue
		}
		out = append(out, *j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memJobs) AssignBatch(ctx context.Context, batchID string, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batchID] = batch.StatusSubmitted
	for _, id := range ids {
		b := batchID
		m.jobs[id].Embeddings.BatchID = &b
	}
	m.assigned[batchID] = ids
	return int64(len(ids)), nil
}

func (m *memJobs) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.Job
	for _, id := range ids {
		if j, ok := m.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) UpdateEmbeddings(ctx context.Context, id uuid.UUID, w repository.EmbeddingWrite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn > 0 && m.calls == m.failOn {
		return false, errors.New("connection reset")
	}
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	firstWrite := !j.HasEmbedding()
	if w.CoreRequirements != nil {
		j.Embeddings.CoreRequirements = w.CoreRequirements
	}
	if w.TransferableContext != nil {
		j.Embeddings.TransferableContext = w.TransferableContext
	}
	if w.RoleContext != nil {
		j.Embeddings.RoleContext = w.RoleContext
	}
	if j.Embeddings.Text == nil {
		t := w.Text
		j.Embeddings.Text = &t
	}
	m.writes++
	return firstWrite, nil
}

func (m *memJobs) ReleaseBatch(ctx context.Context, batchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Embeddings.BatchID != nil && *j.Embeddings.BatchID == batchID && !j.HasEmbedding() {
			j.Embeddings.BatchID = nil
			n++
		}
	}
	return n, nil
}

func (m *memJobs) get(id uuid.UUID) job.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

type memBatches struct {
	mu          sync.Mutex
	rows        map[string]*batch.BatchJob
	transitions int
	now         time.Time
}

func newMemBatches() *memBatches {
	return &memBatches{rows: map[string]*batch.BatchJob{}, now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *memBatches) Create(ctx context.Context, b batch.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[b.BatchID]; ok {
		return errors.New("duplicate")
	}
	m.rows[b.BatchID] = &b
	return nil
}

func (m *memBatches) Get(ctx context.Context, id string) (batch.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return batch.BatchJob{}, repository.ErrNotFound
	}
	return *b, nil
}

func (m *memBatches) ListOutstanding(ctx context.Context, limit int) ([]batch.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []batch.BatchJob
	for _, b := range m.rows {
		if batch.Outstanding(b.Status) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBatches) Transition(ctx context.Context, id string, from, to batch.Status, processed *int, errMsg *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !batch.IsTransitionAllowed(from, to) {
		return false, batch.ErrInvalidTransition
	}
	b, ok := m.rows[id]
	if !ok || b.Status != from {
		return false, nil
	}
	if err := b.Transition(to, m.now); err != nil {
		return false, err
	}
	if processed != nil {
		b.ProcessedCount = *processed
	}
	if errMsg != nil {
		b.ErrorMessage = errMsg
	}
	m.transitions++
	return true, nil
}

func (m *memBatches) IncrementProcessed(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.rows[id]; ok && !batch.IsTerminal(b.Status) {
		b.ProcessedCount += delta
	}
	return nil
}

func (m *memBatches) get(id string) batch.BatchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type fakeService struct {
	mu        sync.Mutex
	submitted [][]Request
	submitErr error
	status    map[string]BatchStatus
	pollErr   error
	results   map[string][]byte
	polls     int
	nextID    int

	// hangPoll and hangDownload block until the call's context ends.
	hangPoll     bool
	hangDownload bool
}

func (f *fakeService) SubmitBatch(ctx context.Context, reqs []Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	f.submitted = append(f.submitted, reqs)
	return "batch_" + string(rune('a'+f.nextID-1)), nil
}

func (f *fakeService) PollBatch(ctx context.Context, id string) (BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.hangPoll {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return BatchStatus{}, ctx.Err()
	}
	if f.pollErr != nil {
		return BatchStatus{}, f.pollErr
	}
	return f.status[id], nil
}

func (f *fakeService) DownloadResults(ctx context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hangDownload {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return nil, ctx.Err()
	}
	b, ok := f.results[location]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

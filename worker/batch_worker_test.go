package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailscout/models"
	"mailscout/store"
	"mailscout/verifier"
)

type stubBackend struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Verify(ctx context.Context, c models.Candidate) models.VerificationReport {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	b.seen = append(b.seen, c.Email)
	b.mu.Unlock()

	rep := models.VerificationReport{Candidate: c, Backend: "stub"}
	switch {
	case strings.HasPrefix(c.Email, "jane.smith@"):
		rep.Outcome = models.Pass("accepted")
	case strings.HasPrefix(c.Email, "janesmith@"):
		rep.Outcome = models.Erroredf("boom")
	default:
		rep.Outcome = models.Fail("rejected")
	}
	return rep
}

func newWorker(t *testing.T) (*BatchWorker, *store.MemoryBatchStore, context.CancelFunc) {
	t.Helper()
	batches := store.NewMemoryBatchStore()
	w := NewBatchWorker(batches, verifier.NewRunner(3, time.Second, nil), 4)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	t.Cleanup(cancel)
	return w, batches, cancel
}

func seedBatch(t *testing.T, batches store.BatchStore, entries ...models.PersonIdentity) string {
	t.Helper()
	ctx := context.Background()
	b, err := batches.Create(ctx)
	require.NoError(t, err)
	_, err = batches.AppendEntries(ctx, b.ID, entries)
	require.NoError(t, err)
	return b.ID
}

func waitCompleted(t *testing.T, w *BatchWorker, id string) RunState {
	t.Helper()
	var state RunState
	require.Eventually(t, func() bool {
		var err error
		state, err = w.State(id)
		return err == nil && state.Status == models.BatchRunCompleted
	}, 5*time.Second, 10*time.Millisecond)
	return state
}

func TestBatchWorker_runsEveryCandidate(t *testing.T) {
	w, batches, _ := newWorker(t)
	id := seedBatch(t, batches,
		models.PersonIdentity{FirstName: "Jane", LastName: "Smith", Domain: "acme.io"},
		models.PersonIdentity{FirstName: "", LastName: "Nobody", Domain: "acme.io"},
	)
	backend := &stubBackend{}

	queued, err := w.Enqueue(context.Background(), id, backend)
	require.NoError(t, err)
	assert.Equal(t, verifier.TemplateCount, queued.Total)
	assert.Equal(t, "stub", queued.Backend)

	state := waitCompleted(t, w, id)
	assert.Equal(t, state.Total, state.Completed)
	require.NotNil(t, state.Summary)
	assert.Equal(t, models.BatchSummary{Total: 12, Passed: 1, Failed: 10, Errored: 1}, *state.Summary)
	assert.NotNil(t, state.StartedAt)
	assert.NotNil(t, state.FinishedAt)

	reports, _, err := w.Reports(id)
	require.NoError(t, err)
	assert.Len(t, reports, verifier.TemplateCount)
	assert.Len(t, backend.seen, verifier.TemplateCount)
}

func TestBatchWorker_rejectsConcurrentRun(t *testing.T) {
	w, batches, _ := newWorker(t)
	id := seedBatch(t, batches, models.PersonIdentity{FirstName: "Jane", LastName: "Smith", Domain: "acme.io"})
	backend := &stubBackend{block: make(chan struct{})}

	_, err := w.Enqueue(context.Background(), id, backend)
	require.NoError(t, err)
	_, err = w.Enqueue(context.Background(), id, backend)
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, _, err = w.Reports(id)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(backend.block)
	waitCompleted(t, w, id)

	// a completed batch can be run again
	_, err = w.Enqueue(context.Background(), id, &stubBackend{})
	require.NoError(t, err)
	waitCompleted(t, w, id)
}

func TestBatchWorker_enqueueErrors(t *testing.T) {
	w, batches, _ := newWorker(t)

	_, err := w.Enqueue(context.Background(), "missing", &stubBackend{})
	assert.ErrorIs(t, err, store.ErrBatchNotFound)

	id := seedBatch(t, batches, models.PersonIdentity{FirstName: "!!", LastName: "Smith", Domain: "acme.io"})
	_, err = w.Enqueue(context.Background(), id, &stubBackend{})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = w.State(id)
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestBatchWorker_forget(t *testing.T) {
	w, batches, _ := newWorker(t)
	id := seedBatch(t, batches, models.PersonIdentity{FirstName: "Jane", LastName: "Smith", Domain: "acme.io"})

	_, err := w.Enqueue(context.Background(), id, &stubBackend{})
	require.NoError(t, err)
	waitCompleted(t, w, id)

	w.Forget(id)
	_, _, err = w.Reports(id)
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestBatchWorker_queueFull(t *testing.T) {
	batches := store.NewMemoryBatchStore()
	// not started, so nothing drains the queue
	w := NewBatchWorker(batches, verifier.NewRunner(1, time.Second, nil), 1)
	person := models.PersonIdentity{FirstName: "Jane", LastName: "Smith", Domain: "acme.io"}

	_, err := w.Enqueue(context.Background(), seedBatch(t, batches, person), &stubBackend{})
	require.NoError(t, err)
	_, err = w.Enqueue(context.Background(), seedBatch(t, batches, person), &stubBackend{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

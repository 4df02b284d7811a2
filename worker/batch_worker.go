package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailscout/models"
	"mailscout/store"
	"mailscout/utils"
	"mailscout/verifier"
)

var (
	ErrRunInProgress = errors.New("batch run already queued or running")
	ErrQueueFull     = errors.New("batch queue is full")
	ErrNoRun         = errors.New("batch has not been run")
	ErrEmptyBatch    = errors.New("batch has no usable entries")
)

// RunState is a point-in-time view of a batch run.
type RunState struct {
	BatchID    string                `json:"batch_id"`
	Status     models.BatchRunStatus `json:"status"`
	Backend    string                `json:"backend"`
	Completed  int                   `json:"completed"`
	Total      int                   `json:"total"`
	Summary    *models.BatchSummary  `json:"summary,omitempty"`
	QueuedAt   time.Time             `json:"queued_at"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

type batchRun struct {
	batchID    string
	backend    verifier.Backend
	candidates []models.Candidate
	progress   *verifier.Progress

	status     models.BatchRunStatus
	reports    []models.VerificationReport
	summary    *models.BatchSummary
	queuedAt   time.Time
	startedAt  *time.Time
	finishedAt *time.Time
}

// BatchWorker runs queued batches one at a time and keeps each batch's last
// reports in memory until the batch is forgotten.
type BatchWorker struct {
	Store  store.BatchStore
	Runner *verifier.Runner
	Logger *logrus.Entry

	queue chan *batchRun
	mu    sync.RWMutex
	runs  map[string]*batchRun
}

func NewBatchWorker(batches store.BatchStore, runner *verifier.Runner, queueSize int) *BatchWorker {
	if queueSize < 1 {
		queueSize = 16
	}
	return &BatchWorker{
		Store:  batches,
		Runner: runner,
		Logger: utils.Component("batch_worker"),
		queue:  make(chan *batchRun, queueSize),
		runs:   make(map[string]*batchRun),
	}
}

// Start consumes queued runs until ctx is done. A run interrupted by shutdown
// finishes its in-flight tasks and reports the rest as errors.
func (bw *BatchWorker) Start(ctx context.Context) {
	bw.Logger.Info("Batch worker started")
	for {
		select {
		case <-ctx.Done():
			bw.Logger.Info("Batch worker shutting down...")
			return
		case run := <-bw.queue:
			bw.process(ctx, run)
		}
	}
}

// Enqueue generates candidates for every entry of the batch and schedules a
// run on backend. Previous reports of the batch are replaced.
func (bw *BatchWorker) Enqueue(ctx context.Context, batchID string, backend verifier.Backend) (RunState, error) {
	batch, err := bw.Store.Get(ctx, batchID)
	if err != nil {
		return RunState{}, err
	}

	var candidates []models.Candidate
	for _, entry := range batch.Entries {
		candidates = append(candidates, verifier.Generate(entry)...)
	}
	if len(candidates) == 0 {
		return RunState{}, ErrEmptyBatch
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()
	if prev, ok := bw.runs[batchID]; ok && prev.status != models.BatchRunCompleted {
		return RunState{}, ErrRunInProgress
	}

	run := &batchRun{
		batchID:    batchID,
		backend:    backend,
		candidates: candidates,
		progress:   &verifier.Progress{},
		status:     models.BatchRunQueued,
		queuedAt:   time.Now().UTC(),
	}
	select {
	case bw.queue <- run:
	default:
		return RunState{}, ErrQueueFull
	}
	bw.runs[batchID] = run

	bw.Logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"backend":    backend.Name(),
		"entries":    len(batch.Entries),
		"candidates": len(candidates),
	}).Info("Batch queued")
	return run.state(), nil
}

func (bw *BatchWorker) process(ctx context.Context, run *batchRun) {
	bw.mu.Lock()
	if bw.runs[run.batchID] != run {
		// forgotten while queued
		bw.mu.Unlock()
		return
	}
	started := time.Now().UTC()
	run.status = models.BatchRunRunning
	run.startedAt = &started
	bw.mu.Unlock()

	log := bw.Logger.WithFields(logrus.Fields{"batch_id": run.batchID, "backend": run.backend.Name()})
	log.Info("Processing batch")

	reports := bw.Runner.Run(ctx, run.candidates, run.backend, run.progress)
	summary, err := verifier.Summarize(reports)
	if err != nil {
		utils.LogError("batch_partial", err, map[string]interface{}{"batch_id": run.batchID})
	}

	finished := time.Now().UTC()
	bw.mu.Lock()
	run.reports = reports
	run.summary = &summary
	run.status = models.BatchRunCompleted
	run.finishedAt = &finished
	bw.mu.Unlock()

	utils.LogEvent("batch_completed", map[string]interface{}{
		"batch_id":     run.batchID,
		"backend":      run.backend.Name(),
		"total":        summary.Total,
		"passed":       summary.Passed,
		"failed":       summary.Failed,
		"inconclusive": summary.Inconclusive,
		"errored":      summary.Errored,
		"duration":     utils.FormatDuration(finished.Sub(started)),
	})
}

// State returns the current run state of a batch.
func (bw *BatchWorker) State(batchID string) (RunState, error) {
	bw.mu.RLock()
	defer bw.mu.RUnlock()
	run, ok := bw.runs[batchID]
	if !ok {
		return RunState{}, fmt.Errorf("%w: %s", ErrNoRun, batchID)
	}
	return run.state(), nil
}

// Reports returns the reports of the batch's last completed run.
func (bw *BatchWorker) Reports(batchID string) ([]models.VerificationReport, RunState, error) {
	bw.mu.RLock()
	defer bw.mu.RUnlock()
	run, ok := bw.runs[batchID]
	if !ok {
		return nil, RunState{}, fmt.Errorf("%w: %s", ErrNoRun, batchID)
	}
	if run.status != models.BatchRunCompleted {
		return nil, run.state(), ErrRunInProgress
	}
	return append([]models.VerificationReport{}, run.reports...), run.state(), nil
}

// Forget drops everything held for the batch. A run still in flight finishes
// but its reports are discarded.
func (bw *BatchWorker) Forget(batchID string) {
	bw.mu.Lock()
	delete(bw.runs, batchID)
	bw.mu.Unlock()
}

// state must be called with the worker lock held.
func (r *batchRun) state() RunState {
	s := RunState{
		BatchID:    r.batchID,
		Status:     r.status,
		Backend:    r.backend.Name(),
		Total:      len(r.candidates),
		Summary:    r.summary,
		QueuedAt:   r.queuedAt,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	if r.status != models.BatchRunQueued {
		s.Completed = r.progress.Completed()
	}
	return s
}

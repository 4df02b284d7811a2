package verifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"mailscout/metrics"
	"mailscout/models"
)

// Progress counts finished candidates of a run. Safe for concurrent use.
type Progress struct {
	completed atomic.Int64
	total     atomic.Int64
}

func (p *Progress) Completed() int { return int(p.completed.Load()) }

func (p *Progress) Total() int { return int(p.total.Load()) }

func (p *Progress) Done() bool { return p.Completed() >= p.Total() }

func (p *Progress) reset(total int) {
	p.completed.Store(0)
	p.total.Store(int64(total))
}

func (p *Progress) inc() { p.completed.Add(1) }

// Runner executes a backend over candidates with a fixed number of workers.
type Runner struct {
	Width       int
	TaskTimeout time.Duration
	Metrics     *metrics.Metrics
	log         *logrus.Entry
}

func NewRunner(width int, taskTimeout time.Duration, m *metrics.Metrics) *Runner {
	return &Runner{
		Width:       width,
		TaskTimeout: taskTimeout,
		Metrics:     m,
		log:         logrus.WithField("component", "batch_runner"),
	}
}

// RunBatch runs backend over candidates with maxParallelism workers.
func RunBatch(ctx context.Context, candidates []models.Candidate, backend Backend, maxParallelism int) []models.VerificationReport {
	return NewRunner(maxParallelism, 0, nil).Run(ctx, candidates, backend, nil)
}

// Run returns exactly one report per candidate, in completion order. When ctx
// is cancelled, candidates not yet handed to a worker get an Error report and
// tasks already running are allowed to finish. progress may be nil.
func (r *Runner) Run(ctx context.Context, candidates []models.Candidate, backend Backend, progress *Progress) []models.VerificationReport {
	if progress == nil {
		progress = &Progress{}
	}
	progress.reset(len(candidates))
	if len(candidates) == 0 {
		return []models.VerificationReport{}
	}

	width := r.Width
	if width < 1 {
		width = 2
	}
	if width > len(candidates) {
		width = len(candidates)
	}
	log := r.logger().WithFields(logrus.Fields{
		"backend":    backend.Name(),
		"candidates": len(candidates),
		"width":      width,
	})
	log.Info("batch started")
	finished := r.Metrics.BatchStarted()
	defer finished()

	jobs := make(chan int)
	results := make(chan models.VerificationReport, len(candidates))
	taskCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- r.runTask(taskCtx, backend, candidates[i])
				progress.inc()
			}
		}()
	}

	dispatched := 0
dispatch:
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			dispatched++
		}
	}
	close(jobs)

	if dispatched < len(candidates) {
		cause := fmt.Errorf("batch cancelled: %w", context.Cause(ctx))
		log.WithField("skipped", len(candidates)-dispatched).Warn("batch cancelled before dispatch finished")
		for _, c := range candidates[dispatched:] {
			results <- models.ErrorReport(c, backend.Name(), cause)
			progress.inc()
		}
	}

	wg.Wait()
	close(results)

	reports := make([]models.VerificationReport, 0, len(candidates))
	for rep := range results {
		reports = append(reports, rep)
	}
	log.WithField("reports", len(reports)).Info("batch finished")
	return reports
}

// runTask verifies one candidate under the task timeout. A panic or timeout
// becomes an Error report for that candidate only. It does not return before
// the backend call has returned.
func (r *Runner) runTask(ctx context.Context, backend Backend, c models.Candidate) models.VerificationReport {
	timeout := r.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.Metrics.TaskStarted()
	defer r.Metrics.TaskFinished()

	done := make(chan models.VerificationReport, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger().WithFields(logrus.Fields{
					"email": c.Email,
					"panic": rec,
				}).Error("backend panicked")
				done <- models.ErrorReport(c, backend.Name(), fmt.Errorf("backend panic: %v", rec))
			}
		}()
		done <- backend.Verify(ctx, c)
	}()

	select {
	case rep := <-done:
		rep.Candidate = c
		if rep.Backend == "" {
			rep.Backend = backend.Name()
		}
		return rep
	case <-ctx.Done():
		rep := models.ErrorReport(c, backend.Name(), fmt.Errorf("task timed out after %s", timeout))
		// The slot stays taken until the backend call returns.
		<-done
		return rep
	}
}

func (r *Runner) logger() *logrus.Entry {
	if r.log == nil {
		return logrus.WithField("component", "batch_runner")
	}
	return r.log
}

// Summarize counts report outcomes. The error is ErrPartialBatch when at least
// one candidate errored.
func Summarize(reports []models.VerificationReport) (models.BatchSummary, error) {
	var s models.BatchSummary
	s.Total = len(reports)
	for _, rep := range reports {
		switch rep.Outcome.Status() {
		case models.StagePass:
			s.Passed++
		case models.StageFail:
			s.Failed++
		case models.StageError:
			s.Errored++
		default:
			s.Inconclusive++
		}
	}
	if s.Errored > 0 {
		return s, fmt.Errorf("%w: %d of %d", ErrPartialBatch, s.Errored, s.Total)
	}
	return s, nil
}

package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vidbatch/vidbatch/pkg/api"
)

// ExecRequest is the unit of work handed to the external executor.
type ExecRequest struct {
	Index           int
	Kind            JobKind
	Job             JobSpec
	Model           string
	Seconds         int
	OutputPath      string
	PollInterval    time.Duration
	MaxPollAttempts int
}

// ExecResult is what the executor returns for a completed job.
type ExecResult struct {
	OutputPath   string
	RemoteURL    string
	VideoSeconds float64
	RequestID    string
}

// Executor performs the create+poll+download sequence for a single job.
// It fails with a plain error message on any network, validation, remote or
// poll-exhaustion failure; the scheduler matches retry patterns against that
// message.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (ExecResult, error)
}

// settleGrace is how long already-running jobs may continue after the batch
// deadline before unfinished work is reconciled as cancelled.
const settleGrace = 2 * time.Second

const cancelledReason = "timed out"

// Runner coordinates a batch: one goroutine per job, throttled by the gate,
// each wrapped in the retry policy, all raced against a single wall-clock
// deadline.
type Runner struct {
	cfg   BatchConfig
	exec  Executor
	paths PathResolver
	log   zerolog.Logger
	grace time.Duration
}

func NewRunner(cfg BatchConfig, exec Executor, paths PathResolver, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, exec: exec, paths: paths, log: log, grace: settleGrace}
}

// Run executes the batch and assembles the final report. Job-level failures
// never abort sibling jobs or the batch; the only errors returned here are
// configuration errors detected before any job starts.
func (r *Runner) Run(ctx context.Context) (*api.BatchReport, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	n := len(r.cfg.Jobs)
	gate := NewGate(r.cfg.MaxConcurrent)

	var mu sync.Mutex
	outcomes := make(map[int]api.JobOutcome, n)
	record := func(o api.JobOutcome) {
		mu.Lock()
		if _, dup := outcomes[o.Index]; !dup {
			outcomes[o.Index] = o
		}
		mu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, job := range r.cfg.Jobs {
		index := i + 1
		path, err := r.paths.Resolve(job, index, r.cfg.OutputDir, r.cfg.AllowAnyPath)
		if err != nil {
			// Path resolution failure is scoped to the job, like any
			// executor failure.
			r.log.Error().Int("job", index).Err(err).Msg("output path rejected")
			record(api.JobOutcome{Index: index, Status: api.JobFailed, Message: err.Error()})
			continue
		}
		wg.Add(1)
		go func(index int, job JobSpec, path string) {
			defer wg.Done()
			if err := gate.Acquire(runCtx); err != nil {
				// Deadline elapsed while queued; finalization records the
				// cancellation.
				return
			}
			defer gate.Release()
			record(r.runJob(runCtx, index, job, path))
		}(index, job, path)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timeout := time.Duration(r.cfg.TimeoutMS) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		r.log.Warn().Dur("timeout", timeout).Msg("batch deadline elapsed, waiting grace period")
		select {
		case <-done:
		case <-time.After(r.grace):
		}
		cancel()
	case <-ctx.Done():
		r.log.Warn().Msg("batch context cancelled, waiting grace period")
		select {
		case <-done:
		case <-time.After(r.grace):
		}
		cancel()
	}

	mu.Lock()
	report := &api.BatchReport{
		Total:     n,
		Outcomes:  make([]api.JobOutcome, 0, n),
		StartedAt: started,
	}
	for index := 1; index <= n; index++ {
		o, ok := outcomes[index]
		if !ok {
			o = api.JobOutcome{Index: index, Status: api.JobCancelled, Message: cancelledReason}
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	mu.Unlock()

	sort.Slice(report.Outcomes, func(a, b int) bool {
		return report.Outcomes[a].Index < report.Outcomes[b].Index
	})
	for _, o := range report.Outcomes {
		switch o.Status {
		case api.JobCompleted:
			report.Succeeded++
		case api.JobFailed:
			report.Failed++
		case api.JobCancelled:
			report.Cancelled++
		}
	}
	report.FinishedAt = time.Now()
	report.ElapsedMS = report.FinishedAt.Sub(started).Milliseconds()
	report.Estimate = Estimate(r.cfg)

	r.log.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("cancelled", report.Cancelled).
		Int64("elapsed_ms", report.ElapsedMS).
		Msg("batch finished")
	return report, nil
}

// runJob drives one job through the retry loop. Duration covers everything
// from dispatch to the terminal outcome, retries and polling included.
func (r *Runner) runJob(ctx context.Context, index int, job JobSpec, path string) api.JobOutcome {
	kind := Classify(job)
	log := r.log.With().Int("job", index).Str("kind", kind.String()).Logger()
	start := time.Now()
	delay := time.Duration(r.cfg.Retry.RetryDelayMS) * time.Millisecond

	req := ExecRequest{
		Index:           index,
		Kind:            kind,
		Job:             job,
		Model:           r.cfg.ModelFor(job),
		Seconds:         r.cfg.SecondsFor(job),
		OutputPath:      path,
		PollInterval:    time.Duration(r.cfg.PollIntervalMS) * time.Millisecond,
		MaxPollAttempts: r.cfg.MaxPollAttempts,
	}

	attempt := 0
	for {
		res, err := r.exec.Execute(ctx, req)
		elapsed := time.Since(start).Milliseconds()
		if err == nil {
			log.Info().Str("output", res.OutputPath).Int("attempts", attempt+1).Msg("job completed")
			return api.JobOutcome{
				Index:        index,
				Status:       api.JobCompleted,
				OutputPath:   res.OutputPath,
				RemoteURL:    res.RemoteURL,
				RequestID:    res.RequestID,
				VideoSeconds: res.VideoSeconds,
				DurationMS:   elapsed,
				Attempts:     attempt + 1,
			}
		}
		if !ShouldRetry(attempt, err.Error(), r.cfg.Retry) {
			log.Error().Err(err).Int("attempts", attempt+1).Msg("job failed")
			return api.JobOutcome{
				Index:      index,
				Status:     api.JobFailed,
				Message:    err.Error(),
				DurationMS: elapsed,
				Attempts:   attempt + 1,
			}
		}
		attempt++
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", r.cfg.Retry.MaxRetries).
			Dur("delay", delay).
			Msg("job failed, retrying")
		select {
		case <-ctx.Done():
			return api.JobOutcome{
				Index:      index,
				Status:     api.JobCancelled,
				Message:    cancelledReason,
				DurationMS: time.Since(start).Milliseconds(),
				Attempts:   attempt,
			}
		case <-time.After(delay):
		}
	}
}

package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"skill-runner/internal/constants"
	"skill-runner/internal/models"
	"skill-runner/pkg/circuit"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

// ErrQueueFull is returned when a batch does not fit in the job queue.
var ErrQueueFull = errors.New("processor: job queue full")

// ErrStopped is returned for submissions after Stop.
var ErrStopped = errors.New("processor: engine stopped")

var (
	mJobs       = metrics.Default.CounterVec("processor_jobs_total", "Batch jobs by outcome", "outcome")
	mQueueDepth = metrics.Default.Gauge("processor_queue_depth", "Jobs waiting in the queue")
	mWorkers    = metrics.Default.Gauge("processor_workers", "Active worker goroutines")
)

// JobStatus is the lifecycle of a batch job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one queued verification.
type Job struct {
	ID      string
	Request Request
	Retry   int
}

// JobResult is what a caller polls for.
type JobResult struct {
	ID             string               `json:"id"`
	Status         JobStatus            `json:"status"`
	VerificationID string               `json:"verification_id,omitempty"`
	State          models.DecisionState `json:"state,omitempty"`
	Confidence     int                  `json:"confidence,omitempty"`
	Error          string               `json:"error,omitempty"`
	Retries        int                  `json:"retries"`
	DurationMs     int64                `json:"duration_ms,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// ProcessingStats tracks engine activity since start.
type ProcessingStats struct {
	TotalJobs      int64     `json:"total_jobs"`
	CompletedJobs  int64     `json:"completed_jobs"`
	SuccessfulJobs int64     `json:"successful_jobs"`
	FailedJobs     int64     `json:"failed_jobs"`
	Approved       int64     `json:"approved"`
	NeedsReview    int64     `json:"needs_review"`
	Rejected       int64     `json:"rejected"`
	AverageTimeMs  int64     `json:"average_time_ms"`
	StartTime      time.Time `json:"start_time"`
	LastActivity   time.Time `json:"last_activity"`
	WorkerCount    int       `json:"worker_count"`
	QueueSize      int64     `json:"queue_size"`
}

// ProcessingConfig holds the engine knobs.
type ProcessingConfig struct {
	WorkerCount int
	QueueSize   int
	MaxRetries  int
	RetryDelay  time.Duration
	JobTimeout  time.Duration
	// ResultTTL bounds how long finished job results stay pollable.
	ResultTTL time.Duration
}

func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		WorkerCount: 4,
		QueueSize:   500,
		MaxRetries:  constants.ProcessorMaxRetries,
		RetryDelay:  constants.ProcessorRetryDelayDefault,
		JobTimeout:  constants.ProcessorJobTimeoutDefault,
		ResultTTL:   time.Hour,
	}
}

// Verifier is the part of Pipeline the engine drives.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Outcome, error)
}

// ProcessingEngine runs batch verifications on a resizable worker pool.
type ProcessingEngine struct {
	verifier Verifier
	cfg      ProcessingConfig
	log      *logging.ComponentLogger

	jobQueue chan Job
	quit     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	poolMu      sync.Mutex
	workerCount int
	nextWorker  int
	running     bool

	stats   ProcessingStats
	statsMu sync.RWMutex
	queued  atomic.Int64

	resultsMu sync.RWMutex
	results   map[string]*JobResult

	shutdownOnce sync.Once
}

func NewProcessingEngine(v Verifier, cfg ProcessingConfig, log *logging.Logger) *ProcessingEngine {
	def := DefaultProcessingConfig()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if log == nil {
		log = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessingEngine{
		verifier:    v,
		cfg:         cfg,
		log:         log.WithComponent("processor"),
		jobQueue:    make(chan Job, cfg.QueueSize),
		quit:        make(chan struct{}, constants.MaxWorkers),
		ctx:         ctx,
		cancel:      cancel,
		workerCount: cfg.WorkerCount,
		results:     make(map[string]*JobResult),
		stats: ProcessingStats{
			StartTime:    time.Now(),
			LastActivity: time.Now(),
			WorkerCount:  cfg.WorkerCount,
		},
	}
}

// Start launches the workers and the result janitor.
func (e *ProcessingEngine) Start() {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.running {
		return
	}
	e.running = true
	for i := 0; i < e.workerCount; i++ {
		e.spawnLocked()
	}
	mWorkers.SetFloat64(float64(e.workerCount))

	e.wg.Add(1)
	go e.janitor()

	e.log.Info("processing engine started", logging.Int("workers", e.workerCount), logging.Int("queue", e.cfg.QueueSize))
}

func (e *ProcessingEngine) spawnLocked() {
	id := e.nextWorker
	e.nextWorker++
	e.wg.Add(1)
	go e.worker(id)
}

// SetWorkerCount grows or shrinks the pool. Shrinking lets busy workers
// finish their current job first.
func (e *ProcessingEngine) SetWorkerCount(n int) {
	n = max(1, min(n, constants.MaxWorkers))
	e.poolMu.Lock()
	defer e.poolMu.Unlock()

	old := e.workerCount
	if e.running {
		for i := old; i < n; i++ {
			select {
			case <-e.quit:
				// cancels a retirement no worker has picked up yet
			default:
				e.spawnLocked()
			}
		}
		for i := n; i < old; i++ {
			e.quit <- struct{}{}
		}
	}
	e.workerCount = n
	mWorkers.SetFloat64(float64(n))

	e.statsMu.Lock()
	e.stats.WorkerCount = n
	e.statsMu.Unlock()

	if old != n {
		e.log.Info("worker pool resized", logging.Int("from", old), logging.Int("to", n))
	}
}

// Stop cancels in-flight jobs and waits for workers up to timeout.
func (e *ProcessingEngine) Stop(timeout time.Duration) error {
	var err error
	e.shutdownOnce.Do(func() {
		e.log.Info("stopping processing engine")
		e.poolMu.Lock()
		e.running = false
		e.poolMu.Unlock()
		e.cancel()

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			e.log.Info("processing engine stopped")
		case <-time.After(timeout):
			err = errors.New("processor: shutdown timeout exceeded")
			e.log.Warn("shutdown timeout reached", logging.Duration("timeout", timeout))
		}
	})
	return err
}

// Submit queues requests as batch jobs and returns their IDs. A batch that
// does not fit is rejected up front; if a concurrent submitter fills the
// queue mid-batch, the IDs queued so far come back with ErrQueueFull.
func (e *ProcessingEngine) Submit(reqs []Request) ([]string, error) {
	if e.ctx.Err() != nil {
		return nil, ErrStopped
	}
	if int(e.queued.Load())+len(reqs) > e.cfg.QueueSize {
		return nil, ErrQueueFull
	}

	jobs := make([]Job, len(reqs))
	ids := make([]string, len(reqs))
	now := time.Now()
	e.resultsMu.Lock()
	for i, r := range reqs {
		if r.Source == "" {
			r.Source = SourceBatch
		}
		jobs[i] = Job{ID: uuid.NewString(), Request: r}
		ids[i] = jobs[i].ID
		e.results[jobs[i].ID] = &JobResult{ID: jobs[i].ID, Status: JobQueued, UpdatedAt: now}
	}
	e.resultsMu.Unlock()

	for i, j := range jobs {
		select {
		case e.jobQueue <- j:
			e.queued.Add(1)
		default:
			e.resultsMu.Lock()
			for _, rest := range jobs[i:] {
				delete(e.results, rest.ID)
			}
			e.resultsMu.Unlock()
			e.recordSubmitted(i, now)
			return ids[:i], ErrQueueFull
		}
	}

	e.recordSubmitted(len(jobs), now)
	return ids, nil
}

func (e *ProcessingEngine) recordSubmitted(n int, at time.Time) {
	mQueueDepth.SetFloat64(float64(e.queued.Load()))
	e.statsMu.Lock()
	e.stats.TotalJobs += int64(n)
	e.stats.LastActivity = at
	e.statsMu.Unlock()
}

// Result returns the status of a job.
func (e *ProcessingEngine) Result(id string) (JobResult, bool) {
	e.resultsMu.RLock()
	defer e.resultsMu.RUnlock()
	r, ok := e.results[id]
	if !ok {
		return JobResult{}, false
	}
	return *r, true
}

func (e *ProcessingEngine) GetStats() ProcessingStats {
	e.statsMu.RLock()
	s := e.stats
	e.statsMu.RUnlock()
	s.QueueSize = e.queued.Load()
	return s
}

func (e *ProcessingEngine) worker(id int) {
	defer e.wg.Done()
	e.log.Debug("worker started", logging.Int("worker", id))
	defer e.log.Debug("worker stopped", logging.Int("worker", id))

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.quit:
			return
		case job := <-e.jobQueue:
			mQueueDepth.SetFloat64(float64(e.queued.Add(-1)))
			e.handleResult(e.processJob(job))
		}
	}
}

func (e *ProcessingEngine) processJob(job Job) JobResult {
	start := time.Now()
	e.setStatus(job.ID, JobRunning)

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.JobTimeout)
	defer cancel()

	var (
		out *Outcome
		err error
	)
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt*attempt) * e.cfg.RetryDelay
			e.log.Debug("retrying job", logging.String("job_id", job.ID), logging.Int("attempt", attempt+1), logging.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				err = ctx.Err()
				return e.finish(job, nil, err, start)
			}
		}
		job.Retry = attempt
		out, err = e.verifier.Verify(ctx, job.Request)
		if err == nil || !isRetryable(err) {
			break
		}
		e.log.Warn("retryable job failure", logging.String("job_id", job.ID), logging.Int("attempt", attempt+1), logging.Error(err))
	}
	return e.finish(job, out, err, start)
}

func (e *ProcessingEngine) finish(job Job, out *Outcome, err error, start time.Time) JobResult {
	r := JobResult{
		ID:         job.ID,
		Retries:    job.Retry,
		DurationMs: time.Since(start).Milliseconds(),
		UpdatedAt:  time.Now(),
	}
	if err != nil {
		r.Status = JobFailed
		r.Error = err.Error()
		return r
	}
	r.Status = JobDone
	r.VerificationID = out.Verification.ID
	r.State = out.Verification.Verdict.DecisionState
	r.Confidence = out.Verification.Verdict.FinalConfidence
	return r
}

// isRetryable retries remote failures but not an open breaker, bad input or
// missing configuration.
func isRetryable(err error) bool {
	if errors.Is(err, circuit.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	switch errs.KindOf(err) {
	case errs.KindExternal, errs.KindDB:
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// handleResult counts r before publishing it, so a poller that sees a
// finished job also sees it in the stats.
func (e *ProcessingEngine) handleResult(r JobResult) {
	e.count(r)
	e.resultsMu.Lock()
	e.results[r.ID] = &r
	e.resultsMu.Unlock()
}

func (e *ProcessingEngine) count(r JobResult) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.CompletedJobs++
	e.stats.LastActivity = r.UpdatedAt
	// running mean
	e.stats.AverageTimeMs += (r.DurationMs - e.stats.AverageTimeMs) / e.stats.CompletedJobs

	if r.Status == JobFailed {
		e.stats.FailedJobs++
		mJobs.With("failed").Inc()
		e.log.Warn("job failed", logging.String("job_id", r.ID), logging.Int("retries", r.Retries), logging.String("error", r.Error))
		return
	}
	e.stats.SuccessfulJobs++
	mJobs.With("done").Inc()
	switch r.State {
	case models.DecisionApproved:
		e.stats.Approved++
	case models.DecisionRejected:
		e.stats.Rejected++
	default:
		e.stats.NeedsReview++
	}
}

func (e *ProcessingEngine) setStatus(id string, s JobStatus) {
	e.resultsMu.Lock()
	if r, ok := e.results[id]; ok {
		r.Status = s
		r.UpdatedAt = time.Now()
	}
	e.resultsMu.Unlock()
}

// janitor drops finished results older than ResultTTL.
func (e *ProcessingEngine) janitor() {
	defer e.wg.Done()
	t := time.NewTicker(max(time.Second, e.cfg.ResultTTL/4))
	defer t.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-t.C:
			e.resultsMu.Lock()
			for id, r := range e.results {
				if (r.Status == JobDone || r.Status == JobFailed) && now.Sub(r.UpdatedAt) > e.cfg.ResultTTL {
					delete(e.results, id)
				}
			}
			e.resultsMu.Unlock()
		}
	}
}

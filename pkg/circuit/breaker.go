package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"skill-runner/pkg/logging"
	"skill-runner/pkg/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes a circuit breaker instance.
type Config struct {
	Name string

	OperationTimeout  time.Duration // per-call timeout, 0 = caller's context only
	OpenFor           time.Duration // how long to stay open before probing
	MaxConsecFailures int           // consecutive failures to open
	WindowSize        int           // sliding window of recent calls
	FailureRate       float64       // 0..1 fraction in a full window to open
}

// DefaultConfig is what the geocoder and the document reader start from.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		OperationTimeout:  10 * time.Second,
		OpenFor:           30 * time.Second,
		MaxConsecFailures: 5,
		WindowSize:        20,
		FailureRate:       0.5,
	}
}

// ErrOpen indicates the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("circuit open")

type Breaker struct {
	cfg Config
	mu  sync.Mutex

	st         State
	nextProbe  time.Time
	probing    bool
	consecFail int

	win  []bool // true = failure
	idx  int
	used int

	log *logging.ComponentLogger

	mState   *metrics.Gauge
	mOpen    *metrics.Counter
	mFailure *metrics.Counter
	mLatency *metrics.Histogram

	now func() time.Time
}

func New(cfg Config, log *logging.Logger) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if log == nil {
		log = logging.Default()
	}
	return &Breaker{
		cfg:      cfg,
		win:      make([]bool, cfg.WindowSize),
		log:      log.WithComponent("circuit").With(logging.String("breaker", cfg.Name)),
		mState:   metrics.Default.Gauge("cb_"+cfg.Name+"_state", "Circuit breaker state (0=closed,1=open,2=half-open)"),
		mOpen:    metrics.Default.Counter("cb_"+cfg.Name+"_opens_total", "Circuit opened events"),
		mFailure: metrics.Default.Counter("cb_"+cfg.Name+"_failures_total", "Failed calls through circuit"),
		mLatency: metrics.Default.Histogram("cb_"+cfg.Name+"_latency_ms", "Latency of calls (ms)", []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}),
		now:      time.Now,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *Breaker) setStateLocked(st State) {
	if b.st == st {
		return
	}
	b.st = st
	b.mState.SetFloat64(float64(st))
	if st == Open {
		b.mOpen.Inc(1)
		b.nextProbe = b.now().Add(b.cfg.OpenFor)
	}
	b.log.Info("breaker state change", logging.String("state", st.String()))
}

// allow decides whether a call may proceed and moves Open -> HalfOpen once
// the cool-down elapsed. Only one probe runs while half-open.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.st {
	case Open:
		if b.now().Before(b.nextProbe) {
			return false
		}
		b.setStateLocked(HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.win[b.idx] = failed
	b.idx = (b.idx + 1) % len(b.win)
	if b.used < len(b.win) {
		b.used++
	}

	if b.st == HalfOpen {
		b.probing = false
		if failed {
			b.setStateLocked(Open)
		} else {
			b.resetLocked()
			b.setStateLocked(Closed)
		}
		return
	}

	if !failed {
		b.consecFail = 0
		return
	}
	b.consecFail++
	b.mFailure.Inc(1)
	if b.cfg.MaxConsecFailures > 0 && b.consecFail >= b.cfg.MaxConsecFailures {
		b.setStateLocked(Open)
		return
	}
	if b.cfg.FailureRate > 0 && b.used == len(b.win) {
		n := 0
		for _, f := range b.win {
			if f {
				n++
			}
		}
		if float64(n)/float64(b.used) >= b.cfg.FailureRate {
			b.setStateLocked(Open)
		}
	}
}

func (b *Breaker) resetLocked() {
	b.consecFail = 0
	b.used = 0
	b.idx = 0
	for i := range b.win {
		b.win[i] = false
	}
}

// Do runs op under the breaker. When the circuit is open op is skipped and
// ErrOpen is returned. Results travel out of op through closure variables.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrOpen
	}
	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	err := op(ctx)
	b.mLatency.Since(start)

	// a caller cancelling its own request says nothing about the remote side
	if errors.Is(err, context.Canceled) {
		b.mu.Lock()
		b.probing = false
		b.mu.Unlock()
		return err
	}
	b.record(err != nil)
	return err
}

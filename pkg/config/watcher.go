package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"skill-runner/pkg/metrics"
)

// Change describes a configuration update. Fields lists the reloadable
// settings that differ from the previous snapshot.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

const subBuf = 4

// Watcher polls the environment, and the .env-style file named by
// CONFIG_FILE when its mtime changes, and publishes changes to subscribers.
type Watcher struct {
	mu        sync.RWMutex
	cur       *Config
	closed    bool
	intv      time.Duration
	subs      []chan Change
	cancel    context.CancelFunc
	filePath  string
	lastMTime time.Time

	mReloads  *metrics.Counter
	mFailures *metrics.Counter
}

func NewWatcher(interval time.Duration, current *Config) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if current == nil {
		current = Load()
	}
	return &Watcher{
		cur:       current,
		intv:      interval,
		filePath:  strings.TrimSpace(os.Getenv("CONFIG_FILE")),
		mReloads:  metrics.Default.Counter("config_reload_total", "Applied configuration reloads"),
		mFailures: metrics.Default.Counter("config_reload_failures_total", "Rejected configuration reloads"),
	}
}

// Subscribe returns a channel receiving Change notifications until Close.
func (w *Watcher) Subscribe() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Change, subBuf)
	w.subs = append(w.subs, ch)
	return ch
}

// Close stops the watcher and closes subscriber channels.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	for _, s := range w.subs {
		close(s)
	}
	w.subs = nil
}

// Start begins polling in a goroutine. Calling it twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.cancel != nil || w.closed {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		t := time.NewTicker(w.intv)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				w.checkOnce()
			}
		}
	}()
}

func (w *Watcher) checkOnce() {
	if w.filePath != "" {
		if fi, err := os.Stat(w.filePath); err == nil && fi.ModTime().After(w.lastMTime) {
			if err := godotenv.Overload(w.filePath); err != nil {
				w.mFailures.Inc(1)
				w.notify(Change{Err: fmt.Errorf("reload %s: %w", w.filePath, err)})
				return
			}
			w.lastMTime = fi.ModTime()
		}
	}

	next := Load()
	if err := next.Validate(); err != nil {
		w.mFailures.Inc(1)
		w.notify(Change{New: next, Err: fmt.Errorf("invalid config: %w", err)})
		return
	}

	w.mu.Lock()
	prev := w.cur
	fields := diffKeys(prev, next)
	if len(fields) > 0 {
		w.cur = next
	}
	w.mu.Unlock()
	if len(fields) == 0 {
		return
	}
	w.mReloads.Inc(1)
	w.notify(Change{Old: prev, New: next, Fields: fields})
}

func (w *Watcher) notify(chg Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.subs {
		select {
		case s <- chg:
		default:
		}
	}
}

// diffKeys only looks at settings that can change without a restart.
func diffKeys(a, b *Config) []string {
	if a == nil || b == nil {
		return []string{"all"}
	}
	var f []string
	appendIf := func(cond bool, name string) {
		if cond {
			f = append(f, name)
		}
	}
	appendIf(a.WorkerCount != b.WorkerCount, "WorkerCount")
	appendIf(a.GeocodeRPS != b.GeocodeRPS, "GeocodeRPS")
	appendIf(a.LLMRPS != b.LLMRPS, "LLMRPS")
	appendIf(a.LogLevel != b.LogLevel, "LogLevel")
	appendIf(a.OpenAIModel != b.OpenAIModel, "OpenAIModel")
	return f
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"skill-runner/pkg/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      HealthStatus   `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth represents the overall system health
type SystemHealth struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Summary    HealthSummary              `json:"summary"`
}

type HealthSummary struct {
	TotalComponents int `json:"total_components"`
	HealthyCount    int `json:"healthy_count"`
	DegradedCount   int `json:"degraded_count"`
	UnhealthyCount  int `json:"unhealthy_count"`
	UnknownCount    int `json:"unknown_count"`
}

// HealthChecker defines the interface for health check functions
type HealthChecker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc struct {
	name string
	fn   func(ctx context.Context) ComponentHealth
}

func (hcf HealthCheckFunc) Check(ctx context.Context) ComponentHealth { return hcf.fn(ctx) }
func (hcf HealthCheckFunc) Name() string                            { return hcf.name }

func NewHealthCheckFunc(name string, fn func(ctx context.Context) ComponentHealth) HealthChecker {
	return HealthCheckFunc{name: name, fn: fn}
}

// HealthManager manages health checks for all system components
type HealthManager struct {
	checkers  map[string]HealthChecker
	results   map[string]ComponentHealth
	startTime time.Time
	version   string
	timeout   time.Duration
	logger    *logging.ComponentLogger
	mu        sync.RWMutex
}

type HealthConfig struct {
	Timeout time.Duration `json:"timeout"`
	Version string        `json:"version"`
}

func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Timeout: 5 * time.Second,
		Version: "1.0.0",
	}
}

func NewHealthManager(config HealthConfig, logger *logging.Logger) *HealthManager {
	if logger == nil {
		logger = logging.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHealthConfig().Timeout
	}
	return &HealthManager{
		checkers:  make(map[string]HealthChecker),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
		version:   config.Version,
		timeout:   config.Timeout,
		logger:    logger.WithComponent("health"),
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	name := checker.Name()
	hm.checkers[name] = checker
	hm.results[name] = ComponentHealth{Name: name, Status: HealthStatusUnknown}

	hm.logger.Info("Registered health checker", logging.String("checker", name))
}

// CheckAll runs every checker concurrently, each bounded by the manager
// timeout.
func (hm *HealthManager) CheckAll(ctx context.Context) SystemHealth {
	start := time.Now()

	hm.mu.RLock()
	checkers := make([]HealthChecker, 0, len(hm.checkers))
	for _, c := range hm.checkers {
		checkers = append(checkers, c)
	}
	hm.mu.RUnlock()

	results := make(chan ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, hm.timeout)
			defer cancel()
			results <- c.Check(checkCtx)
		}(checker)
	}
	wg.Wait()
	close(results)

	components := make(map[string]ComponentHealth, len(checkers))
	hm.mu.Lock()
	for result := range results {
		components[result.Name] = result
		hm.results[result.Name] = result
	}
	hm.mu.Unlock()

	systemStatus := determineSystemHealth(components)
	hm.logger.Debug("Completed health check",
		logging.String("status", string(systemStatus)),
		logging.Duration("duration", time.Since(start)),
		logging.Int("components", len(components)))

	return SystemHealth{
		Status:     systemStatus,
		Timestamp:  time.Now(),
		Version:    hm.version,
		Uptime:     time.Since(hm.startTime),
		Components: components,
		Summary:    calculateSummary(components),
	}
}

// GetCachedHealth returns the last known health status
func (hm *HealthManager) GetCachedHealth() SystemHealth {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(hm.results))
	for name, result := range hm.results {
		components[name] = result
	}
	return SystemHealth{
		Status:     determineSystemHealth(components),
		Timestamp:  time.Now(),
		Version:    hm.version,
		Uptime:     time.Since(hm.startTime),
		Components: components,
		Summary:    calculateSummary(components),
	}
}

func determineSystemHealth(components map[string]ComponentHealth) HealthStatus {
	if len(components) == 0 {
		return HealthStatusUnknown
	}
	s := calculateSummary(components)
	switch {
	case s.UnhealthyCount > 0:
		return HealthStatusUnhealthy
	case s.DegradedCount > 0:
		return HealthStatusDegraded
	case s.HealthyCount == len(components):
		return HealthStatusHealthy
	}
	return HealthStatusUnknown
}

func calculateSummary(components map[string]ComponentHealth) HealthSummary {
	summary := HealthSummary{TotalComponents: len(components)}
	for _, component := range components {
		switch component.Status {
		case HealthStatusHealthy:
			summary.HealthyCount++
		case HealthStatusDegraded:
			summary.DegradedCount++
		case HealthStatusUnhealthy:
			summary.UnhealthyCount++
		default:
			summary.UnknownCount++
		}
	}
	return summary
}

// Handler serves the full system health. Degraded still answers 200.
// ?cached=true skips running the checks.
func (hm *HealthManager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var h SystemHealth
		if r.URL.Query().Get("cached") == "true" {
			h = hm.GetCachedHealth()
		} else {
			h = hm.CheckAll(r.Context())
		}

		code := http.StatusOK
		if h.Status == HealthStatusUnhealthy || h.Status == HealthStatusUnknown {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(h)
	})
}

// LivenessHandler answers as long as the process serves HTTP.
func (hm *HealthManager) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    time.Since(hm.startTime).String(),
		})
	})
}

package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func component(name string) ComponentHealth {
	return ComponentHealth{Name: name, LastChecked: time.Now(), Metadata: map[string]any{}}
}

// CatalogSource is the part of the postal catalog the checker needs.
type CatalogSource interface {
	Len() int
}

// NewCatalogChecker reports healthy when the catalog holds records. An
// empty catalog only degrades the service: every postal code is then
// reported as missing.
func NewCatalogChecker(name string, cat CatalogSource) HealthChecker {
	return NewHealthCheckFunc(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		result := component(name)
		n := 0
		if cat != nil {
			n = cat.Len()
		}
		result.Metadata["records"] = n
		if n > 0 {
			result.Status = HealthStatusHealthy
			result.Message = fmt.Sprintf("%d catalog records loaded", n)
		} else {
			result.Status = HealthStatusDegraded
			result.Message = "Postal catalog is empty"
		}
		result.Duration = time.Since(start)
		return result
	})
}

// DatabaseHealthChecker checks database connectivity
type DatabaseHealthChecker struct {
	db   *sql.DB
	name string
}

func NewDatabaseHealthChecker(db *sql.DB, name string) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db, name: name}
}

func (dhc *DatabaseHealthChecker) Name() string { return dhc.name }

func (dhc *DatabaseHealthChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	result := component(dhc.name)

	if err := dhc.db.PingContext(ctx); err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = err.Error()
		result.Message = "Database connection failed"
		result.Duration = time.Since(start)
		return result
	}

	var one int
	if err := dhc.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		result.Status = HealthStatusDegraded
		result.Error = err.Error()
		result.Message = "Database query failed"
	} else {
		result.Status = HealthStatusHealthy
		result.Message = "Database connection successful"
	}

	stats := dhc.db.Stats()
	result.Metadata["open_connections"] = stats.OpenConnections
	result.Metadata["in_use"] = stats.InUse
	result.Metadata["idle"] = stats.Idle
	result.Metadata["wait_count"] = stats.WaitCount
	result.Metadata["wait_duration"] = stats.WaitDuration.String()

	result.Duration = time.Since(start)
	return result
}

// Pinger is anything with a context-aware ping, such as the geocode cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewCacheChecker pings an optional cache. A failure degrades rather than
// fails the service.
func NewCacheChecker(name string, p Pinger) HealthChecker {
	return NewHealthCheckFunc(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		result := component(name)
		if err := p.Ping(ctx); err != nil {
			result.Status = HealthStatusDegraded
			result.Error = err.Error()
			result.Message = "Cache unreachable"
		} else {
			result.Status = HealthStatusHealthy
			result.Message = "Cache reachable"
		}
		result.Duration = time.Since(start)
		return result
	})
}

// QueueStats is what the processor checker reads.
type QueueStats struct {
	Queued   int64
	Capacity int
	Workers  int
}

// NewProcessorChecker degrades when the batch queue is at least 90% full.
func NewProcessorChecker(name string, stats func() QueueStats) HealthChecker {
	return NewHealthCheckFunc(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		result := component(name)
		s := stats()
		result.Metadata["queued"] = s.Queued
		result.Metadata["capacity"] = s.Capacity
		result.Metadata["workers"] = s.Workers
		switch {
		case s.Workers <= 0:
			result.Status = HealthStatusUnhealthy
			result.Message = "No workers running"
		case s.Capacity > 0 && s.Queued*10 >= int64(s.Capacity)*9:
			result.Status = HealthStatusDegraded
			result.Message = "Batch queue nearly full"
		default:
			result.Status = HealthStatusHealthy
			result.Message = "Processor is running normally"
		}
		result.Duration = time.Since(start)
		return result
	})
}

package docreader

import (
	"sync"
	"time"
)

// CostTracker accumulates token usage and an estimated spend.
type CostTracker struct {
	mu               sync.RWMutex
	totalTokens      int
	totalRequests    int
	estimatedCostUSD float64
	startTime        time.Time
}

func NewCostTracker() *CostTracker { return &CostTracker{startTime: time.Now()} }

// AddUsage records one completion. Prices are gpt-4o-mini list prices per
// million tokens.
func (c *CostTracker) AddUsage(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTokens += promptTokens + completionTokens
	c.totalRequests++
	c.estimatedCostUSD += float64(promptTokens)*0.15/1_000_000 + float64(completionTokens)*0.60/1_000_000
}

// CostStats is a snapshot for the stats endpoint.
type CostStats struct {
	TotalTokens      int     `json:"total_tokens"`
	TotalRequests    int     `json:"total_requests"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

func (c *CostTracker) Stats() CostStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CostStats{
		TotalTokens:      c.totalTokens,
		TotalRequests:    c.totalRequests,
		EstimatedCostUSD: c.estimatedCostUSD,
		UptimeSeconds:    time.Since(c.startTime).Seconds(),
	}
}

package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// Environment/config may override where supported.

const (
	// Google Maps
	GeocodeOperationTimeout = 10 * time.Second
	GeocodeOpenFor          = 30 * time.Second

	// OpenAI document reader
	DocReaderOperationTimeout = 50 * time.Second
	DocReaderOpenFor          = 45 * time.Second

	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Health
	HealthTimeoutDefault = 5 * time.Second

	// Processing engine
	ProcessorRetryDelayDefault = 2 * time.Second
	ProcessorJobTimeoutDefault = 90 * time.Second
	ProcessorMaxRetries        = 2
	MaxWorkers                 = 100

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second

	// Events store SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second

	// HTTP
	SyncVerifyTimeout = 2 * time.Minute
	MaxRequestBody    = 20 << 20 // documents arrive base64 encoded
	MaxBatchSize      = 200
)

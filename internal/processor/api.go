package processor

import (
	"time"

	"skill-runner/pkg/config"
	"skill-runner/pkg/logging"
)

// Engine is the batch surface used by the HTTP layer.
type Engine interface {
	Start()
	Stop(timeout time.Duration) error
	Submit(reqs []Request) ([]string, error)
	Result(id string) (JobResult, bool)
	GetStats() ProcessingStats
	SetWorkerCount(n int)
}

var _ Engine = (*ProcessingEngine)(nil)

type rateSetter interface{ SetRate(rps float64) }

type modelSetter interface{ SetModel(model string) }

// Tunables are the collaborators a config reload can adjust. Nil fields
// are skipped.
type Tunables struct {
	Engine   Engine
	Geocoder rateSetter
	Reader   interface {
		rateSetter
		modelSetter
	}
}

// ApplyConfig pushes the reloadable settings named in fields onto t.
func ApplyConfig(t Tunables, cfg *config.Config, fields []string, log *logging.Logger) {
	for _, f := range fields {
		switch f {
		case "WorkerCount":
			if t.Engine != nil {
				t.Engine.SetWorkerCount(cfg.WorkerCount)
			}
		case "GeocodeRPS":
			if t.Geocoder != nil {
				t.Geocoder.SetRate(cfg.GeocodeRPS)
			}
		case "LLMRPS":
			if t.Reader != nil {
				t.Reader.SetRate(cfg.LLMRPS)
			}
		case "OpenAIModel":
			if t.Reader != nil {
				t.Reader.SetModel(cfg.OpenAIModel)
			}
		case "LogLevel":
			if log != nil {
				log.SetLevel(logging.ParseLevel(cfg.LogLevel))
			}
		}
	}
}

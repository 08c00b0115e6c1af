package processor

import (
	"testing"

	"skill-runner/pkg/config"
	"skill-runner/pkg/logging"
)

type fakeTunable struct {
	rate  float64
	model string
}

func (f *fakeTunable) SetRate(rps float64)    { f.rate = rps }
func (f *fakeTunable) SetModel(model string) { f.model = model }

func TestApplyConfig(t *testing.T) {
	eng := NewProcessingEngine(nil, ProcessingConfig{WorkerCount: 2}, logging.NewDiscard())
	geo, reader := &fakeTunable{}, &fakeTunable{}
	cfg := &config.Config{WorkerCount: 7, GeocodeRPS: 3, LLMRPS: 0.5, OpenAIModel: "gpt-4o"}

	ApplyConfig(Tunables{Engine: eng, Geocoder: geo, Reader: reader}, cfg,
		[]string{"WorkerCount", "GeocodeRPS", "OpenAIModel"}, logging.NewDiscard())

	if got := eng.GetStats().WorkerCount; got != 7 {
		t.Errorf("workers = %d, want 7", got)
	}
	if geo.rate != 3 {
		t.Errorf("geocode rate = %v, want 3", geo.rate)
	}
	if reader.rate != 0 {
		t.Errorf("reader rate changed without LLMRPS in fields: %v", reader.rate)
	}
	if reader.model != "gpt-4o" {
		t.Errorf("model = %q", reader.model)
	}

	// nil collaborators are skipped
	ApplyConfig(Tunables{}, cfg, []string{"WorkerCount", "LLMRPS", "LogLevel"}, nil)
}

package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"skill-runner/internal/docreader"
	"skill-runner/internal/models"
	"skill-runner/internal/processor"
	errs "skill-runner/pkg/errors"
	"skill-runner/pkg/logging"
)

func testConfig() processor.ProcessingConfig {
	return processor.ProcessingConfig{
		WorkerCount: 2,
		QueueSize:   10,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
		JobTimeout:  5 * time.Second,
		ResultTTL:   time.Minute,
	}
}

func waitFor(t *testing.T, e *processor.ProcessingEngine, id string) processor.JobResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := e.Result(id)
		if !ok {
			t.Fatalf("job %s unknown", id)
		}
		if r.Status == processor.JobDone || r.Status == processor.JobFailed {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return processor.JobResult{}
}

func TestEngineProcessesBatch(t *testing.T) {
	f := newFixture()
	e := processor.NewProcessingEngine(f.p, testConfig(), logging.NewDiscard())
	e.Start()
	defer e.Stop(time.Second)

	ids, err := e.Submit([]processor.Request{
		{Address: centro(centroAddress)},
		{Address: centro("Av. Constitución 100, Colonia Centro, CP 64000, Monterrey")},
	})
	if err != nil || len(ids) != 2 {
		t.Fatalf("Submit() = %v, %v", ids, err)
	}

	first, second := waitFor(t, e, ids[0]), waitFor(t, e, ids[1])
	if first.Status != processor.JobDone || first.State != models.DecisionApproved {
		t.Errorf("first = %+v", first)
	}
	if second.Status != processor.JobDone || second.State != models.DecisionNeedsReview {
		t.Errorf("second = %+v", second)
	}

	stored, err := f.repo.GetVerificationCtx(context.Background(), first.VerificationID)
	if err != nil {
		t.Fatalf("stored verification: %v", err)
	}
	if stored.Source != processor.SourceBatch {
		t.Errorf("source = %q, want %q", stored.Source, processor.SourceBatch)
	}

	s := e.GetStats()
	if s.TotalJobs != 2 || s.CompletedJobs != 2 || s.SuccessfulJobs != 2 || s.Approved != 1 || s.NeedsReview != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestEngineRetries(t *testing.T) {
	doc := &docreader.Document{Data: []byte{0xff, 0xd8}, MimeType: "image/jpeg"}
	tests := []struct {
		name        string
		errs        []error
		wantStatus  processor.JobStatus
		wantRetries int
		wantCalls   int
	}{
		{
			name:        "external failure recovers",
			errs:        []error{errs.NewExternal("test", "openai", "timeout", nil)},
			wantStatus:  processor.JobDone,
			wantRetries: 1,
			wantCalls:   2,
		},
		{
			name: "gives up after max retries",
			errs: []error{
				errs.NewExternal("test", "openai", "a", nil),
				errs.NewExternal("test", "openai", "b", nil),
				errs.NewExternal("test", "openai", "c", nil),
			},
			wantStatus:  processor.JobFailed,
			wantRetries: 2,
			wantCalls:   3,
		},
		{
			name:        "validation failure is final",
			errs:        []error{errs.NewValidation("test", "unreadable document", nil)},
			wantStatus:  processor.JobFailed,
			wantRetries: 0,
			wantCalls:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.reader.Errs = tt.errs
			f.reader.Resp = &docreader.Extraction{Address: *centro(centroAddress)}

			e := processor.NewProcessingEngine(f.p, testConfig(), logging.NewDiscard())
			e.Start()
			defer e.Stop(time.Second)

			ids, err := e.Submit([]processor.Request{{Document: doc}})
			if err != nil {
				t.Fatal(err)
			}
			r := waitFor(t, e, ids[0])
			if r.Status != tt.wantStatus || r.Retries != tt.wantRetries {
				t.Errorf("result = %+v", r)
			}
			if tt.wantStatus == processor.JobFailed && r.Error == "" {
				t.Error("failed job should carry an error")
			}
			f.reader.Mu.Lock()
			calls := f.reader.Calls
			f.reader.Mu.Unlock()
			if calls != tt.wantCalls {
				t.Errorf("reader calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestEngineQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 2
	e := processor.NewProcessingEngine(newFixture().p, cfg, logging.NewDiscard())
	// not started: nothing drains the queue

	reqs := []processor.Request{{Address: centro(centroAddress)}, {Address: centro(centroAddress)}, {Address: centro(centroAddress)}}
	ids, err := e.Submit(reqs)
	if !errors.Is(err, processor.ErrQueueFull) || len(ids) != 0 {
		t.Fatalf("oversized batch: ids=%v err=%v", ids, err)
	}
	if _, err := e.Submit(reqs[:2]); err != nil {
		t.Fatalf("fitting batch: %v", err)
	}
	if _, err := e.Submit(reqs[:1]); !errors.Is(err, processor.ErrQueueFull) {
		t.Errorf("full queue err = %v", err)
	}
	if got := e.GetStats().QueueSize; got != 2 {
		t.Errorf("queue size = %d, want 2", got)
	}
}

func TestEngineStopped(t *testing.T) {
	e := processor.NewProcessingEngine(newFixture().p, testConfig(), logging.NewDiscard())
	e.Start()
	if err := e.Stop(time.Second); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if _, err := e.Submit([]processor.Request{{Address: centro(centroAddress)}}); !errors.Is(err, processor.ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

func TestEngineSetWorkerCount(t *testing.T) {
	f := newFixture()
	e := processor.NewProcessingEngine(f.p, testConfig(), logging.NewDiscard())
	e.Start()
	defer e.Stop(time.Second)

	for _, n := range []int{5, 1, 3, 0} {
		e.SetWorkerCount(n)
		want := max(1, n)
		if got := e.GetStats().WorkerCount; got != want {
			t.Errorf("SetWorkerCount(%d): workers = %d, want %d", n, got, want)
		}
	}

	// the resized pool still drains work
	ids, err := e.Submit([]processor.Request{{Address: centro(centroAddress)}})
	if err != nil {
		t.Fatal(err)
	}
	if r := waitFor(t, e, ids[0]); r.Status != processor.JobDone {
		t.Errorf("result = %+v", r)
	}
}

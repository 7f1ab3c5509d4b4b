package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClient transitions each job from running to a terminal state after a
// fixed number of polls.
type fakeClient struct {
	mu          sync.Mutex
	pollsLeft   map[string]int
	finalStates map[string]State
	results     map[string]string
	statusCalls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pollsLeft:   make(map[string]int),
		finalStates: make(map[string]State),
		results:     make(map[string]string),
		statusCalls: make(map[string]int),
	}
}

func (f *fakeClient) addJob(id string, polls int, final State) {
	f.pollsLeft[id] = polls
	f.finalStates[id] = final
}

func (f *fakeClient) GetJobStatus(ctx context.Context, jobID string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls[jobID]++
	if f.pollsLeft[jobID] > 0 {
		f.pollsLeft[jobID]--
		return StateRunning, nil
	}
	state, ok := f.finalStates[jobID]
	if !ok {
		return "", fmt.Errorf("unknown job %s", jobID)
	}
	return state, nil
}

func (f *fakeClient) GetJobResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[jobID]; ok {
		return json.RawMessage(r), nil
	}
	return nil, fmt.Errorf("no result for job %s", jobID)
}

func TestMonitorSucceeds(t *testing.T) {
	fc := newFakeClient()
	fc.addJob("j1", 2, StateSucceeded)
	fc.results["j1"] = `{"rows": 5}`

	result, err := NewMonitor(fc, "j1", time.Millisecond, true).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != `{"rows": 5}` {
		t.Fatalf("got result %s", result)
	}
	if fc.statusCalls["j1"] != 3 {
		t.Fatalf("got %d polls, want 3", fc.statusCalls["j1"])
	}
}

func TestMonitorSkipsResultWhenNotWanted(t *testing.T) {
	fc := newFakeClient()
	fc.addJob("j1", 0, StateSucceeded)

	result, err := NewMonitor(fc, "j1", time.Millisecond, false).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("got result %s, want nil", result)
	}
}

func TestMonitorFailureCarriesDiagnostic(t *testing.T) {
	fc := newFakeClient()
	fc.addJob("j1", 1, StateFailed)
	fc.results["j1"] = `{"message": "table locked"}`

	_, err := NewMonitor(fc, "j1", time.Millisecond, false).Run(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	var fe *FailureError
	if !errors.As(err, &fe) {
		t.Fatalf("got %T, want *FailureError", err)
	}
	if fe.JobID != "j1" {
		t.Fatalf("got job id %s", fe.JobID)
	}
	if !strings.Contains(fe.Detail, "table locked") {
		t.Fatalf("got detail %q", fe.Detail)
	}
	// failed jobs are never polled again
	if fc.statusCalls["j1"] != 2 {
		t.Fatalf("got %d polls, want 2", fc.statusCalls["j1"])
	}
}

func TestMonitorRespectsContext(t *testing.T) {
	fc := newFakeClient()
	fc.addJob("j1", 1000, StateSucceeded)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewMonitor(fc, "j1", time.Hour, false).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestCoordinatorBatchesAndAggregatesFailures(t *testing.T) {
	fc := newFakeClient()
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("j%d", i)
		if i == 3 {
			fc.addJob(id, 0, StateFailed)
		} else {
			fc.addJob(id, 1, StateSucceeded)
		}
	}

	var submitted []string
	submissions := make([]SubmitFunc, 0, 5)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("j%d", i)
		submissions = append(submissions, func(ctx context.Context) (string, error) {
			submitted = append(submitted, id)
			return id, nil
		})
	}

	err := NewCoordinator(fc, 2, time.Millisecond, true).Run(context.Background(), submissions)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("got %T, want *AggregateError", err)
	}
	if len(agg.JobIDs) != 1 || agg.JobIDs[0] != "j3" {
		t.Fatalf("got failed ids %v, want [j3]", agg.JobIDs)
	}
	if !strings.Contains(err.Error(), "j3") {
		t.Fatalf("got error %q", err)
	}

	// every job submitted in order despite the failure
	if len(submitted) != 5 {
		t.Fatalf("got %d submissions, want 5", len(submitted))
	}
	for i, id := range submitted {
		if id != fmt.Sprintf("j%d", i+1) {
			t.Fatalf("submission order broken: %v", submitted)
		}
	}
	// every job monitored to a terminal state
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("j%d", i)
		if fc.statusCalls[id] == 0 {
			t.Fatalf("job %s was never monitored", id)
		}
	}
}

func TestCoordinatorSubmissionErrorIsFatal(t *testing.T) {
	fc := newFakeClient()
	fc.addJob("j1", 0, StateSucceeded)

	calls := 0
	submissions := []SubmitFunc{
		func(ctx context.Context) (string, error) {
			calls++
			return "j1", nil
		},
		func(ctx context.Context) (string, error) {
			calls++
			return "", fmt.Errorf("transport down")
		},
		func(ctx context.Context) (string, error) {
			calls++
			return "j3", nil
		},
	}

	err := NewCoordinator(fc, 3, time.Millisecond, false).Run(context.Background(), submissions)
	if err == nil || !strings.Contains(err.Error(), "transport down") {
		t.Fatalf("got %v, want fatal submission error", err)
	}
	if calls != 2 {
		t.Fatalf("got %d submissions, want 2 (stops at the failure)", calls)
	}
}

func TestCoordinatorDefaultsInterval(t *testing.T) {
	c := NewCoordinator(newFakeClient(), 0, 0, false)
	if c.interval != defaultPollInterval {
		t.Fatalf("got interval %v, want %v", c.interval, defaultPollInterval)
	}
	if c.batchSize != 1 {
		t.Fatalf("got batch size %d, want 1", c.batchSize)
	}

	c = NewCoordinator(newFakeClient(), 5, time.Second, false)
	if c.interval != time.Second {
		t.Fatalf("explicit interval must be kept, got %v", c.interval)
	}
}

func TestCoordinatorNoFailures(t *testing.T) {
	fc := newFakeClient()
	fc.addJob("j1", 0, StateSucceeded)
	fc.addJob("j2", 2, StateSucceeded)

	submissions := []SubmitFunc{
		func(ctx context.Context) (string, error) { return "j1", nil },
		func(ctx context.Context) (string, error) { return "j2", nil },
	}
	if err := NewCoordinator(fc, 500, time.Millisecond, false).Run(context.Background(), submissions); err != nil {
		t.Fatal(err)
	}
}

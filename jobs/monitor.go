package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dataops/ingestd/gologger"
)

var logger = gologger.NewLogger()

// Monitor polls one remote job to a terminal state. The poll loop has no
// internal deadline; callers needing one wrap the context.
type Monitor struct {
	client     Client
	jobID      string
	interval   time.Duration
	wantResult bool
}

func NewMonitor(client Client, jobID string, interval time.Duration, wantResult bool) *Monitor {
	return &Monitor{
		client:     client,
		jobID:      jobID,
		interval:   interval,
		wantResult: wantResult,
	}
}

// Run polls until the job succeeds or fails. On success the result payload
// is fetched only when requested. On failure the diagnostic is fetched and
// returned inside a *FailureError; the job is never resubmitted here.
func (m *Monitor) Run(ctx context.Context) (json.RawMessage, error) {
	for {
		state, err := m.client.GetJobStatus(ctx, m.jobID)
		if err != nil {
			return nil, fmt.Errorf("error in GetJobStatus for job %s: %w", m.jobID, err)
		}

		switch state {
		case StateRunning:
			logger.Info().Str("jobID", m.jobID).Msg("job is still running")
			select {
			case <-time.After(m.interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case StateSucceeded:
			logger.Info().Str("jobID", m.jobID).Msg("job succeeded")
			if !m.wantResult {
				return nil, nil
			}
			result, err := m.client.GetJobResult(ctx, m.jobID)
			if err != nil {
				return nil, fmt.Errorf("error in GetJobResult for job %s: %w", m.jobID, err)
			}
			return result, nil
		default:
			logger.Error().Str("jobID", m.jobID).Msg("job failed")
			return nil, m.failureError(ctx)
		}
	}
}

func (m *Monitor) failureError(ctx context.Context) error {
	detail := "no diagnostic available"
	if result, err := m.client.GetJobResult(ctx, m.jobID); err == nil && len(result) > 0 {
		detail = string(result)
	}
	return &FailureError{JobID: m.jobID, Detail: detail}
}

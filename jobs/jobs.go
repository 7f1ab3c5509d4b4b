package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type State string

const (
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

// Client is the narrow slice of the repository client the job machinery
// consumes. Transport retries live behind this interface, not here.
type Client interface {
	// GetJobStatus returns the tri-state signal for an asynchronous job.
	GetJobStatus(ctx context.Context, jobID string) (State, error)
	// GetJobResult returns the result payload after a job reaches a
	// terminal state, or the failure diagnostic for a failed job.
	GetJobResult(ctx context.Context, jobID string) (json.RawMessage, error)
}

// SubmitFunc submits one job and returns its id.
type SubmitFunc func(ctx context.Context) (string, error)

// FailureError is a terminal remote-job failure. It is never retried by
// the monitor; retries, if any, belong to the caller.
type FailureError struct {
	JobID  string
	Detail string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Detail)
}

// AggregateError reports every job that failed across a concurrently
// monitored set, raised once after all sibling jobs resolve.
type AggregateError struct {
	JobIDs []string
	Errors *multierror.Error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("the following job IDs failed: %s", strings.Join(e.JobIDs, ", "))
}

func (e *AggregateError) Unwrap() error {
	return e.Errors.ErrorOrNil()
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Coordinator submits and monitors many jobs in bounded outer batches.
// Submission order within a batch is preserved; batch N+1 never starts
// until every job in batch N has resolved.
type Coordinator struct {
	client    Client
	batchSize int
	interval  time.Duration
	verbose   bool
}

const defaultPollInterval = 90 * time.Second

func NewCoordinator(client Client, batchSize int, interval time.Duration, verbose bool) *Coordinator {
	if batchSize < 1 {
		batchSize = 1
	}
	// a zero interval would hot-poll the job endpoint
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Coordinator{
		client:    client,
		batchSize: batchSize,
		interval:  interval,
		verbose:   verbose,
	}
}

// Run processes the submissions in outer batches: submit every job in the
// batch sequentially, then monitor each to a terminal state. One job's
// failure is recorded without halting its siblings; after all batches an
// *AggregateError names every failed id. A submission transport error is
// fatal immediately.
func (c *Coordinator) Run(ctx context.Context, submissions []SubmitFunc) error {
	total := len(submissions)
	totalBatches := (total + c.batchSize - 1) / c.batchSize
	logger.Info().Int("jobs", total).Int("batchSize", c.batchSize).Msg("processing jobs in batches")

	var failedIDs []string
	var errs *multierror.Error
	var batchDurations []time.Duration

	for i := 0; i < total; i += c.batchSize {
		end := i + c.batchSize
		if end > total {
			end = total
		}
		batch := submissions[i:end]
		batchNum := i/c.batchSize + 1
		start := time.Now()

		logger.Info().Int("batch", batchNum).Int("totalBatches", totalBatches).Int("jobs", len(batch)).Msg("submitting jobs for batch")
		if len(batchDurations) > 0 {
			var sum time.Duration
			for _, d := range batchDurations {
				sum += d
			}
			avg := sum / time.Duration(len(batchDurations))
			remaining := avg * time.Duration(totalBatches-batchNum+1)
			// estimate only, never used for scheduling
			logger.Info().Str("estimatedRemaining", remaining.String()).Msg("batch time estimate")
		}

		jobIDs := make([]string, 0, len(batch))
		for _, submit := range batch {
			jobID, err := submit(ctx)
			if err != nil {
				return fmt.Errorf("error submitting job in batch %d: %w", batchNum, err)
			}
			if c.verbose {
				logger.Info().Str("jobID", jobID).Int("batch", batchNum).Msg("submitted job")
			}
			jobIDs = append(jobIDs, jobID)
		}

		logger.Info().Int("jobs", len(jobIDs)).Int("batch", batchNum).Msg("monitoring jobs in batch")
		for _, jobID := range jobIDs {
			_, err := NewMonitor(c.client, jobID, c.interval, false).Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Error().Str("jobID", jobID).Err(err).Msg("job failed")
				failedIDs = append(failedIDs, jobID)
				errs = multierror.Append(errs, err)
			}
		}

		batchDurations = append(batchDurations, time.Since(start))
		logger.Info().Int("batch", batchNum).Int("jobs", len(batch)).Msg("completed batch")
	}

	logger.Info().Int("succeeded", total-len(failedIDs)).Int("failed", len(failedIDs)).Msg("processed all jobs")

	if len(failedIDs) > 0 {
		return &AggregateError{JobIDs: failedIDs, Errors: errs}
	}
	return nil
}

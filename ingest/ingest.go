package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/jobs"
	"github.com/dataops/ingestd/reformat"
	"github.com/dataops/ingestd/repoclient"
	"github.com/dataops/ingestd/schema"
	"github.com/go-playground/validator/v10"
)

var logger = gologger.NewLogger()

var validate = validator.New()

type (
	// Submitter is what the orchestrator needs from the repository client.
	Submitter interface {
		jobs.Client
		SubmitIngestJob(ctx context.Context, datasetID string, req repoclient.IngestRequest) (string, error)
	}

	// RunRecorder receives run/batch history. Optional; a nil recorder
	// disables the ledger.
	RunRecorder interface {
		StartRun(ctx context.Context, datasetID, table, loadTag string, totalRows, totalBatches int) (string, error)
		RecordBatch(ctx context.Context, runID string, batchNum int, jobID string, rows int, status string) error
		FinishRun(ctx context.Context, runID, status string) error
	}

	// AuditFunc archives one submitted batch payload, keyed under the load
	// tag. Optional.
	AuditFunc func(ctx context.Context, key string, payload []byte) error

	// Config is the explicit, immutable configuration for one orchestrator.
	Config struct {
		DatasetID      string `validate:"required"`
		Table          string `validate:"required"`
		BatchSize      int    `validate:"gte=1"`
		BulkMode       bool
		UpdateStrategy string
		PollInterval   time.Duration
		// TestMode processes only the first batch then stops, for dry
		// validation of a load.
		TestMode bool
		// SkipReformat passes pre-formatted records through untouched.
		SkipReformat bool
		// LoadTag identifies the load so future ingests of the same files
		// can pick up where they left off. Defaults to "{dataset}.{table}".
		LoadTag string
		// FileIDs maps already-ingested cloud paths to repository file ids.
		FileIDs map[string]string
		// SchemaInfo enables per-row validation against declared types.
		SchemaInfo map[string]schema.ColumnSchema
	}

	// Orchestrator drives a whole record set through batched ingest jobs.
	Orchestrator struct {
		client   Submitter
		cfg      Config
		recorder RunRecorder
		audit    AuditFunc
	}

	Stats struct {
		TotalRows    int `json:"totalRows"`
		IngestedRows int `json:"ingestedRows"`
		DroppedRows  int `json:"droppedRows"`
		Batches      int `json:"batches"`
	}
)

const (
	defaultBatchSize      = 500
	defaultPollInterval   = 90 * time.Second
	defaultUpdateStrategy = "replace"
)

func New(client Submitter, cfg Config) (*Orchestrator, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.UpdateStrategy == "" {
		cfg.UpdateStrategy = defaultUpdateStrategy
	}
	if cfg.LoadTag == "" {
		cfg.LoadTag = fmt.Sprintf("%s.%s", cfg.DatasetID, cfg.Table)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("error validating ingest config: %w", err)
	}
	return &Orchestrator{
		client: client,
		cfg:    cfg,
	}, nil
}

// WithRecorder attaches an ingest-ledger recorder.
func (o *Orchestrator) WithRecorder(r RunRecorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithAudit archives every submitted batch payload through fn.
func (o *Orchestrator) WithAudit(fn AuditFunc) *Orchestrator {
	o.audit = fn
	return o
}

// Run normalizes, partitions, reformats, and pushes the records through
// consecutive ingest jobs. A job failure aborts the remaining batches;
// batches already committed stay committed.
func (o *Orchestrator) Run(ctx context.Context, records []schema.Record) (Stats, error) {
	records = NormalizeShapes(records)

	stats := Stats{TotalRows: len(records)}
	totalBatches := (len(records) + o.cfg.BatchSize - 1) / o.cfg.BatchSize
	logger.Info().
		Int("rows", len(records)).
		Int("batchSize", o.cfg.BatchSize).
		Int("batches", totalBatches).
		Str("table", o.cfg.Table).
		Str("datasetID", o.cfg.DatasetID).
		Msg("batching rows for ingest")

	runID := o.startRun(ctx, len(records), totalBatches)

	for i := 0; i < len(records); i += o.cfg.BatchSize {
		end := i + o.cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batchNum := i/o.cfg.BatchSize + 1
		batch := records[i:end]
		logger.Info().Int("batch", batchNum).Int("totalBatches", totalBatches).Msg("starting ingest batch")

		if !o.cfg.SkipReformat {
			reformatted := reformat.New(o.cfg.FileIDs, o.cfg.SchemaInfo).Run(batch)
			stats.DroppedRows += len(batch) - len(reformatted)
			batch = reformatted
		}
		if len(batch) == 0 {
			logger.Info().Int("batch", batchNum).Msg("no rows to ingest in this batch after reformatting")
			continue
		}

		jobID, err := o.ingestBatch(ctx, batchNum, batch)
		if err != nil {
			o.recordBatch(ctx, runID, batchNum, jobID, len(batch), "failed")
			o.finishRun(ctx, runID, "failed")
			return stats, fmt.Errorf("ingest batch %d of %d into table %s of dataset %s: %w",
				batchNum, totalBatches, o.cfg.Table, o.cfg.DatasetID, err)
		}

		o.recordBatch(ctx, runID, batchNum, jobID, len(batch), "succeeded")
		stats.IngestedRows += len(batch)
		stats.Batches++
		logger.Info().Int("batch", batchNum).Int("rows", len(batch)).Msg("completed batch ingest")

		if o.cfg.TestMode {
			logger.Info().Msg("first batch completed, stopping since test mode was used")
			break
		}
	}

	o.finishRun(ctx, runID, "succeeded")
	logger.Info().Interface("stats", stats).Msg("whole ingest completed")
	return stats, nil
}

// ingestBatch submits one ingest job and drives it to a terminal state.
func (o *Orchestrator) ingestBatch(ctx context.Context, batchNum int, batch []schema.Record) (string, error) {
	req := repoclient.NewIngestRequest(batch, o.cfg.Table, o.cfg.UpdateStrategy, o.cfg.LoadTag, o.cfg.BulkMode)

	if o.audit != nil {
		payload, err := json.Marshal(req)
		if err == nil {
			key := fmt.Sprintf("%s/batch-%d.json", o.cfg.LoadTag, batchNum)
			if err := o.audit(ctx, key, payload); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("error archiving batch payload")
			}
		}
	}

	jobID, err := o.client.SubmitIngestJob(ctx, o.cfg.DatasetID, req)
	if err != nil {
		return "", fmt.Errorf("error submitting ingest job: %w", err)
	}
	logger.Info().Str("jobID", jobID).Str("loadTag", o.cfg.LoadTag).Msg("submitted ingest job")

	if _, err := jobs.NewMonitor(o.client, jobID, o.cfg.PollInterval, false).Run(ctx); err != nil {
		return jobID, fmt.Errorf("error in ingest job %s: %w", jobID, err)
	}
	return jobID, nil
}

func (o *Orchestrator) startRun(ctx context.Context, rows, batches int) string {
	if o.recorder == nil {
		return ""
	}
	runID, err := o.recorder.StartRun(ctx, o.cfg.DatasetID, o.cfg.Table, o.cfg.LoadTag, rows, batches)
	if err != nil {
		logger.Warn().Err(err).Msg("error recording run start, continuing without ledger")
		return ""
	}
	return runID
}

func (o *Orchestrator) recordBatch(ctx context.Context, runID string, batchNum int, jobID string, rows int, status string) {
	if o.recorder == nil || runID == "" {
		return
	}
	if err := o.recorder.RecordBatch(ctx, runID, batchNum, jobID, rows, status); err != nil {
		logger.Warn().Err(err).Int("batch", batchNum).Msg("error recording batch in ledger")
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID, status string) {
	if o.recorder == nil || runID == "" {
		return
	}
	if err := o.recorder.FinishRun(ctx, runID, status); err != nil {
		logger.Warn().Err(err).Msg("error recording run completion in ledger")
	}
}

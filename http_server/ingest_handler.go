package http_server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dataops/ingestd/ingest"
	"github.com/dataops/ingestd/recordio"
	"github.com/dataops/ingestd/s3_helper"
	"github.com/dataops/ingestd/schema"
	"github.com/dataops/ingestd/utils"
	"github.com/rs/zerolog"
)

type (
	IngestReqBody struct {
		// Rows are inline records. RowsNDJSON and Source are alternatives:
		// newline-delimited JSON, or a local/cloud path to NDJSON, a JSON
		// array, or a parquet file.
		Rows       []schema.Record `json:"rows"`
		RowsNDJSON string          `json:"rowsNDJSON"`
		Source     string          `json:"source"`

		BatchSize       int    `json:"batchSize"`
		BulkMode        bool   `json:"bulkMode"`
		UpdateStrategy  string `json:"updateStrategy"`
		LoadTag         string `json:"loadTag"`
		PollIntervalSec int    `json:"pollIntervalSec"`
		// TestMode ingests only the first batch, for validating a load.
		TestMode bool `json:"testMode"`
		// UniqueIDField drops rows whose id already exists in the table.
		UniqueIDField string `json:"uniqueIDField"`
		// ResolveFileRefs looks up already-ingested files in the dataset and
		// substitutes their ids during reformatting.
		ResolveFileRefs bool `json:"resolveFileRefs"`
		// ValidateSchema fetches the table schema and validates every value
		// against its declared type.
		ValidateSchema bool `json:"validateSchema"`
	}
)

func (s *HTTPServer) IngestTable(c *CustomContext) error {
	datasetID := c.Param("dataset")
	table := c.Param("table")
	ctx := c.Request().Context()
	logger := zerolog.Ctx(ctx)

	var reqBody IngestReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	records, err := s.collectRecords(ctx, reqBody)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if len(records) == 0 {
		return c.String(http.StatusBadRequest, "no rows provided")
	}

	if reqBody.UniqueIDField != "" {
		records, err = ingest.FilterExisting(ctx, s.RepoClient, datasetID, table, reqBody.UniqueIDField, records)
		if err != nil {
			return c.InternalError(err, "error filtering existing rows")
		}
		if len(records) == 0 {
			return c.JSON(http.StatusOK, ingest.Stats{})
		}
	}

	cfg := ingest.Config{
		DatasetID:      datasetID,
		Table:          table,
		BatchSize:      reqBody.BatchSize,
		BulkMode:       reqBody.BulkMode,
		UpdateStrategy: reqBody.UpdateStrategy,
		PollInterval:   time.Duration(reqBody.PollIntervalSec) * time.Second,
		TestMode:       reqBody.TestMode,
		LoadTag:        reqBody.LoadTag,
	}

	if reqBody.ResolveFileRefs {
		fileIDs, err := s.RepoClient.ExistingFileIDs(ctx, datasetID, 0)
		if err != nil {
			return c.InternalError(err, "error listing existing dataset files")
		}
		cfg.FileIDs = fileIDs
	}
	if reqBody.ValidateSchema {
		ts, err := s.RepoClient.GetTableSchema(ctx, datasetID, table)
		if err != nil {
			return c.InternalError(err, "error fetching table schema")
		}
		cfg.SchemaInfo = ts.Info()
	}

	orch, err := ingest.New(s.RepoClient, cfg)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if s.Ledger != nil {
		orch.WithRecorder(s.Ledger)
	}
	if utils.S3_BUCKET_NAME != "" {
		orch.WithAudit(archiveBatch)
	}

	stats, err := orch.Run(ctx, records)
	if err != nil {
		logger.Error().Err(err).Interface("stats", stats).Msg("ingest failed")
		return c.JSON(http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"stats": stats,
		})
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *HTTPServer) collectRecords(ctx context.Context, reqBody IngestReqBody) ([]schema.Record, error) {
	switch {
	case len(reqBody.Rows) > 0:
		return reqBody.Rows, nil
	case reqBody.RowsNDJSON != "":
		return recordio.ParseNDJSON(reqBody.RowsNDJSON)
	case reqBody.Source != "":
		return recordio.LoadSource(ctx, reqBody.Source)
	default:
		return nil, fmt.Errorf("one of rows, rowsNDJSON, or source must be provided")
	}
}

// archiveBatch stores a copy of the submitted payload so failed loads can
// be replayed.
func archiveBatch(ctx context.Context, key string, payload []byte) error {
	_, err := s3_helper.WriteBytesToBucket(ctx, utils.S3_BUCKET_NAME, "ingest-audit/"+key, bytes.NewReader(payload), utils.Ptr("application/json"))
	return err
}

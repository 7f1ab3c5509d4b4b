package http_server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dataops/ingestd/jobs"
	"github.com/dataops/ingestd/utils"
)

type (
	SoftDeleteReqBody struct {
		// RowIDs are repository row ids to delete. WholeTable deletes every
		// row in the table instead.
		RowIDs     []string `json:"rowIDs"`
		WholeTable bool     `json:"wholeTable"`

		// ChunkSize is rows per delete job, BatchSize jobs monitored at once.
		ChunkSize       int `json:"chunkSize"`
		BatchSize       int `json:"batchSize"`
		PollIntervalSec int `json:"pollIntervalSec"`
	}

	SoftDeleteRes struct {
		DeletedRows int `json:"deletedRows"`
		Jobs        int `json:"jobs"`
	}
)

func (s *HTTPServer) SoftDeleteRows(c *CustomContext) error {
	datasetID := c.Param("dataset")
	table := c.Param("table")
	ctx := c.Request().Context()

	var reqBody SoftDeleteReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if len(reqBody.RowIDs) > 0 && reqBody.WholeTable {
		return c.String(http.StatusBadRequest, "rowIDs and wholeTable are mutually exclusive")
	}

	rowIDs := reqBody.RowIDs
	if len(rowIDs) == 0 {
		if !reqBody.WholeTable {
			return c.String(http.StatusBadRequest, "one of rowIDs or wholeTable must be provided")
		}
		var err error
		rowIDs, err = s.RepoClient.RowIDs(ctx, datasetID, table, 0)
		if err != nil {
			return c.InternalError(err, "error listing row ids for table")
		}
	}
	if len(rowIDs) == 0 {
		return c.JSON(http.StatusOK, SoftDeleteRes{})
	}

	chunkSize := reqBody.ChunkSize
	if chunkSize < 1 {
		chunkSize = 1000
	}
	chunks := utils.Chunk(rowIDs, chunkSize)
	submissions := make([]jobs.SubmitFunc, 0, len(chunks))
	for _, chunk := range chunks {
		chunk := chunk
		submissions = append(submissions, func(ctx context.Context) (string, error) {
			return s.RepoClient.SubmitSoftDelete(ctx, datasetID, table, chunk)
		})
	}

	interval := time.Duration(reqBody.PollIntervalSec) * time.Second
	if err := jobs.NewCoordinator(s.RepoClient, reqBody.BatchSize, interval, false).Run(ctx, submissions); err != nil {
		var agg *jobs.AggregateError
		if errors.As(err, &agg) {
			return c.JSON(http.StatusBadGateway, map[string]any{
				"error":        agg.Error(),
				"failedJobIDs": agg.JobIDs,
			})
		}
		return c.InternalError(err, "error running soft delete jobs")
	}

	return c.JSON(http.StatusOK, SoftDeleteRes{
		DeletedRows: len(rowIDs),
		Jobs:        len(chunks),
	})
}

package http_server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dataops/ingestd/fileref"
	"github.com/dataops/ingestd/jobs"
	"github.com/dataops/ingestd/utils"
)

type (
	BulkFileReqBody struct {
		ProfileID string `json:"profileId" validate:"required"`
		// SourcePaths are cloud object paths to pull into the dataset.
		SourcePaths []string `json:"sourcePaths" validate:"required,min=1"`
		MimeType    string   `json:"mimeType"`
		LoadTag     string   `json:"loadTag"`

		// ChunkSize is files per job, BatchSize jobs monitored at once.
		ChunkSize       int `json:"chunkSize"`
		BatchSize       int `json:"batchSize"`
		PollIntervalSec int `json:"pollIntervalSec"`
	}

	BulkFileRes struct {
		Files   int    `json:"files"`
		Jobs    int    `json:"jobs"`
		LoadTag string `json:"loadTag"`
	}
)

func (s *HTTPServer) BulkFileIngest(c *CustomContext) error {
	datasetID := c.Param("dataset")
	ctx := c.Request().Context()

	var reqBody BulkFileReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	files := make([]fileref.FileReference, 0, len(reqBody.SourcePaths))
	for _, path := range reqBody.SourcePaths {
		if !fileref.IsCloudPath(path) {
			return c.String(http.StatusBadRequest, "not a cloud object path: "+path)
		}
		files = append(files, fileref.NewWithDetails(path, "", reqBody.MimeType))
	}

	loadTag := reqBody.LoadTag
	if loadTag == "" {
		loadTag = utils.GenLoadTag(datasetID + ".files")
	}

	chunkSize := reqBody.ChunkSize
	if chunkSize < 1 {
		chunkSize = 500
	}
	chunks := utils.Chunk(files, chunkSize)
	submissions := make([]jobs.SubmitFunc, 0, len(chunks))
	for _, chunk := range chunks {
		chunk := chunk
		submissions = append(submissions, func(ctx context.Context) (string, error) {
			return s.RepoClient.SubmitBulkFileIngest(ctx, datasetID, reqBody.ProfileID, loadTag, chunk)
		})
	}

	interval := time.Duration(reqBody.PollIntervalSec) * time.Second
	if err := jobs.NewCoordinator(s.RepoClient, reqBody.BatchSize, interval, false).Run(ctx, submissions); err != nil {
		var agg *jobs.AggregateError
		if errors.As(err, &agg) {
			return c.JSON(http.StatusBadGateway, map[string]any{
				"error":        agg.Error(),
				"failedJobIDs": agg.JobIDs,
				"loadTag":      loadTag,
			})
		}
		return c.InternalError(err, "error running bulk file ingest jobs")
	}

	return c.JSON(http.StatusOK, BulkFileRes{
		Files:   len(files),
		Jobs:    len(chunks),
		LoadTag: loadTag,
	})
}

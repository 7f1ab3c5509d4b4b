package repoclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dataops/ingestd/fileref"
	"github.com/dataops/ingestd/jobs"
	"github.com/dataops/ingestd/schema"
)

type (
	// IngestRequest is the wire payload for a table ingest job. The
	// repository expects booleans as strings here.
	IngestRequest struct {
		Format               string          `json:"format"`
		Records              []schema.Record `json:"records"`
		Table                string          `json:"table"`
		ResolveExistingFiles string          `json:"resolve_existing_files"`
		UpdateStrategy       string          `json:"updateStrategy"`
		LoadTag              string          `json:"load_tag"`
		BulkMode             string          `json:"bulkMode"`
	}

	jobResponse struct {
		ID string `json:"id"`
	}

	jobStatusResponse struct {
		JobStatus string `json:"job_status"`
	}
)

func NewIngestRequest(records []schema.Record, table, updateStrategy, loadTag string, bulkMode bool) IngestRequest {
	bulk := "false"
	if bulkMode {
		bulk = "true"
	}
	return IngestRequest{
		Format:               "array",
		Records:              records,
		Table:                table,
		ResolveExistingFiles: "true",
		UpdateStrategy:       updateStrategy,
		LoadTag:              loadTag,
		BulkMode:             bulk,
	}
}

// SubmitIngestJob starts an asynchronous table ingest job and returns its id.
func (c *Client) SubmitIngestJob(ctx context.Context, datasetID string, req IngestRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal of ingest request: %w", err)
	}
	return c.submitJob(ctx, fmt.Sprintf("/datasets/%s/ingest", datasetID), body)
}

// SubmitBulkFileIngest starts a bulk file-ingest job for the given file
// references and returns its id.
func (c *Client) SubmitBulkFileIngest(ctx context.Context, datasetID, profileID, loadTag string, files []fileref.FileReference) (string, error) {
	payload := map[string]any{
		"profileId":          profileID,
		"loadTag":            loadTag,
		"maxFailedFileLoads": 0,
		"loadArray":          files,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal of bulk file ingest request: %w", err)
	}
	return c.submitJob(ctx, fmt.Sprintf("/datasets/%s/files/bulk/array", datasetID), body)
}

// SubmitSoftDelete starts a soft-delete job for the given row ids and
// returns its id.
func (c *Client) SubmitSoftDelete(ctx context.Context, datasetID, table string, rowIDs []string) (string, error) {
	payload := map[string]any{
		"deleteType": "soft",
		"specType":   "jsonArray",
		"tables": []map[string]any{
			{
				"tableName": table,
				"jsonArraySpec": map[string]any{
					"rowIds": rowIDs,
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal of soft delete request: %w", err)
	}
	return c.submitJob(ctx, fmt.Sprintf("/datasets/%s/deletes", datasetID), body)
}

func (c *Client) submitJob(ctx context.Context, path string, body []byte) (string, error) {
	respBody, _, err := c.do(ctx, requestOpts{
		method:      http.MethodPost,
		path:        path,
		body:        body,
		contentType: applicationJSON,
	})
	if err != nil {
		return "", fmt.Errorf("error submitting job to %s: %w", path, err)
	}
	var resp jobResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("error in json.Unmarshal of job response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("job submission to %s returned no job id", path)
	}
	return resp.ID, nil
}

// GetJobStatus maps the job endpoint's response to the tri-state signal:
// 202 means still running, 200 carries the terminal status, and any
// unexpected code is treated as a failure signal.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (jobs.State, error) {
	respBody, status, err := c.do(ctx, requestOpts{
		method:      http.MethodGet,
		path:        "/jobs/" + jobID,
		acceptCodes: []int{http.StatusAccepted},
	})
	if err != nil {
		if status >= 400 && status < 500 {
			return jobs.StateFailed, nil
		}
		return "", fmt.Errorf("error getting status for job %s: %w", jobID, err)
	}
	if status == http.StatusAccepted {
		return jobs.StateRunning, nil
	}
	var resp jobStatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("error in json.Unmarshal of job status: %w", err)
	}
	if resp.JobStatus == "succeeded" {
		return jobs.StateSucceeded, nil
	}
	return jobs.StateFailed, nil
}

// GetJobResult fetches the result payload of a terminal job. For failed
// jobs the body is the failure diagnostic, so every status is accepted.
func (c *Client) GetJobResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	respBody, _, err := c.do(ctx, requestOpts{
		method:    http.MethodGet,
		path:      fmt.Sprintf("/jobs/%s/result", jobID),
		acceptAny: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error getting result for job %s: %w", jobID, err)
	}
	return respBody, nil
}

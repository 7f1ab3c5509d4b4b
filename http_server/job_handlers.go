package http_server

import (
	"encoding/json"
	"net/http"

	"github.com/dataops/ingestd/jobs"
)

type JobStatusRes struct {
	ID     string          `json:"id"`
	Status jobs.State      `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (s *HTTPServer) GetJob(c *CustomContext) error {
	jobID := c.Param("id")

	state, err := s.RepoClient.GetJobStatus(c.Request().Context(), jobID)
	if err != nil {
		return c.InternalError(err, "error getting job status")
	}

	res := JobStatusRes{ID: jobID, Status: state}
	if state != jobs.StateRunning {
		// terminal jobs carry a result or failure diagnostic
		result, err := s.RepoClient.GetJobResult(c.Request().Context(), jobID)
		if err == nil {
			res.Result = result
		}
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) GetRun(c *CustomContext) error {
	if s.Ledger == nil {
		return c.String(http.StatusServiceUnavailable, "ingest ledger not configured")
	}

	run, batches, err := s.Ledger.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.InternalError(err, "error getting ingest run")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run":     run,
		"batches": batches,
	})
}

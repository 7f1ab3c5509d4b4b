package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dataops/ingestd/jobs"
	"github.com/dataops/ingestd/repoclient"
	"github.com/dataops/ingestd/schema"
)

// fakeSubmitter accepts every ingest job and reports it succeeded on the
// first poll.
type fakeSubmitter struct {
	mu       sync.Mutex
	requests []repoclient.IngestRequest
	failJob  string
	nextID   int
}

func (f *fakeSubmitter) SubmitIngestJob(ctx context.Context, datasetID string, req repoclient.IngestRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.nextID++
	return fmt.Sprintf("job-%d", f.nextID), nil
}

func (f *fakeSubmitter) GetJobStatus(ctx context.Context, jobID string) (jobs.State, error) {
	if jobID == f.failJob {
		return jobs.StateFailed, nil
	}
	return jobs.StateSucceeded, nil
}

func (f *fakeSubmitter) GetJobResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	return json.RawMessage(`{"message": "boom"}`), nil
}

func makeRecords(n int) []schema.Record {
	records := make([]schema.Record, n)
	for i := range records {
		records[i] = schema.Record{"id": fmt.Sprintf("r%d", i), "n": float64(i)}
	}
	return records
}

func TestRunBatches(t *testing.T) {
	fs := &fakeSubmitter{}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "samples",
		BatchSize:    4,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := orch.Run(context.Background(), makeRecords(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.requests) != 3 {
		t.Fatalf("got %d job submissions, want 3", len(fs.requests))
	}
	if stats.Batches != 3 || stats.IngestedRows != 10 || stats.TotalRows != 10 {
		t.Fatalf("got stats %+v", stats)
	}

	// batch sizes 4, 4, 2
	wantRows := []int{4, 4, 2}
	for i, req := range fs.requests {
		if len(req.Records) != wantRows[i] {
			t.Fatalf("batch %d: got %d rows, want %d", i+1, len(req.Records), wantRows[i])
		}
		if req.Table != "samples" {
			t.Fatalf("got table %s", req.Table)
		}
		if req.LoadTag != "ds1.samples" {
			t.Fatalf("got load tag %s, want the dataset.table default", req.LoadTag)
		}
		if req.UpdateStrategy != "replace" {
			t.Fatalf("got update strategy %s, want replace default", req.UpdateStrategy)
		}
		if req.BulkMode != "false" {
			t.Fatalf("bulk mode must serialize as the string false, got %q", req.BulkMode)
		}
	}
}

func TestRunTestModeStopsAfterFirstBatch(t *testing.T) {
	fs := &fakeSubmitter{}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "t",
		BatchSize:    3,
		PollInterval: time.Millisecond,
		TestMode:     true,
	})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := orch.Run(context.Background(), makeRecords(9))
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.requests) != 1 {
		t.Fatalf("got %d submissions, want 1 in test mode", len(fs.requests))
	}
	if stats.IngestedRows != 3 {
		t.Fatalf("got %d ingested rows, want 3", stats.IngestedRows)
	}
}

func TestRunFailedJobAbortsRemainingBatches(t *testing.T) {
	fs := &fakeSubmitter{failJob: "job-2"}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "t",
		BatchSize:    2,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := orch.Run(context.Background(), makeRecords(6))
	if err == nil {
		t.Fatal("expected error from failed job")
	}
	if len(fs.requests) != 2 {
		t.Fatalf("got %d submissions, want 2 (third batch never submitted)", len(fs.requests))
	}
	// the first batch stays committed
	if stats.IngestedRows != 2 || stats.Batches != 1 {
		t.Fatalf("got stats %+v", stats)
	}
}

func TestRunReformatsRecords(t *testing.T) {
	fs := &fakeSubmitter{}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "t",
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	records := []schema.Record{
		{"id": "a", "empty": "", "path": "gs://bucket/x.cram"},
	}
	if _, err := orch.Run(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	sent := fs.requests[0].Records[0]
	if _, ok := sent["empty"]; ok {
		t.Fatal("empty string must be dropped by reformatting")
	}
	if _, ok := sent["last_modified_date"]; !ok {
		t.Fatal("reformatting must stamp last_modified_date")
	}
}

func TestRunSchemaValidationCountsDroppedRows(t *testing.T) {
	fs := &fakeSubmitter{}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "t",
		PollInterval: time.Millisecond,
		SchemaInfo: map[string]schema.ColumnSchema{
			"n": {Name: "n", Datatype: schema.TypeInt64},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	records := []schema.Record{
		{"id": "a", "n": float64(1)},
		{"id": "b", "n": "junk"},
	}
	stats, err := orch.Run(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DroppedRows != 1 || stats.IngestedRows != 1 {
		t.Fatalf("got stats %+v", stats)
	}
}

func TestRunSkipReformatPassesRecordsThrough(t *testing.T) {
	fs := &fakeSubmitter{}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "t",
		PollInterval: time.Millisecond,
		SkipReformat: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	records := []schema.Record{
		{"id": "a", "empty": "", "path": "gs://bucket/x.cram"},
	}
	stats, err := orch.Run(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	sent := fs.requests[0].Records[0]
	if sent["empty"] != "" {
		t.Fatal("pre-formatted records must pass through untouched")
	}
	if sent["path"] != "gs://bucket/x.cram" {
		t.Fatalf("got %v, cloud paths must not be resolved when reformatting is skipped", sent["path"])
	}
	if _, ok := sent["last_modified_date"]; ok {
		t.Fatal("no timestamp stamping when reformatting is skipped")
	}
	if stats.DroppedRows != 0 {
		t.Fatalf("got %d dropped rows, want 0", stats.DroppedRows)
	}
}

func TestRunSkipsBatchWithNoValidRows(t *testing.T) {
	fs := &fakeSubmitter{}
	orch, err := New(fs, Config{
		DatasetID:    "ds1",
		Table:        "t",
		BatchSize:    2,
		PollInterval: time.Millisecond,
		SchemaInfo: map[string]schema.ColumnSchema{
			"n": {Name: "n", Datatype: schema.TypeInt64},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// first batch is entirely invalid, second batch is clean
	records := []schema.Record{
		{"id": "a", "n": "junk"},
		{"id": "b", "n": "more junk"},
		{"id": "c", "n": float64(1)},
		{"id": "d", "n": float64(2)},
	}
	stats, err := orch.Run(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if len(fs.requests) != 1 {
		t.Fatalf("got %d submissions, want 1 (all-invalid batch must not submit a job)", len(fs.requests))
	}
	if len(fs.requests[0].Records) != 2 || fs.requests[0].Records[0]["id"] != "c" {
		t.Fatalf("got %v, want the second batch", fs.requests[0].Records)
	}
	if stats.DroppedRows != 2 || stats.IngestedRows != 2 || stats.Batches != 1 {
		t.Fatalf("got stats %+v", stats)
	}
}

func TestNewRejectsMissingConfig(t *testing.T) {
	if _, err := New(&fakeSubmitter{}, Config{Table: "t"}); err == nil {
		t.Fatal("missing dataset id must fail validation")
	}
	if _, err := New(&fakeSubmitter{}, Config{DatasetID: "ds"}); err == nil {
		t.Fatal("missing table must fail validation")
	}
}

func TestNormalizeShapes(t *testing.T) {
	records := []schema.Record{
		{"a": "x", "b": float64(1)},
		{"a": []any{"y", "z"}, "b": float64(2)},
		{"a": nil},
	}
	out := NormalizeShapes(records)

	list, ok := out[0]["a"].([]any)
	if !ok || len(list) != 1 || list[0] != "x" {
		t.Fatalf("scalar must be promoted to a one-element list, got %v", out[0]["a"])
	}
	if l, ok := out[1]["a"].([]any); !ok || len(l) != 2 {
		t.Fatalf("existing list must pass through, got %v", out[1]["a"])
	}
	if out[2]["a"] != nil {
		t.Fatalf("nil must stay nil, got %v", out[2]["a"])
	}
	// homogeneous columns untouched
	if _, ok := out[0]["b"].([]any); ok {
		t.Fatal("homogeneous scalar column must not be promoted")
	}
	// input not mutated
	if _, ok := records[0]["a"].(string); !ok {
		t.Fatal("input records must not be mutated")
	}
}

type fakeLister struct {
	existing []string
}

func (f *fakeLister) ColumnValues(ctx context.Context, datasetID, table, column string, limit int) ([]string, error) {
	return f.existing, nil
}

func TestFilterExisting(t *testing.T) {
	lister := &fakeLister{existing: []string{"a", "c"}}
	records := []schema.Record{
		{"id": "a"},
		{"id": "b"},
		{"id": "c"},
		{"id": "d"},
		{"other": "x"},
	}
	out, err := FilterExisting(context.Background(), lister, "ds", "t", "id", records)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d records, want 3", len(out))
	}
	if out[0]["id"] != "b" || out[1]["id"] != "d" {
		t.Fatalf("got %v", out)
	}
	// records without the id field pass through
	if out[2]["other"] != "x" {
		t.Fatalf("got %v", out[2])
	}
}

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/utils"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var logger = gologger.NewLogger()

type (
	// Ledger records ingest runs and their batches in CRDB so reruns and
	// failures can be inspected after the fact.
	Ledger struct {
		pool *pgxpool.Pool
	}

	Run struct {
		ID           string
		DatasetID    string
		TableName    string
		LoadTag      string
		TotalRows    int64
		TotalBatches int64
		Status       string
		CreatedAt    time.Time
		FinishedAt   *time.Time
	}

	Batch struct {
		RunID     string
		BatchNum  int64
		JobID     string
		Rows      int64
		Status    string
		CreatedAt time.Time
	}
)

func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) StartRun(ctx context.Context, datasetID, table, loadTag string, totalRows, totalBatches int) (string, error) {
	runID := utils.GenKSortedID("run_")
	err := utils.ReliableExec(ctx, l.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO ingest_runs (id, dataset_id, table_name, load_tag, total_rows, total_batches, status) VALUES ($1, $2, $3, $4, $5, $6, 'running')`,
			runID, datasetID, table, loadTag, totalRows, totalBatches)
		if err != nil {
			return fmt.Errorf("error inserting ingest run: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	logger.Debug().Str("runID", runID).Str("loadTag", loadTag).Msg("recorded ingest run start")
	return runID, nil
}

func (l *Ledger) RecordBatch(ctx context.Context, runID string, batchNum int, jobID string, rows int, status string) error {
	return utils.ReliableExec(ctx, l.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO ingest_batches (run_id, batch_num, job_id, rows, status) VALUES ($1, $2, $3, $4, $5)`,
			runID, batchNum, jobID, rows, status)
		if err != nil {
			return fmt.Errorf("error inserting ingest batch: %w", err)
		}
		return nil
	})
}

func (l *Ledger) FinishRun(ctx context.Context, runID, status string) error {
	return utils.ReliableExec(ctx, l.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `UPDATE ingest_runs SET status = $2, finished_at = now() WHERE id = $1`,
			runID, status)
		if err != nil {
			return fmt.Errorf("error updating ingest run: %w", err)
		}
		return nil
	})
}

// GetRun fetches one run and its batches in a single transaction.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*Run, []Batch, error) {
	var (
		run     Run
		batches []Batch
	)
	err := utils.ReliableExecInTx(ctx, l.pool, time.Second*10, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id, dataset_id, table_name, load_tag, total_rows, total_batches, status, created_at, finished_at FROM ingest_runs WHERE id = $1`, runID).
			Scan(&run.ID, &run.DatasetID, &run.TableName, &run.LoadTag, &run.TotalRows, &run.TotalBatches, &run.Status, &run.CreatedAt, &run.FinishedAt)
		if err != nil {
			return fmt.Errorf("error selecting ingest run: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT run_id, batch_num, job_id, rows, status, created_at FROM ingest_batches WHERE run_id = $1 ORDER BY batch_num`, runID)
		if err != nil {
			return fmt.Errorf("error selecting ingest batches: %w", err)
		}
		defer rows.Close()
		batches = batches[:0]
		for rows.Next() {
			var b Batch
			if err := rows.Scan(&b.RunID, &b.BatchNum, &b.JobID, &b.Rows, &b.Status, &b.CreatedAt); err != nil {
				return fmt.Errorf("error scanning ingest batch: %w", err)
			}
			batches = append(batches, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return &run, batches, nil
}

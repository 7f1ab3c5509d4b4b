package ingest

import (
	"context"
	"fmt"

	"github.com/dataops/ingestd/schema"
	"github.com/dataops/ingestd/utils"
)

// RowLister is the slice of the repository client used to look up values
// already present in the target table.
type RowLister interface {
	ColumnValues(ctx context.Context, datasetID, table, column string, limit int) ([]string, error)
}

// FilterExisting drops records whose unique id already exists in the
// target table, so re-running a load only ingests what is missing.
func FilterExisting(ctx context.Context, lister RowLister, datasetID, table, uniqueIDField string, records []schema.Record) ([]schema.Record, error) {
	logger.Info().
		Str("field", uniqueIDField).
		Str("table", table).
		Str("datasetID", datasetID).
		Msg("fetching existing ids from target table")

	existing, err := lister.ColumnValues(ctx, datasetID, table, uniqueIDField, 1000)
	if err != nil {
		return nil, fmt.Errorf("error fetching existing ids for %s: %w", table, err)
	}

	filtered := make([]schema.Record, 0, len(records))
	for _, rec := range records {
		v, ok := rec[uniqueIDField]
		if !ok || v == nil {
			filtered = append(filtered, rec)
			continue
		}
		if !utils.ContainsString(existing, fmt.Sprint(v)) {
			filtered = append(filtered, rec)
		}
	}

	if dropped := len(records) - len(filtered); dropped > 0 {
		logger.Info().Int("dropped", dropped).Int("remaining", len(filtered)).Msg("filtered out rows that already exist in dataset")
	} else {
		logger.Info().Msg("no rows filtered out, none exist in dataset yet")
	}
	return filtered, nil
}

package ingest

import (
	"github.com/dataops/ingestd/schema"
)

// NormalizeShapes promotes scalar values to one-element lists for any
// field that holds a list in some records and a scalar in others. This
// guarantees column homogeneity at the wire level no matter how the
// records get batched. Input records are not mutated.
func NormalizeShapes(records []schema.Record) []schema.Record {
	mixed := make(map[string]bool)
	sawList := make(map[string]bool)
	sawScalar := make(map[string]bool)

	for _, rec := range records {
		for key, v := range rec {
			switch v.(type) {
			case nil:
			case []any:
				sawList[key] = true
			default:
				sawScalar[key] = true
			}
		}
	}
	for key := range sawList {
		if sawScalar[key] {
			mixed[key] = true
			logger.Info().Str("field", key).Msg("field mixes lists and scalars, promoting scalars to one-element lists")
		}
	}
	if len(mixed) == 0 {
		return records
	}

	out := make([]schema.Record, len(records))
	for i, rec := range records {
		normalized := make(schema.Record, len(rec))
		for key, v := range rec {
			if mixed[key] && v != nil {
				if _, isList := v.([]any); !isList {
					normalized[key] = []any{v}
					continue
				}
			}
			normalized[key] = v
		}
		out[i] = normalized
	}
	return out
}

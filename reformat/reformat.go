package reformat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dataops/ingestd/fileref"
	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/schema"
)

var logger = gologger.NewLogger()

// LastModifiedColumn is stamped onto every valid row at reformat time.
const LastModifiedColumn = "last_modified_date"

const timestampLayout = "2006-01-02T15:04:05"

type (
	// Reformatter converts raw records into the repository's wire format.
	// Rows that fail validation are dropped, never fatal to the batch.
	Reformatter struct {
		// fileIDs maps already-ingested cloud paths to their repository
		// file identifiers, skipping the server-side file lookup.
		fileIDs    map[string]string
		schemaInfo map[string]schema.ColumnSchema
	}
)

func New(fileIDs map[string]string, schemaInfo map[string]schema.ColumnSchema) *Reformatter {
	return &Reformatter{
		fileIDs:    fileIDs,
		schemaInfo: schemaInfo,
	}
}

// Run reformats every record, returning only the valid rows.
func (r *Reformatter) Run(records []schema.Record) []schema.Record {
	out := make([]schema.Record, 0, len(records))
	for _, rec := range records {
		formatted, valid := r.reformatRecord(rec)
		if !valid {
			if raw, err := json.Marshal(rec); err == nil {
				logger.Info().RawJSON("row", raw).Msg("row not valid and will not be included in ingest")
			}
			continue
		}
		out = append(out, formatted)
	}
	return out
}

func (r *Reformatter) reformatRecord(rec schema.Record) (schema.Record, bool) {
	formatted := make(schema.Record, len(rec)+1)
	valid := true
	for key, value := range rec {
		if isAbsent(value) {
			continue
		}

		if len(r.schemaInfo) > 0 {
			if col, ok := r.schemaInfo[key]; ok {
				coerced, err := coerceToColumn(value, col)
				if err != nil {
					logger.Warn().Str("column", key).Interface("value", value).Err(err).Msg("column value does not match schema")
					valid = false
					continue
				}
				value = coerced
			}
		}

		if list, ok := value.([]any); ok {
			resolved := make([]any, len(list))
			for i, item := range list {
				resolved[i] = r.resolveFileValue(item)
			}
			formatted[key] = resolved
		} else {
			formatted[key] = r.resolveFileValue(value)
		}
	}
	formatted[LastModifiedColumn] = time.Now().UTC().Format(timestampLayout)
	return formatted, valid
}

// isAbsent reports values that should not be ingested at all. Zero and
// false are real values and are kept.
func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// resolveFileValue substitutes a pre-resolved file identifier for a cloud
// path when one is known, otherwise emits a FileReference descriptor.
// Non-path values pass through untouched.
func (r *Reformatter) resolveFileValue(v any) any {
	s, ok := v.(string)
	if !ok || !fileref.IsCloudPath(s) {
		return v
	}
	if id, ok := r.fileIDs[s]; ok {
		return id
	}
	if len(r.fileIDs) > 0 {
		logger.Warn().Str("path", s).Msg("file not found in resolved identifier map, will ingest as a regular file")
	}
	return fileref.New(s)
}

func coerceToColumn(v any, col schema.ColumnSchema) (any, error) {
	if col.ArrayOf {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected an array for column %s", col.Name)
		}
		out := make([]any, len(list))
		for i, item := range list {
			coerced, err := coerceScalar(item, col.Datatype)
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	}
	return coerceScalar(v, col.Datatype)
}

func coerceScalar(v any, dt schema.DataType) (any, error) {
	switch dt {
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case schema.TypeInt64:
		return coerceInt(v)
	case schema.TypeFloat64:
		return coerceFloat(v)
	case schema.TypeBoolean:
		return coerceBool(v)
	case schema.TypeDatetime, schema.TypeDate, schema.TypeTime:
		return coerceTimestamp(v)
	case schema.TypeFileref:
		s, ok := v.(string)
		if !ok || !fileref.IsCloudPath(s) {
			return nil, fmt.Errorf("value is not a cloud file path")
		}
		return s, nil
	case schema.TypeBytes:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("value is not bytes")
	default:
		return v, nil
	}
}

func coerceInt(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != float64(int64(t)) {
			return nil, fmt.Errorf("value %v is not an integer", t)
		}
		return int64(t), nil
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("error in ParseInt: %w", err)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("value is not an integer")
	}
}

func coerceFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("error in ParseFloat: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("value is not a float")
	}
}

func coerceBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return nil, fmt.Errorf("error in ParseBool: %w", err)
		}
		return b, nil
	case float64:
		return t != 0, nil
	case int:
		return t != 0, nil
	default:
		return nil, fmt.Errorf("value is not a boolean")
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

func coerceTimestamp(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(timestampLayout), nil
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC().Format(timestampLayout), nil
			}
		}
		return nil, fmt.Errorf("value %q is not a recognized timestamp", t)
	default:
		return nil, fmt.Errorf("value is not a timestamp")
	}
}

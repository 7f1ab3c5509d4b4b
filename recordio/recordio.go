package recordio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danthegoodman1/gojsonutils"
	"github.com/dataops/ingestd/fileref"
	"github.com/dataops/ingestd/gologger"
	"github.com/dataops/ingestd/s3_helper"
	"github.com/dataops/ingestd/schema"
)

var (
	logger = gologger.NewLogger()

	ErrNotFlatMap = errors.New("not a flat map")
)

// LoadSource reads records from a source path: a local NDJSON/JSON file, a
// local parquet file, or a cloud object holding NDJSON/JSON. Parquet
// sources must be local paths.
func LoadSource(ctx context.Context, source string) ([]schema.Record, error) {
	if fileref.IsCloudPath(source) {
		bucket, key := s3_helper.SplitPath(source)
		if strings.HasSuffix(key, ".parquet") {
			return nil, fmt.Errorf("parquet sources must be local paths, got %s", source)
		}
		b, err := s3_helper.ReadBytesFromBucket(ctx, bucket, key)
		if err != nil {
			return nil, fmt.Errorf("error reading source object: %w", err)
		}
		return ParseRecords(b)
	}

	if strings.HasSuffix(source, ".parquet") {
		return ReadParquetFile(source)
	}

	b, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("error reading source file: %w", err)
	}
	return ParseRecords(b)
}

// ParseRecords decodes a JSON array of objects or newline-delimited JSON
// objects, flattening nested maps into column names.
func ParseRecords(b []byte) ([]schema.Record, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var raw []map[string]any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("error in json.Unmarshal of record array: %w", err)
		}
		records := make([]schema.Record, 0, len(raw))
		for _, row := range raw {
			flat, err := flattenRow(row)
			if err != nil {
				return nil, err
			}
			records = append(records, flat)
		}
		return records, nil
	}
	return ParseNDJSON(string(trimmed))
}

// ParseNDJSON decodes line-delimited JSON objects, one record per line.
func ParseNDJSON(rows string) ([]schema.Record, error) {
	var records []schema.Record
	scanner := bufio.NewScanner(strings.NewReader(rows))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("error in json.Unmarshal: %w", err)
		}
		jsonMap, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("line was not a JSON object: %s", line)
		}
		flat, err := flattenRow(jsonMap)
		if err != nil {
			return nil, err
		}
		records = append(records, flat)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning rows: %w", err)
	}
	return records, nil
}

func flattenRow(row map[string]any) (schema.Record, error) {
	flat, err := gojsonutils.Flatten(row, nil)
	if err != nil {
		return nil, fmt.Errorf("error flattening JSON map: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %+v", ErrNotFlatMap, flat)
	}
	return flatMap, nil
}

// ConvertEntityRows converts workspace-export rows of the shape
// {name, entityType, attributes:{...}} into flat records keyed by
// "{entityType}_id". Columns in ignore are dropped.
func ConvertEntityRows(rows []schema.Record, rowIDField string, ignore []string) []schema.Record {
	if len(rows) == 0 {
		return nil
	}
	if rowIDField == "" {
		if et, ok := rows[0]["entityType"].(string); ok {
			rowIDField = et + "_id"
		} else {
			rowIDField = "entity_id"
		}
	}

	ignored := make(map[string]bool, len(ignore))
	for _, col := range ignore {
		ignored[col] = true
	}

	out := make([]schema.Record, 0, len(rows))
	for _, row := range rows {
		rec := schema.Record{}
		if name, ok := row["name"]; ok {
			rec[rowIDField] = name
		}
		if attrs, ok := row["attributes"].(map[string]any); ok {
			for k, v := range attrs {
				if !ignored[k] {
					rec[k] = v
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

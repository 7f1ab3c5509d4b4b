package recordio

import (
	"fmt"
	"reflect"

	"github.com/dataops/ingestd/schema"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// ReadParquetFile reads every row of a local parquet file into records.
// Column names come from the parquet schema, pointer values get
// dereferenced so nulls come through as nil.
func ReadParquetFile(path string) ([]schema.Record, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("error opening parquet file %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 4)
	if err != nil {
		return nil, fmt.Errorf("error creating parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	logger.Debug().Int("rows", numRows).Str("path", path).Msg("reading parquet file")

	rows, err := pr.ReadByNumber(numRows)
	if err != nil {
		return nil, fmt.Errorf("error reading rows from %s: %w", path, err)
	}

	// Struct -> Map (not very efficient right now)
	records := make([]schema.Record, 0, len(rows))
	for _, row := range rows {
		rowMap := make(schema.Record)
		v := reflect.ValueOf(row)
		typeOf := v.Type()
		for i := 0; i < v.NumField(); i++ {
			rowMap[typeOf.Field(i).Name] = derefValue(v.Field(i))
		}
		records = append(records, rowMap)
	}
	return records, nil
}

func derefValue(v reflect.Value) any {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}

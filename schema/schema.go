package schema

import (
	"fmt"
	"strings"
)

type (
	// Record is one row of source data, field name -> raw value. Values are
	// JSON-shaped (string, float64, bool, nil, []any) but time.Time and
	// []byte also appear when records come from parquet sources.
	Record = map[string]any

	DataType string

	ColumnSchema struct {
		Name     string   `json:"name"`
		Datatype DataType `json:"datatype"`
		ArrayOf  bool     `json:"array_of"`
		Required bool     `json:"required"`
	}

	TableSchema struct {
		Name       string         `json:"name"`
		Columns    []ColumnSchema `json:"columns"`
		PrimaryKey string         `json:"primaryKey,omitempty"`
	}
)

const (
	TypeString   DataType = "string"
	TypeBoolean  DataType = "boolean"
	TypeBytes    DataType = "bytes"
	TypeDate     DataType = "date"
	TypeDatetime DataType = "datetime"
	TypeFileref  DataType = "fileref"
	TypeFloat64  DataType = "float64"
	TypeInt64    DataType = "int64"
	TypeTime     DataType = "time"
)

// Column returns the column with the given name, if present.
func (ts TableSchema) Column(name string) (ColumnSchema, bool) {
	for _, col := range ts.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnSchema{}, false
}

// Info returns the schema as a name -> column lookup for row validation.
func (ts TableSchema) Info() map[string]ColumnSchema {
	info := make(map[string]ColumnSchema, len(ts.Columns))
	for _, col := range ts.Columns {
		info[col.Name] = col
	}
	return info
}

// InferenceError reports every column whose values do not share one shape
// or primitive type. Recoverable: re-running with AllowDisparateTypes
// forces the named columns to string instead.
type InferenceError struct {
	Table   string
	Columns []string
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf(
		"not all values for the following columns in table %s are of the same type: %s. Re-run with disparate types allowed to force these columns to strings",
		e.Table, strings.Join(e.Columns, ", "),
	)
}

package schema

import (
	"encoding/json"
	"math"
	"time"

	"github.com/dataops/ingestd/fileref"
)

// valueKind is the tagged classification of a single scalar value. Shape
// (scalar vs list) is tracked separately by the inferencer.
type valueKind int

const (
	kindNull valueKind = iota
	kindString
	kindFileref
	kindBool
	kindBytes
	kindDatetime
	kindInt
	kindFloat
	kindNaN
)

// classifyScalar maps a raw value to its kind. Numbers carry whether they
// are integral so a column of 1, 2.0, 3 still resolves to int64.
func classifyScalar(v any) valueKind {
	switch t := v.(type) {
	case nil:
		return kindNull
	case string:
		if fileref.IsCloudPath(t) {
			return kindFileref
		}
		return kindString
	case bool:
		return kindBool
	case []byte:
		return kindBytes
	case time.Time:
		return kindDatetime
	case float64:
		return classifyFloat(t)
	case float32:
		return classifyFloat(float64(t))
	case int:
		return kindInt
	case int32:
		return kindInt
	case int64:
		return kindInt
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return kindInt
		}
		if f, err := t.Float64(); err == nil {
			return classifyFloat(f)
		}
		return kindString
	default:
		// unknown runtime type, treat the textual form as a string
		return kindString
	}
}

func classifyFloat(f float64) valueKind {
	if math.IsNaN(f) {
		return kindNaN
	}
	if !math.IsInf(f, 0) && f == math.Trunc(f) {
		return kindInt
	}
	return kindFloat
}

func (k valueKind) isNumeric() bool {
	return k == kindInt || k == kindFloat || k == kindNaN
}

// family collapses kinds into comparable primitive families for the
// consistency check: filerefs are still strings, and ints/floats are one
// numeric family (mixed precision is resolved later, not an error).
func (k valueKind) family() valueKind {
	switch {
	case k == kindFileref:
		return kindString
	case k.isNumeric():
		return kindInt
	default:
		return k
	}
}

// dataType resolves a kind to the declared column type.
func (k valueKind) dataType() DataType {
	switch k {
	case kindString:
		return TypeString
	case kindFileref:
		return TypeFileref
	case kindBool:
		return TypeBoolean
	case kindBytes:
		return TypeBytes
	case kindDatetime:
		return TypeDatetime
	case kindInt:
		return TypeInt64
	case kindFloat, kindNaN:
		return TypeFloat64
	default:
		return TypeString
	}
}

package schema

import (
	"strings"

	"github.com/dataops/ingestd/gologger"
)

var logger = gologger.NewLogger()

type (
	InferOptions struct {
		// AllFieldsNonRequired marks every column optional except the
		// primary key.
		AllFieldsNonRequired bool
		// AllowDisparateTypes forces columns with mixed shapes or primitive
		// types to string instead of failing inference.
		AllowDisparateTypes bool
		PrimaryKey          string
	}

	// Inferencer derives a TableSchema from sample records. It only reads
	// the records; every call builds a fresh schema.
	Inferencer struct {
		records []Record
		table   string
		opts    InferOptions
	}

	columnValues struct {
		name string
		vals []any
	}

	columnAnalysis struct {
		anyNull     bool
		allNull     bool
		anyList     bool
		consistent  bool
		forceString bool
	}
)

func NewInferencer(records []Record, table string, opts InferOptions) *Inferencer {
	return &Inferencer{
		records: records,
		table:   table,
		opts:    opts,
	}
}

// Infer derives the table schema per the rules in order: requiredness,
// shape/type consistency, type resolution, array flag. A consistency
// failure returns an *InferenceError naming every offending column.
func (inf *Inferencer) Infer() (TableSchema, error) {
	logger.Info().Str("table", inf.table).Int("records", len(inf.records)).Msg("inferring schema")

	columns := inf.collectColumns()

	var problem []string
	var out []ColumnSchema
	for _, col := range columns {
		a := inf.analyze(col)
		if !a.consistent && !a.forceString {
			problem = append(problem, col.name)
			continue
		}

		dt := TypeString
		if !a.forceString {
			dt = resolveType(col.vals)
		}

		out = append(out, ColumnSchema{
			Name:     col.name,
			Datatype: dt,
			ArrayOf:  a.anyList,
			Required: inf.isRequired(col.name, a),
		})
	}

	if len(problem) > 0 {
		return TableSchema{}, &InferenceError{Table: inf.table, Columns: problem}
	}

	return TableSchema{
		Name:       inf.table,
		Columns:    out,
		PrimaryKey: inf.opts.PrimaryKey,
	}, nil
}

// collectColumns builds per-column value lists across all records in
// first-appearance order. Missing fields become nulls so requiredness can
// see ragged records. Export-style "entity:foo" headers are renamed to
// "foo"; each record is rekeyed once up front so wide ragged tables stay
// linear.
func (inf *Inferencer) collectColumns() []columnValues {
	var order []string
	seen := make(map[string]bool)
	rekeyed := make([]map[string]any, len(inf.records))
	for i, rec := range inf.records {
		m := make(map[string]any, len(rec))
		for key, v := range rec {
			m[renameHeader(key)] = v
		}
		rekeyed[i] = m
		for name := range m {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}

	cols := make([]columnValues, len(order))
	for i, name := range order {
		cols[i].name = name
		cols[i].vals = make([]any, 0, len(inf.records))
	}
	for _, m := range rekeyed {
		for i, name := range order {
			// missing fields come through as nil
			cols[i].vals = append(cols[i].vals, m[name])
		}
	}
	return cols
}

func renameHeader(h string) string {
	if strings.HasPrefix(h, "entity") {
		if _, rest, found := strings.Cut(h, ":"); found {
			return rest
		}
	}
	return h
}

// analyze runs the shape and primitive-type consistency checks for one
// column, ignoring nulls throughout.
func (inf *Inferencer) analyze(col columnValues) columnAnalysis {
	a := columnAnalysis{consistent: true}

	var scalars, lists int
	for _, v := range col.vals {
		switch v.(type) {
		case nil:
			a.anyNull = true
		case []any:
			lists++
			a.anyList = true
		default:
			scalars++
		}
	}

	if scalars+lists == 0 {
		// all-null columns are forced to string
		a.allNull = true
		a.forceString = true
		return a
	}

	if scalars > 0 && lists > 0 {
		a.consistent = false
	} else if lists > 0 {
		a.consistent = listElementsConsistent(col.vals)
	} else {
		a.consistent = scalarsConsistent(col.vals)
	}

	if !a.consistent && inf.opts.AllowDisparateTypes {
		logger.Info().Str("table", inf.table).Str("column", col.name).
			Msg("column has disparate data types, forcing to string")
		a.forceString = true
	}
	return a
}

func scalarsConsistent(vals []any) bool {
	first := kindNull
	for _, v := range vals {
		k := classifyScalar(v)
		if k == kindNull {
			continue
		}
		if first == kindNull {
			first = k.family()
			continue
		}
		if k.family() != first {
			return false
		}
	}
	return true
}

func listElementsConsistent(vals []any) bool {
	first := kindNull
	for _, v := range vals {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			k := classifyScalar(item)
			if k == kindNull {
				continue
			}
			if first == kindNull {
				first = k.family()
				continue
			}
			if k.family() != first {
				return false
			}
		}
	}
	return true
}

func (inf *Inferencer) isRequired(name string, a columnAnalysis) bool {
	switch {
	case a.anyList:
		// arrays cannot be required
		return false
	case a.allNull:
		return false
	case a.anyNull:
		return false
	case inf.opts.AllFieldsNonRequired && name != inf.opts.PrimaryKey:
		return false
	default:
		return true
	}
}

// resolveType picks the column datatype, in priority order: any
// cloud-path-looking value (including list elements) wins as fileref, then
// uniform numerics collapse to int64/float64, then the first non-null
// value decides.
func resolveType(vals []any) DataType {
	scalars, elements := flattenValues(vals)

	for _, k := range scalars {
		if k == kindFileref {
			return TypeFileref
		}
	}
	for _, k := range elements {
		if k == kindFileref {
			return TypeFileref
		}
	}

	if len(scalars) > 0 && len(elements) == 0 && allNumeric(scalars) {
		return intOrFloat(scalars)
	}
	if len(scalars) == 0 && len(elements) > 0 && allNumeric(elements) {
		return intOrFloat(elements)
	}

	if len(scalars) > 0 {
		return scalars[0].dataType()
	}
	if len(elements) > 0 {
		return elements[0].dataType()
	}
	return TypeString
}

// flattenValues classifies all non-null values, scalar kinds separate from
// list-element kinds.
func flattenValues(vals []any) (scalars, elements []valueKind) {
	for _, v := range vals {
		switch t := v.(type) {
		case nil:
		case []any:
			for _, item := range t {
				if k := classifyScalar(item); k != kindNull {
					elements = append(elements, k)
				}
			}
		default:
			scalars = append(scalars, classifyScalar(v))
		}
	}
	return scalars, elements
}

func allNumeric(kinds []valueKind) bool {
	for _, k := range kinds {
		if !k.isNumeric() {
			return false
		}
	}
	return true
}

// intOrFloat resolves a numeric column: int64 only when every value is
// integral, ignoring NaNs.
func intOrFloat(kinds []valueKind) DataType {
	for _, k := range kinds {
		if k == kindFloat {
			return TypeFloat64
		}
	}
	return TypeInt64
}

// Package convert implements spec.md §4.5: per-column CSV string to
// native Go value conversion on import, and native Go value to CSV
// string conversion on export, for every scalar, collection,
// user-defined, and temporal column type the ring database supports.
//
// Grounded on original_source/pylib/cqlshlib/copyutil.py's
// ImportConversion/ExportConversion converter tables — ported type by
// type, not translated line by line.
package convert

import "fmt"

// Kind is the tagged-enum of recognized CQL column types (spec.md
// design note §9: "use a tagged enum of type codes rather than type
// classes").
type Kind int

const (
	KindBlob Kind = iota
	KindAscii
	KindText
	KindVarchar
	KindInet
	KindBoolean
	KindInt
	KindSmallint
	KindTinyint
	KindBigint
	KindVarint
	KindCounter
	KindFloat
	KindDouble
	KindDecimal
	KindUUID
	KindTimeUUID
	KindDate
	KindTime
	KindTimestamp
	KindList
	KindSet
	KindTuple
	KindMap
	KindUDT
	KindReversed
)

// ColumnType describes one column's CQL type, including the subtype
// vector collections/UDTs/reversed types carry (spec.md design note
// §9: "the UDT and Reversed constructors carry a subtype vector").
type ColumnType struct {
	Kind      Kind
	Subtypes  []ColumnType // list/set/tuple: element type(s); map: [key, value]; reversed: [inner]
	UDTName   string
	UDTFields []string // ordered field names, matching the type's declared field order
}

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindAscii:
		return "ascii"
	case KindText:
		return "text"
	case KindVarchar:
		return "varchar"
	case KindInet:
		return "inet"
	case KindBoolean:
		return "boolean"
	case KindInt:
		return "int"
	case KindSmallint:
		return "smallint"
	case KindTinyint:
		return "tinyint"
	case KindBigint:
		return "bigint"
	case KindVarint:
		return "varint"
	case KindCounter:
		return "counter"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindDecimal:
		return "decimal"
	case KindUUID:
		return "uuid"
	case KindTimeUUID:
		return "timeuuid"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindTimestamp:
		return "timestamp"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindTuple:
		return "tuple"
	case KindMap:
		return "map"
	case KindUDT:
		return "user_defined_type"
	case KindReversed:
		return "reversed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsIntegral reports whether Kind is one of the integer family types.
func (k Kind) IsIntegral() bool {
	switch k {
	case KindInt, KindSmallint, KindTinyint, KindBigint, KindVarint, KindCounter:
		return true
	}
	return false
}

// IsFloating reports whether Kind is one of the float family types.
func (k Kind) IsFloating() bool {
	switch k {
	case KindFloat, KindDouble, KindDecimal:
		return true
	}
	return false
}

// IsTextual reports whether Kind passes through as quoted text.
func (k Kind) IsTextual() bool {
	switch k {
	case KindAscii, KindText, KindVarchar, KindInet:
		return true
	}
	return false
}

// MapEntry is one key/value pair of a Map value. Map values are kept
// as an ordered slice rather than a native Go map because composite
// (tuple) keys are not always Go-comparable; spec.md §4.5 requires
// composite keys to become "frozen tuples" (here, the []any a tuple
// converts to), which this ordered representation accommodates
// uniformly.
type MapEntry struct {
	Key   any
	Value any
}

// UDTValue is a user-defined-type value: an ordered, named record
// matching the type's declared field order (spec.md §4.5).
type UDTValue struct {
	TypeName string
	Fields   []string
	Values   []any
}

// Get returns the value of the named field, or nil, false if absent.
func (u UDTValue) Get(name string) (any, bool) {
	for i, f := range u.Fields {
		if f == name {
			return u.Values[i], true
		}
	}
	return nil, false
}

package convert

import (
	"fmt"
	"strings"
)

// ParseColumnType parses a CQL type name into a ColumnType: scalars
// ("int", "text", "uuid", ...), "frozen<...>" (the frozenness itself
// doesn't change conversion, so it is unwrapped), "list<T>", "set<T>",
// "map<K,V>", "tuple<T1,T2,...>", and "reversed<T>" for clustering
// columns declared DESC.
//
// With the real driver's wire protocol out of scope (spec.md's
// narrow-interface boundary), a CLI run has no DESCRIBE TABLE to fall
// back on; operators name each column's type directly via
// --columns "name:type[:pk][:counter]", and this parser turns the
// type half of that into the ColumnType the converter already knows
// how to handle.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.TrimSpace(s)
	if open := strings.IndexByte(s, '<'); open >= 0 {
		if !strings.HasSuffix(s, ">") {
			return ColumnType{}, fmt.Errorf("malformed type %q: missing closing >", s)
		}
		outer := strings.ToLower(strings.TrimSpace(s[:open]))
		inner := s[open+1 : len(s)-1]

		switch outer {
		case "frozen":
			return ParseColumnType(inner)
		case "reversed":
			sub, err := ParseColumnType(inner)
			if err != nil {
				return ColumnType{}, err
			}
			return ColumnType{Kind: KindReversed, Subtypes: []ColumnType{sub}}, nil
		case "list", "set":
			sub, err := ParseColumnType(inner)
			if err != nil {
				return ColumnType{}, err
			}
			kind := KindList
			if outer == "set" {
				kind = KindSet
			}
			return ColumnType{Kind: kind, Subtypes: []ColumnType{sub}}, nil
		case "map":
			parts := splitTypeArgs(inner, ',')
			if len(parts) != 2 {
				return ColumnType{}, fmt.Errorf("malformed map type %q: expected 2 type args, got %d", s, len(parts))
			}
			key, err := ParseColumnType(parts[0])
			if err != nil {
				return ColumnType{}, err
			}
			val, err := ParseColumnType(parts[1])
			if err != nil {
				return ColumnType{}, err
			}
			return ColumnType{Kind: KindMap, Subtypes: []ColumnType{key, val}}, nil
		case "tuple":
			parts := splitTypeArgs(inner, ',')
			subs := make([]ColumnType, len(parts))
			for i, p := range parts {
				sub, err := ParseColumnType(p)
				if err != nil {
					return ColumnType{}, err
				}
				subs[i] = sub
			}
			return ColumnType{Kind: KindTuple, Subtypes: subs}, nil
		default:
			return ColumnType{}, fmt.Errorf("unknown parameterized type %q", outer)
		}
	}

	switch strings.ToLower(s) {
	case "blob":
		return ColumnType{Kind: KindBlob}, nil
	case "ascii":
		return ColumnType{Kind: KindAscii}, nil
	case "text", "varchar":
		return ColumnType{Kind: KindText}, nil
	case "inet":
		return ColumnType{Kind: KindInet}, nil
	case "boolean":
		return ColumnType{Kind: KindBoolean}, nil
	case "int":
		return ColumnType{Kind: KindInt}, nil
	case "smallint":
		return ColumnType{Kind: KindSmallint}, nil
	case "tinyint":
		return ColumnType{Kind: KindTinyint}, nil
	case "bigint":
		return ColumnType{Kind: KindBigint}, nil
	case "varint":
		return ColumnType{Kind: KindVarint}, nil
	case "counter":
		return ColumnType{Kind: KindCounter}, nil
	case "float":
		return ColumnType{Kind: KindFloat}, nil
	case "double":
		return ColumnType{Kind: KindDouble}, nil
	case "decimal":
		return ColumnType{Kind: KindDecimal}, nil
	case "uuid":
		return ColumnType{Kind: KindUUID}, nil
	case "timeuuid":
		return ColumnType{Kind: KindTimeUUID}, nil
	case "date":
		return ColumnType{Kind: KindDate}, nil
	case "time":
		return ColumnType{Kind: KindTime}, nil
	case "timestamp":
		return ColumnType{Kind: KindTimestamp}, nil
	default:
		return ColumnType{}, fmt.Errorf("unknown column type %q", s)
	}
}

// splitTypeArgs splits s on sep, ignoring occurrences nested inside
// angle brackets, so "map<int, list<text>>" splits into exactly 2
// parts rather than 3.
func splitTypeArgs(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

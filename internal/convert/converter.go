package convert

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds the per-run knobs spec.md §4.5/§6 gives the converter:
// the null sentinel, the configured true/false strings, and the
// thousands/decimal separators and timestamp format.
type Config struct {
	NullVal      string
	TrueStr      string
	FalseStr     string
	ThousandsSep string
	DecimalSep   string
	TimeFormat   string
}

// Converter performs CSV string ⇄ native value conversion for one
// run's configured options.
type Converter struct {
	cfg Config
}

// New builds a Converter bound to cfg.
func New(cfg Config) *Converter { return &Converter{cfg: cfg} }

// IsNull reports whether raw is the configured null sentinel.
func (c *Converter) IsNull(raw string) bool { return raw == c.cfg.NullVal }

// stripSeparators removes the configured thousands separator and
// normalizes the configured decimal separator to '.', per spec.md
// §4.5's float/decimal rule.
func (c *Converter) stripSeparators(v string) string {
	if c.cfg.ThousandsSep != "" {
		v = strings.ReplaceAll(v, c.cfg.ThousandsSep, "")
	}
	if c.cfg.DecimalSep != "" && c.cfg.DecimalSep != "." {
		v = strings.ReplaceAll(v, c.cfg.DecimalSep, ".")
	}
	return v
}

// Import converts one CSV field to its native value for column type
// ct. raw is assumed already not the null sentinel (callers check
// IsNull first so null handling stays centralized at the row level).
func (c *Converter) Import(ct ColumnType, raw string) (any, error) {
	switch ct.Kind {
	case KindBlob:
		return c.importBlob(raw)
	case KindAscii, KindText, KindVarchar, KindInet:
		return raw, nil
	case KindBoolean:
		return c.importBool(raw)
	case KindInt, KindSmallint, KindTinyint, KindBigint, KindCounter:
		return c.importInt(raw)
	case KindVarint:
		return c.importVarint(raw)
	case KindFloat, KindDouble:
		return c.importFloat(raw)
	case KindDecimal:
		return c.importDecimal(raw)
	case KindUUID, KindTimeUUID:
		return c.importUUID(raw)
	case KindDate:
		return ParseDate(raw)
	case KindTime:
		return ParseTimeOfDay(raw)
	case KindTimestamp:
		return ParseTimestamp(raw, c.cfg.TimeFormat)
	case KindList:
		return c.importSequence(ct, raw)
	case KindSet:
		return c.importSequence(ct, raw)
	case KindTuple:
		return c.importTuple(ct, raw)
	case KindMap:
		return c.importMap(ct, raw)
	case KindUDT:
		return c.importUDT(ct, raw)
	case KindReversed:
		return c.Import(ct.Subtypes[0], raw)
	default:
		return raw, nil
	}
}

// Export converts a native value back to its CSV string form for
// column type ct.
func (c *Converter) Export(ct ColumnType, v any) (string, error) {
	switch ct.Kind {
	case KindBlob:
		b, ok := v.([]byte)
		if !ok {
			return "", fmt.Errorf("export blob: expected []byte, got %T", v)
		}
		return "0x" + hex.EncodeToString(b), nil
	case KindAscii, KindText, KindVarchar, KindInet:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("export %s: expected string, got %T", ct.Kind, v)
		}
		return s, nil
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("export boolean: expected bool, got %T", v)
		}
		if b {
			return c.cfg.TrueStr, nil
		}
		return c.cfg.FalseStr, nil
	case KindInt, KindSmallint, KindTinyint, KindBigint, KindCounter:
		return fmt.Sprintf("%v", v), nil
	case KindVarint:
		bi, ok := v.(*big.Int)
		if !ok {
			return "", fmt.Errorf("export varint: expected *big.Int, got %T", v)
		}
		return bi.String(), nil
	case KindFloat, KindDouble:
		f, ok := v.(float64)
		if !ok {
			return "", fmt.Errorf("export %s: expected float64, got %T", ct.Kind, v)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case KindDecimal:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return "", fmt.Errorf("export decimal: expected decimal.Decimal, got %T", v)
		}
		return d.String(), nil
	case KindUUID, KindTimeUUID:
		u, ok := v.(uuid.UUID)
		if !ok {
			return "", fmt.Errorf("export %s: expected uuid.UUID, got %T", ct.Kind, v)
		}
		return u.String(), nil
	case KindDate:
		d, ok := v.(Date)
		if !ok {
			return "", fmt.Errorf("export date: expected Date, got %T", v)
		}
		return FormatDate(d), nil
	case KindTime:
		t, ok := v.(TimeOfDay)
		if !ok {
			return "", fmt.Errorf("export time: expected TimeOfDay, got %T", v)
		}
		return FormatTimeOfDay(t), nil
	case KindTimestamp:
		ts, ok := v.(Timestamp)
		if !ok {
			return "", fmt.Errorf("export timestamp: expected Timestamp, got %T", v)
		}
		return FormatTimestamp(ts, c.cfg.TimeFormat), nil
	case KindList, KindSet:
		return c.exportSequence(ct, v)
	case KindTuple:
		return c.exportTuple(ct, v)
	case KindMap:
		return c.exportMap(ct, v)
	case KindUDT:
		return c.exportUDT(ct, v)
	case KindReversed:
		return c.Export(ct.Subtypes[0], v)
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func (c *Converter) importBlob(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return nil, fmt.Errorf("blob value %q must start with 0x", raw)
	}
	return hex.DecodeString(raw[2:])
}

func (c *Converter) importBool(raw string) (bool, error) {
	switch {
	case strings.EqualFold(raw, c.cfg.TrueStr):
		return true, nil
	case strings.EqualFold(raw, c.cfg.FalseStr):
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q, want %q or %q", raw, c.cfg.TrueStr, c.cfg.FalseStr)
	}
}

func (c *Converter) importInt(raw string) (int64, error) {
	v := raw
	if c.cfg.ThousandsSep != "" {
		v = strings.ReplaceAll(v, c.cfg.ThousandsSep, "")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	return n, nil
}

func (c *Converter) importVarint(raw string) (*big.Int, error) {
	v := raw
	if c.cfg.ThousandsSep != "" {
		v = strings.ReplaceAll(v, c.cfg.ThousandsSep, "")
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("invalid varint %q", raw)
	}
	return n, nil
}

func (c *Converter) importFloat(raw string) (float64, error) {
	v := c.stripSeparators(raw)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", raw, err)
	}
	return f, nil
}

func (c *Converter) importDecimal(raw string) (decimal.Decimal, error) {
	v := c.stripSeparators(raw)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", raw, err)
	}
	return d, nil
}

func (c *Converter) importUUID(raw string) (uuid.UUID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid uuid %q: %w", raw, err)
	}
	return u, nil
}

func (c *Converter) importSequence(ct ColumnType, raw string) ([]any, error) {
	elemType := ct.Subtypes[0]
	parts := splitTopLevel(raw, ',')
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		v, err := c.Import(elemType, unprotect(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Converter) exportSequence(ct ColumnType, v any) (string, error) {
	items, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("export %s: expected []any, got %T", ct.Kind, v)
	}
	elemType := ct.Subtypes[0]
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := c.Export(elemType, item)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	open, close := "[", "]"
	if ct.Kind == KindSet {
		open, close = "{", "}"
	}
	return open + strings.Join(parts, ",") + close, nil
}

func (c *Converter) importTuple(ct ColumnType, raw string) ([]any, error) {
	parts := splitTopLevel(raw, ',')
	if len(parts) != len(ct.Subtypes) {
		return nil, fmt.Errorf("tuple %q has %d fields, type declares %d", raw, len(parts), len(ct.Subtypes))
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		v, err := c.Import(ct.Subtypes[i], unprotect(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Converter) exportTuple(ct ColumnType, v any) (string, error) {
	items, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("export tuple: expected []any, got %T", v)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := c.Export(ct.Subtypes[i], item)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

func (c *Converter) importMap(ct ColumnType, raw string) ([]MapEntry, error) {
	keyType, valType := ct.Subtypes[0], ct.Subtypes[1]
	entries := splitTopLevel(raw, ',')
	out := make([]MapEntry, 0, len(entries))
	for _, entry := range entries {
		kv := splitTopLevel("{"+entry+"}", ':')
		if len(kv) != 2 {
			return nil, fmt.Errorf("map entry %q must be key:value", entry)
		}
		k, err := c.Import(keyType, unprotect(kv[0]))
		if err != nil {
			return nil, err
		}
		val, err := c.Import(valType, unprotect(kv[1]))
		if err != nil {
			return nil, err
		}
		out = append(out, MapEntry{Key: k, Value: val})
	}
	return out, nil
}

func (c *Converter) exportMap(ct ColumnType, v any) (string, error) {
	entries, ok := v.([]MapEntry)
	if !ok {
		return "", fmt.Errorf("export map: expected []MapEntry, got %T", v)
	}
	keyType, valType := ct.Subtypes[0], ct.Subtypes[1]
	parts := make([]string, len(entries))
	for i, e := range entries {
		ks, err := c.Export(keyType, e.Key)
		if err != nil {
			return "", err
		}
		vs, err := c.Export(valType, e.Value)
		if err != nil {
			return "", err
		}
		parts[i] = ks + ":" + vs
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

func (c *Converter) importUDT(ct ColumnType, raw string) (UDTValue, error) {
	entries := splitTopLevel(raw, ',')
	values := make([]any, len(ct.UDTFields))
	seen := make([]bool, len(ct.UDTFields))
	for _, entry := range entries {
		kv := splitTopLevel("{"+entry+"}", ':')
		if len(kv) != 2 {
			return UDTValue{}, fmt.Errorf("udt entry %q must be field:value", entry)
		}
		field := unprotect(kv[0])
		idx := -1
		for i, f := range ct.UDTFields {
			if f == field {
				idx = i
				break
			}
		}
		if idx < 0 {
			return UDTValue{}, fmt.Errorf("unknown field %q for type %s", field, ct.UDTName)
		}
		v, err := c.Import(ct.Subtypes[idx], unprotect(kv[1]))
		if err != nil {
			return UDTValue{}, err
		}
		values[idx] = v
		seen[idx] = true
	}
	return UDTValue{TypeName: ct.UDTName, Fields: ct.UDTFields, Values: values}, nil
}

func (c *Converter) exportUDT(ct ColumnType, v any) (string, error) {
	u, ok := v.(UDTValue)
	if !ok {
		return "", fmt.Errorf("export udt: expected UDTValue, got %T", v)
	}
	parts := make([]string, len(u.Fields))
	for i, f := range u.Fields {
		s, err := c.Export(ct.Subtypes[i], u.Values[i])
		if err != nil {
			return "", err
		}
		parts[i] = f + ":" + s
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// unprotect strips a single layer of surrounding single quotes and
// un-doubles internal ones, the inverse of Protect's text quoting.
func unprotect(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v
}

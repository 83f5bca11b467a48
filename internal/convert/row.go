package convert

import "fmt"

// ParseError marks a row-level conversion failure that is never
// retried (spec.md §7): malformed CSV, wrong column count, or a null
// primary-key value.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// NewParseError builds a ParseError.
func NewParseError(format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// ConvertRow converts one CSV row's fields into native values per
// column type, enforcing spec.md §4.5's row-level rules: the field
// count must match the schema, and no primary-key column may equal
// the configured null sentinel. pkIndexes names which column indexes
// are part of the primary key.
func (c *Converter) ConvertRow(columns []ColumnType, fields []string, pkIndexes []int) ([]any, error) {
	if len(fields) != len(columns) {
		return nil, NewParseError("row has %d fields, table has %d columns", len(fields), len(columns))
	}

	isPK := make(map[int]bool, len(pkIndexes))
	for _, i := range pkIndexes {
		isPK[i] = true
	}

	out := make([]any, len(fields))
	for i, raw := range fields {
		if c.IsNull(raw) {
			if isPK[i] {
				return nil, NewParseError(
					"primary key column %d cannot be null/empty; "+
						"if the source data uses a different sentinel for null, set the NULL=<marker> copy option", i)
			}
			out[i] = nil
			continue
		}
		v, err := c.Import(columns[i], raw)
		if err != nil {
			return nil, NewParseError("%v", err)
		}
		out[i] = v
	}
	return out, nil
}

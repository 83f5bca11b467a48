package convert

import "strings"

// Protect renders the CQL literal form of an already-converted value
// for a textual (non-prepared) INSERT statement. Per spec.md §4.5,
// text-like types are wrapped in single quotes with internal quotes
// doubled; every other type's Export form is already valid CQL
// literal syntax (numbers, collection/tuple/map/UDT literals).
func (c *Converter) Protect(ct ColumnType, v any) (string, error) {
	exported, err := c.Export(ct, v)
	if err != nil {
		return "", err
	}
	if ct.Kind.IsTextual() {
		return "'" + strings.ReplaceAll(exported, "'", "''") + "'", nil
	}
	return exported, nil
}

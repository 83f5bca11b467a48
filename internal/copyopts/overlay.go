package copyopts

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// sections holds every [section] → key/value block parsed from one INI
// overlay file, matching the format cqlsh's .cqlshrc file uses: plain
// "key = value" lines inside "[section]" headers, '#'/';' comments,
// trailing/leading whitespace trimmed.
type sections map[string]map[string]string

// parseINI reads a minimal INI dialect: no nested sections, no
// multi-line values, '#' and ';' full-line comments only (text after a
// value on the same line is kept as part of the value).
// This is hand-rolled rather than pulled from a generic INI library
// because the four-level section-precedence merge that follows is
// bespoke to this format (see DESIGN.md).
func parseINI(r io.Reader) (sections, error) {
	out := sections{}
	current := ""
	out[current] = map[string]string{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, fmt.Errorf("overlay line %d: unterminated section header", lineNo)
			}
			current = strings.TrimSpace(line[1:end])
			if _, ok := out[current]; !ok {
				out[current] = map[string]string{}
			}
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("overlay line %d: expected key = value", lineNo)
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		val := strings.TrimSpace(line[eq+1:])
		val, err := unescapeValue(key, val)
		if err != nil {
			return nil, fmt.Errorf("overlay line %d: %w", lineNo, err)
		}
		out[current][key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// pathOptions never get backslash-escape processing: a Windows path
// like `C:\data\err.csv` must survive untouched.
var pathOptions = map[string]bool{
	"errfile": true,
	"ratefile": true,
}

// unescapeValue applies the standard backslash escape sequences spec.md
// §6 promises for string option values, except for file-path options.
func unescapeValue(key, val string) (string, error) {
	if pathOptions[key] || !strings.ContainsRune(val, '\\') {
		return val, nil
	}
	unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(val, `"`, `\"`) + `"`)
	if err != nil {
		return val, nil // best-effort; leave unparseable escapes alone
	}
	return unquoted, nil
}

// Layers builds the four override layers of spec.md §6 for one
// (direction, keyspace, table) run: [copy], [copy-<dir>],
// [copy:<ks>.<table>], [copy-<dir>:<ks>.<table>], in that precedence
// order (later entries win when merged left-to-right by New).
func Layers(src sections, direction, ks, table string) []map[string]string {
	qualified := fmt.Sprintf("%s.%s", ks, table)
	return []map[string]string{
		src["copy"],
		src["copy-"+direction],
		src["copy:"+qualified],
		src["copy-"+direction+":"+qualified],
	}
}

// LoadOverlay parses an overlay file and returns the merge layers ready
// to hand to New, with a final CLI-override layer appended by the
// caller.
func LoadOverlay(r io.Reader, direction, ks, table string) ([]map[string]string, error) {
	secs, err := parseINI(r)
	if err != nil {
		return nil, err
	}
	return Layers(secs, direction, ks, table), nil
}

// Package copyopts parses and validates the tuning/dialect options that
// govern one EXPORT or IMPORT run.
package copyopts

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect holds the CSV quoting/escaping/delimiter configuration.
type Dialect struct {
	Quote     string
	Escape    string
	Delimiter string
}

// DefaultDialect returns the spec's default CSV dialect.
func DefaultDialect() Dialect {
	return Dialect{Quote: `"`, Escape: `\`, Delimiter: ","}
}

// normalize applies the "quote == escape switches to double-quote mode"
// rule from spec.md §6.
func (d Dialect) normalize() Dialect {
	if d.Quote == d.Escape {
		d.Escape = ""
	}
	return d
}

// Options is the immutable, per-run tuning record described by spec.md §3.
// Copy is the resolved `copy` section, Dialect the CSV dialect, and
// Unrecognized holds any leftover keys the caller must error on.
type Options struct {
	Copy         map[string]string
	Dialect      Dialect
	Unrecognized map[string]string
}

// defaults enumerates every key spec.md §6 defines, with its default
// string value. A key whose default is "" is still recognized (e.g.
// begintoken).
var defaults = map[string]string{
	"nullval":           "",
	"header":            "false",
	"encoding":          "utf8",
	"maxrequests":       "6",
	"pagesize":          "1000",
	"pagetimeout":       "",
	"maxattempts":       "5",
	"datetimeformat":    "%Y-%m-%d %H:%M:%S%z",
	"chunksize":         "5000",
	"ingestrate":        "200000",
	"maxbatchsize":      "20",
	"minbatchsize":      "10",
	"reportfrequency":   "0.25",
	"consistencylevel":  "",
	"decimalsep":        ".",
	"thousandssep":      "",
	"boolstyle":         "True,False",
	"numprocesses":      "",
	"begintoken":        "",
	"endtoken":          "",
	"maxrows":           "-1",
	"skiprows":          "0",
	"skipcols":          "",
	"maxparseerrors":    "-1",
	"maxinserterrors":   "-1",
	"errfile":           "",
	"ratefile":          "",
	"maxoutputsize":     "-1",
	"preparedstatements": "true",
}

// New builds Options from layered raw key/value maps, applied in the
// order given (later maps override earlier ones), per spec.md §6's
// config-file overlay order ([copy], [copy-<dir>], [copy:<ks>.<table>],
// [copy-<dir>:<ks>.<table>], then CLI flags last).
func New(layers ...map[string]string) (*Options, error) {
	merged := make(map[string]string, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	unrecognized := map[string]string{}
	dialect := DefaultDialect()

	for _, layer := range layers {
		for k, v := range layer {
			switch k {
			case "quote":
				dialect.Quote = v
			case "escape":
				dialect.Escape = v
			case "delimiter":
				dialect.Delimiter = v
			default:
				if _, ok := defaults[k]; ok {
					merged[k] = v
				} else {
					unrecognized[k] = v
				}
			}
		}
	}

	opts := &Options{
		Copy:         merged,
		Dialect:      dialect.normalize(),
		Unrecognized: unrecognized,
	}
	return opts, nil
}

// Validate rejects a run with unrecognized keys or an invalid boolstyle,
// per spec.md §4.6 step 1 and §6.
func (o *Options) Validate(columnsSelected int) error {
	if len(o.Unrecognized) > 0 {
		keys := make([]string, 0, len(o.Unrecognized))
		for k := range o.Unrecognized {
			keys = append(keys, k)
		}
		return fmt.Errorf("unrecognized copy options: %s", strings.Join(keys, ", "))
	}
	if columnsSelected == 0 {
		return fmt.Errorf("no columns selected for copy")
	}
	styles := strings.SplitN(o.Copy["boolstyle"], ",", 2)
	if len(styles) != 2 || styles[0] == "" || styles[1] == "" || styles[0] == styles[1] {
		return fmt.Errorf("boolstyle must be two non-empty, distinct strings, got %q", o.Copy["boolstyle"])
	}
	return nil
}

// Str returns the resolved string value of a copy option.
func (o *Options) Str(key string) string { return o.Copy[key] }

// Int returns the resolved int value of a copy option, or def on parse
// failure (keys are validated ahead of time in practice).
func (o *Options) Int(key string, def int) int {
	v, err := strconv.Atoi(o.Copy[key])
	if err != nil {
		return def
	}
	return v
}

// Float returns the resolved float value of a copy option.
func (o *Options) Float(key string, def float64) float64 {
	v, err := strconv.ParseFloat(o.Copy[key], 64)
	if err != nil {
		return def
	}
	return v
}

// Bool returns the resolved bool value of a copy option.
func (o *Options) Bool(key string) bool {
	v, err := strconv.ParseBool(o.Copy[key])
	return err == nil && v
}

// BoolStyle returns the two configured true/false strings.
func (o *Options) BoolStyle() (trueStr, falseStr string) {
	parts := strings.SplitN(o.Copy["boolstyle"], ",", 2)
	return parts[0], parts[1]
}

// SkipCols returns the configured skipcols list.
func (o *Options) SkipCols() []string {
	raw := o.Copy["skipcols"]
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

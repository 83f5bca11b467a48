package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/copyopts"
	"github.com/sandinv/ringcopy/internal/ring"
)

// connTarget is the resolved connection shape one run needs: a
// %s-templated connection string (for driver.SessionPool) and the
// single host a degenerate ring falls back to.
type connTarget struct {
	template string
	host     string
}

// resolveConnect turns a literal connection string into a %s-templated
// one, so the session pool can dial any replica host spec.md §4.7
// hands it. With no real driver exposing cluster topology (SPEC_FULL.md
// §1's out-of-scope wire protocol), every run degenerates to its own
// connect host as the sole replica (ring.Degenerate).
func resolveConnect(raw string) (connTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return connTarget{}, fmt.Errorf("invalid --connect %q: %w", raw, err)
	}
	if u.Host == "" {
		return connTarget{}, fmt.Errorf("invalid --connect %q: missing host", raw)
	}
	host := u.Host
	return connTarget{
		template: strings.Replace(raw, host, "%s", 1),
		host:     host,
	}, nil
}

// parseColumns parses the "name:type[:pk][:counter]" entries of
// --columns into the parallel slices exportcoord/importcoord need. See
// DESIGN.md's Open Question 4: this flag stands in for the schema
// introspection a real driver's DESCRIBE TABLE would otherwise supply.
func parseColumns(spec string) ([]string, []convert.ColumnType, []int, []bool, error) {
	entries := strings.Split(spec, ",")
	names := make([]string, 0, len(entries))
	types := make([]convert.ColumnType, 0, len(entries))
	var pkIndexes []int
	counters := make([]bool, 0, len(entries))

	for i, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 {
			return nil, nil, nil, nil, fmt.Errorf("malformed --columns entry %q: want name:type[:pk][:counter]", entry)
		}
		name := strings.TrimSpace(parts[0])
		ct, err := convert.ParseColumnType(parts[1])
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("column %q: %w", name, err)
		}
		isPK, isCounter := false, false
		for _, tag := range parts[2:] {
			switch strings.ToLower(strings.TrimSpace(tag)) {
			case "pk":
				isPK = true
			case "counter":
				isCounter = true
			}
		}
		names = append(names, name)
		types = append(types, ct)
		counters = append(counters, isCounter)
		if isPK {
			pkIndexes = append(pkIndexes, i)
		}
	}
	if len(pkIndexes) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("--columns must mark at least one column :pk")
	}
	return names, types, pkIndexes, counters, nil
}

// parsePartitioner maps the --partitioner flag to ring.Partitioner.
func parsePartitioner(s string) (ring.Partitioner, error) {
	switch strings.ToLower(s) {
	case "", "murmur3":
		return ring.PartitionerMurmur3, nil
	case "random":
		return ring.PartitionerRandom, nil
	case "none":
		return ring.PartitionerNone, nil
	default:
		return ring.PartitionerNone, fmt.Errorf("unknown --partitioner %q", s)
	}
}

// parseToken parses an optional begintoken/endtoken copy option into a
// *int64, treating "" as unbounded per spec.md §6.
func parseToken(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid token %q: %w", s, err)
	}
	return &v, nil
}

// converterConfig builds a convert.Config from resolved copy options.
func converterConfig(opts *copyopts.Options) convert.Config {
	trueStr, falseStr := opts.BoolStyle()
	return convert.Config{
		NullVal:      opts.Str("nullval"),
		TrueStr:      trueStr,
		FalseStr:     falseStr,
		ThousandsSep: opts.Str("thousandssep"),
		DecimalSep:   opts.Str("decimalsep"),
		TimeFormat:   opts.Str("datetimeformat"),
	}
}

// parseCopyOptFlags turns repeated --copy-opt key=value flags into a layer
// map for copyopts.New.
func parseCopyOptFlags(flags []string) (map[string]string, error) {
	out := map[string]string{}
	for _, kv := range flags {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed --copy-opt %q: want key=value", kv)
		}
		key := strings.ToLower(strings.TrimSpace(kv[:eq]))
		out[key] = strings.TrimSpace(kv[eq+1:])
	}
	return out, nil
}

// loadConfigLayers reads the INI overlay at path, if set, resolving
// the [copy]/[copy-<dir>]/[copy:<ks>.<table>]/[copy-<dir>:<ks>.<table>]
// precedence chain for direction/ks/table.
func loadConfigLayers(path, direction, ks, table string) ([]map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open --config %q: %w", path, err)
	}
	defer f.Close()
	return copyopts.LoadOverlay(f, direction, ks, table)
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/copyopts"
	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/driver"
	"github.com/sandinv/ringcopy/internal/errorfile"
	"github.com/sandinv/ringcopy/internal/importcoord"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/retry"
	"github.com/sandinv/ringcopy/internal/ring"
	"github.com/sandinv/ringcopy/internal/ringchan"
)

func newImportCmd() *cobra.Command {
	var ks, table, in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "import CSV rows into a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("ks", ks); err != nil {
				return err
			}
			if err := requireFlag("table", table); err != nil {
				return err
			}
			return runImport(ks, table, in)
		},
	}
	cmd.Flags().StringVar(&ks, "ks", "", "keyspace (required)")
	cmd.Flags().StringVar(&table, "table", "", "table (required)")
	cmd.Flags().StringVar(&in, "in", "-", `input file(s), comma-separated glob patterns, or "-" for stdin`)
	return cmd
}

func runImport(ks, table, in string) error {
	layers, err := loadConfigLayers(configFlag, "from", ks, table)
	if err != nil {
		return err
	}
	cliLayer, err := parseCopyOptFlags(copyOptFlags)
	if err != nil {
		return err
	}
	opts, err := copyopts.New(append(layers, cliLayer)...)
	if err != nil {
		return err
	}

	names, types, pkIndexes, counters, err := parseColumns(columnsFlag)
	if err != nil {
		return err
	}
	if err := opts.Validate(len(names)); err != nil {
		return err
	}

	if dumpConfigFlag {
		return dumpConfig(opts)
	}

	logger := setupLogger()

	if err := requireFlag("connect", connectFlag); err != nil {
		return err
	}
	target, err := resolveConnect(connectFlag)
	if err != nil {
		return err
	}

	pool := driver.NewSessionPool(target.template)
	defer pool.Close()

	tm := ring.Degenerate(target.host, localDCFlag)

	var ratePath string
	if rf := opts.Str("ratefile"); rf != "" {
		ratePath = rf
	}
	reportEvery := time.Duration(opts.Float("reportfrequency", 0.25) * float64(time.Second))
	meter, err := ratemeter.New(reportEvery, ratePath)
	if err != nil {
		return err
	}
	defer meter.Close()

	skipColIndexes := map[int]bool{}
	for _, name := range opts.SkipCols() {
		for i, col := range names {
			if col == name {
				skipColIndexes[i] = true
			}
		}
	}
	// Skipped columns are dropped from each CSV row before conversion,
	// so the table column list the rows are matched against omits them.
	keptNames, keptTypes, keptCounters, keptPK := names[:0:0], types[:0:0], counters[:0:0], []int{}
	for i := range names {
		if skipColIndexes[i] {
			continue
		}
		if slices.Contains(pkIndexes, i) {
			keptPK = append(keptPK, len(keptNames))
		}
		keptNames, keptTypes, keptCounters = append(keptNames, names[i]), append(keptTypes, types[i]), append(keptCounters, counters[i])
	}
	names, types, pkIndexes, counters = keptNames, keptTypes, keptPK, keptCounters

	errPath := opts.Str("errfile")
	if errPath == "" {
		errPath = fmt.Sprintf("import_%s_%s.err", ks, table)
	}
	errFile, err := errorfile.Open(errPath, nil)
	if err != nil {
		return err
	}
	defer errFile.Close()

	converter := convert.New(converterConfig(opts))
	policy := retry.NewPolicy(opts.Int("maxattempts", 5))

	pkBytes := func(values []any) []byte {
		parts := make([]string, len(pkIndexes))
		for i, idx := range pkIndexes {
			parts[i] = fmt.Sprint(values[idx])
		}
		return []byte(strings.Join(parts, "\x00"))
	}

	wcfg := importcoord.WorkerConfig{
		Keyspace:           ks,
		Table:              table,
		Columns:            names,
		ColumnTypes:        types,
		PKIndexes:          pkIndexes,
		CounterColumns:     counters,
		SkipColIndexes:     skipColIndexes,
		PreparedStatements: opts.Bool("preparedstatements"),
		MaxBatchSize:       opts.Int("maxbatchsize", 20),
		MinBatchSize:       opts.Int("minbatchsize", 10),
		PKBytes:            pkBytes,
	}

	newWorker := func(inbound *ringchan.Link[importcoord.WorkItem], outbound *ringchan.Link[importcoord.Event]) *importcoord.Worker {
		return importcoord.NewWorker(wcfg, pool, converter, tm, policy, inbound, outbound)
	}

	coord := importcoord.NewCoordinator(importcoord.Config{
		NumProcesses:    opts.Int("numprocesses", 4),
		ChunkSize:       opts.Int("chunksize", 5000),
		IngestRate:      opts.Int("ingestrate", 200000),
		MaxParseErrors:  opts.Int("maxparseerrors", -1),
		MaxInsertErrors: opts.Int("maxinserterrors", -1),
	}, meter, errFile, newWorker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sourceOpts := csvio.SourceOptions{
		Header:   opts.Bool("header"),
		SkipRows: opts.Int("skiprows", 0),
		MaxRows:  opts.Int("maxrows", -1),
	}

	var rows <-chan csvio.Row
	var rowsErr <-chan error
	var numSources int

	if in == "-" {
		lines := make(chan string, 256)
		go feedStdin(ctx, os.Stdin, lines)
		reader := csvio.NewPipeReader(lines, sourceOpts)
		rows, rowsErr = reader.Rows(ctx)
		numSources = 1
	} else {
		reader, err := csvio.NewFilesReader(in, sourceOpts)
		if err != nil {
			return err
		}
		numSources = reader.NumSources()
		rows, rowsErr = reader.Rows(ctx, func(path string) (io.ReadCloser, error) { return os.Open(path) })
	}

	summary, err := coord.Run(ctx, rows, rowsErr, numSources, sourceOpts.SkipRows)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	logger.Info().
		Int("sent", summary.Sent).
		Int("received", summary.Received).
		Int("parse_errors", summary.ParseErrors).
		Int("insert_errors", summary.InsertErrors).
		Int("sources", summary.NumSources).
		Msg("import complete")
	if summary.ParseErrors > 0 || summary.InsertErrors > 0 {
		return fmt.Errorf("import finished with %d parse errors, %d insert errors", summary.ParseErrors, summary.InsertErrors)
	}
	return nil
}

// feedStdin reads the `\.`-terminated COPY FROM STDIN protocol of
// spec.md §4.9, forwarding each line to lines until EOF or a lone `\.`
// line is seen.
func feedStdin(ctx context.Context, r io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == `\.` {
			return
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

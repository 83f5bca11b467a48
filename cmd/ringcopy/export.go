package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sandinv/ringcopy/internal/convert"
	"github.com/sandinv/ringcopy/internal/copyopts"
	"github.com/sandinv/ringcopy/internal/csvio"
	"github.com/sandinv/ringcopy/internal/driver"
	"github.com/sandinv/ringcopy/internal/exportcoord"
	"github.com/sandinv/ringcopy/internal/ratemeter"
	"github.com/sandinv/ringcopy/internal/ring"
)

func newExportCmd() *cobra.Command {
	var ks, table, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "export a table (or token range) to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("ks", ks); err != nil {
				return err
			}
			if err := requireFlag("table", table); err != nil {
				return err
			}
			return runExport(ks, table, out)
		},
	}
	cmd.Flags().StringVar(&ks, "ks", "", "keyspace (required)")
	cmd.Flags().StringVar(&table, "table", "", "table (required)")
	cmd.Flags().StringVar(&out, "out", "-", `output file, or "-" for stdout`)
	return cmd
}

func runExport(ks, table, out string) error {
	layers, err := loadConfigLayers(configFlag, "to", ks, table)
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

	names, types, pkIndexes, _, err := parseColumns(columnsFlag)
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
	partitioner, err := parsePartitioner(partitionerFlag)
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

	header := opts.Bool("header")
	writer, err := csvio.NewWriter(out, csvio.WriterOptions{
		Header:        header,
		HeaderFields:  names,
		MaxOutputSize: opts.Int("maxoutputsize", -1),
	}, nil)
	if err != nil {
		return err
	}
	defer writer.Close()

	converter := convert.New(converterConfig(opts))

	beginToken, err := parseToken(opts.Str("begintoken"))
	if err != nil {
		return err
	}
	endToken, err := parseToken(opts.Str("endtoken"))
	if err != nil {
		return err
	}

	numProcesses := opts.Int("numprocesses", 4)

	coord := exportcoord.NewCoordinator(exportcoord.Config{
		Keyspace:           ks,
		Table:              table,
		Columns:            names,
		ColumnTypes:        types,
		PKColumn:           names[pkIndexes[0]],
		NumProcesses:       numProcesses,
		MaxRequests:        opts.Int("maxrequests", 6),
		PageSize:           opts.Int("pagesize", 1000),
		PageTimeoutSeconds: opts.Int("pagetimeout", 0),
		MaxAttempts:        opts.Int("maxattempts", 5),
		Partitioner:        partitioner,
		BeginToken:         beginToken,
		EndToken:           endToken,
	}, pool, converter, writer, meter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := coord.Run(ctx, tm)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	logger.Info().
		Int("ranges_total", summary.RangesTotal).
		Int("ranges_succeeded", summary.RangesSucceeded).
		Int("ranges_failed", summary.RangesFailed).
		Int64("rows_written", summary.RowsWritten).
		Msg("export complete")
	if summary.RangesFailed > 0 {
		return fmt.Errorf("export finished with %d failed ranges", summary.RangesFailed)
	}
	return nil
}

func dumpConfig(opts *copyopts.Options) error {
	out := map[string]any{
		"copy":         opts.Copy,
		"quote":        opts.Dialect.Quote,
		"escape":       opts.Dialect.Escape,
		"delimiter":    opts.Dialect.Delimiter,
		"unrecognized": opts.Unrecognized,
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(out)
}

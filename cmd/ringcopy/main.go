// Command ringcopy bridges CSV files and a partitioned, token-ring
// wide-column store: export (table or token range -> CSV) and import
// (CSV -> table, batched by replica group, retried on transient
// failure), per spec.md.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	connectFlag     string
	copyOptFlags    []string
	configFlag      string
	dumpConfigFlag  bool
	columnsFlag     string
	partitionerFlag string
	localDCFlag     string
	verboseFlag     bool
)

func main() {
	root := &cobra.Command{
		Use:   "ringcopy",
		Short: "bulk bidirectional bridge between CSV files and a token-ring database",
	}
	root.PersistentFlags().StringVar(&connectFlag, "connect", "", "database connection string (required)")
	root.PersistentFlags().StringArrayVar(&copyOptFlags, "copy-opt", nil, "copy option override, key=value (repeatable)")
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to an INI overlay config file")
	root.PersistentFlags().BoolVar(&dumpConfigFlag, "dump-config", false, "print the fully merged copy options as YAML and exit")
	root.PersistentFlags().StringVar(&columnsFlag, "columns", "", `column list, "name:type[:pk][:counter]" comma-separated (required)`)
	root.PersistentFlags().StringVar(&partitionerFlag, "partitioner", "murmur3", "ring partitioner: murmur3, random, or none")
	root.PersistentFlags().StringVar(&localDCFlag, "localdc", "dc1", "local datacenter name used to filter replicas")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug-level logging")

	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("ringcopy")
	}
}

func setupLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verboseFlag {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func requireFlag(name, val string) error {
	if val == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

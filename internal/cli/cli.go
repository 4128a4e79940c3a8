// Package cli implements the command-line interface for tabular-index.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime"

	"github.com/eunmann/tabular-index/internal/logctx"
	"github.com/eunmann/tabular-index/pkg/fileutil"
	"github.com/eunmann/tabular-index/pkg/logging"
	"github.com/eunmann/tabular-index/pkg/tabular"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tabular-index <command> [options] <file.csv>\ncommands: build, header")
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:])
	case "header":
		return runHeader(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// byteFlag parses a single-character flag value.
func byteFlag(name, val string) (byte, error) {
	if len(val) != 1 {
		return 0, fmt.Errorf("--%s must be a single character, got %q", name, val)
	}
	return val[0], nil
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	outDir := fs.String("out", "", "output directory for index files")
	workers := fs.Int("workers", runtime.NumCPU(), "parallel scan workers")
	chunkBytes := fs.Int("chunk-bytes", 1<<20, "per-worker read buffer size")
	delim := fs.String("delim", ",", "field delimiter (single character)")
	quote := fs.String("quote", `"`, "quote character (single character)")
	skipFaulty := fs.Bool("skip-faulty", false, "drop rows with a wrong field count instead of failing")
	doTranspose := fs.Bool("transpose", false, "run the dictionary-encoding transpose after indexing")
	groupCols := fs.Int("group-cols", 100000, "columns per transpose group")
	writeColumns := fs.Bool("write-columns", false, "persist encoded columns and dictionaries")
	rawShards := fs.Bool("raw-shards", false, "write uncompressed transient shard files")
	debug := fs.Bool("debug", false, "debug logging")
	human := fs.Bool("human", false, "human-friendly console logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return errors.New("--out is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one input CSV path is required")
	}
	csvPath := fs.Arg(0)
	if !fileutil.Exists(csvPath) {
		return fmt.Errorf("input not found: %s", csvPath)
	}

	d, err := byteFlag("delim", *delim)
	if err != nil {
		return err
	}
	q, err := byteFlag("quote", *quote)
	if err != nil {
		return err
	}

	logging.Init(*debug, *human)
	log := logging.L()
	ctx := logctx.WithLogger(context.Background(), *log)

	td, err := tabular.NewWithConfig(csvPath, *outDir, tabular.Config{
		Delimiter:       d,
		Quote:           q,
		SkipFaultyRows:  *skipFaulty,
		NumWorkers:      *workers,
		ChunkBytes:      *chunkBytes,
		ColumnsPerGroup: *groupCols,
		CompressShards:  !*rawShards,
		WriteColumns:    *writeColumns,
	})
	if err != nil {
		return err
	}
	defer td.Close()

	if err := td.ParseHeaderRow(); err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	cols, _ := td.GetColumnCount()
	log.Info().Uint32("columns_count", cols).Msg("header indexed")

	if err := td.FindRowOffsets(ctx); err != nil {
		return fmt.Errorf("index rows: %w", err)
	}
	rows, _ := td.GetRowCount()
	log.Info().Uint32("rows_count", rows).Msg("rows indexed")

	if *doTranspose {
		if err := td.MapIntTranspose(ctx); err != nil {
			return fmt.Errorf("transpose: %w", err)
		}
	}

	if err := td.WriteManifest(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	fmt.Printf("indexed %d columns, %d rows into %s\n", cols, rows, *outDir)
	return nil
}

func runHeader(args []string) error {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	outDir := fs.String("out", "", "output directory holding the index files")
	col := fs.Int("i", -1, "print the header at this column index")
	name := fs.String("name", "", "print the column index of this header name")
	quote := fs.String("quote", `"`, "quote character (single character)")
	debug := fs.Bool("debug", false, "debug logging")
	human := fs.Bool("human", false, "human-friendly console logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outDir == "" {
		return errors.New("--out is required")
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one input CSV path is required")
	}

	q, err := byteFlag("quote", *quote)
	if err != nil {
		return err
	}

	logging.Init(*debug, *human)

	cfg := tabular.DefaultConfig()
	cfg.Quote = q
	td, err := tabular.NewWithConfig(fs.Arg(0), *outDir, cfg)
	if err != nil {
		return err
	}
	defer td.Close()

	switch {
	case *name != "":
		idx, err := td.ColumnIndex(*name)
		if err != nil {
			return err
		}
		fmt.Println(idx)
	case *col >= 0:
		h, err := td.GetHeader(*col)
		if err != nil {
			return err
		}
		fmt.Println(h)
	default:
		n, err := td.GetColumnCount()
		if err != nil {
			return err
		}
		fmt.Println(n)
	}
	return nil
}

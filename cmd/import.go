package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/config"
	"github.com/fullcount-labs/athlete-cli/internal/identity"
	"github.com/fullcount-labs/athlete-cli/internal/ingest"
)

var (
	importInteractive    bool
	importCheckAuthority bool
	importConcurrency    int
	importFromFTP        bool
)

var importCmd = &cobra.Command{
	Use:   "import <source-system> [file...]",
	Short: "Import instrument export files",
	Long:  "Parses export files for a configured source system, resolves each row to a canonical athlete, and writes session facts. With --from-ftp the files are pulled from the configured FTP drop instead.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sourceName := args[0]
		files := args[1:]

		sources, err := config.LoadSources(cfg.Ingest.SourcesFile)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var intake identity.Intake
		if importInteractive {
			intake = identity.NewTerminalIntake(os.Stdin, os.Stdout)
		}
		resolver := identity.NewResolver(st, newAuthority(cfg), intake)
		loader := ingest.NewLoader(st, resolver, sources)

		if importFromFTP {
			files, err = pullFromFTP(cmd, files)
			if err != nil {
				return err
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no files to import")
		}

		concurrency := importConcurrency
		if concurrency == 0 {
			concurrency = cfg.Resolve.Concurrency
		}
		opts := identity.Options{
			Interactive:    importInteractive,
			CheckAuthority: importCheckAuthority || cfg.Resolve.CheckAuthority,
			Concurrency:    concurrency,
		}

		var total ingest.Report
		for _, file := range files {
			report, err := loader.LoadFile(ctx, sourceName, file, opts)
			if err != nil {
				return err
			}
			total.Rows += report.Rows
			total.Skipped += report.Skipped
			total.Resolved += report.Resolved
			total.Created += report.Created
			total.Unmatched += report.Unmatched
			total.Facts += report.Facts
		}

		fmt.Printf("rows=%d resolved=%d created=%d unmatched=%d skipped=%d facts=%d\n",
			total.Rows, total.Resolved, total.Created, total.Unmatched, total.Skipped, total.Facts)
		return nil
	},
}

// pullFromFTP downloads the named files (or everything when none named)
// from the configured drop into a temp directory.
func pullFromFTP(cmd *cobra.Command, names []string) ([]string, error) {
	ctx := cmd.Context()
	drop := ingest.NewFTPDrop(cfg.Ingest.FTP)

	if len(names) == 0 {
		var err error
		names, err = drop.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	dir, err := os.MkdirTemp("", "athlete-import-*")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, name := range names {
		local, err := drop.Download(ctx, name, dir)
		if err != nil {
			return nil, err
		}
		zap.L().Info("downloaded export", zap.String("file", name))
		files = append(files, local)
	}
	return files, nil
}

func init() {
	importCmd.Flags().BoolVarP(&importInteractive, "interactive", "i", false, "prompt before creating new athletes")
	importCmd.Flags().BoolVar(&importCheckAuthority, "check-authority", false, "consult the app database before minting new ids")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 0, "parallel resolution workers (default from config)")
	importCmd.Flags().BoolVar(&importFromFTP, "from-ftp", false, "pull files from the configured FTP drop")
	rootCmd.AddCommand(importCmd)
}

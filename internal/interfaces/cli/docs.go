package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/molecule-search/internal/application/document"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/redis"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
)

// openStore is replaced in tests.
var openStore = OpenStore

func newDocsCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Inspect and maintain the notebook PDF bucket",
	}
	cmd.AddCommand(newDocsListCmd(opts), newTagCmd(opts))
	return cmd
}

func newDocsListCmd(opts *RootOptions) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored notebook PDFs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log, true)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg.Storage, log)
			if err != nil {
				return err
			}
			svc := document.NewService(store, log, document.WithDefaultPrefix(cfg.Storage.Prefix))
			docs, err := svc.ListDocuments(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{d.Name, strconv.FormatInt(d.Size, 10), d.NotebookID})
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"NAME", "SIZE", "NOTEBOOK_ID"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "object name prefix (default: storage.prefix)")
	return cmd
}

func newTagCmd(opts *RootOptions) *cobra.Command {
	var (
		prefix  string
		workers int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "tag-notebook-ids",
		Short: "Set notebook_id metadata on every PDF from its file name",
		Long: "tag-notebook-ids sets the notebook_id custom metadata of every object under\n" +
			"the prefix to the object's file name without extension, so search results\n" +
			"can be linked back to notebooks. When redis is enabled the run holds a lock\n" +
			"so two runs never overlap.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log, true)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg.Storage, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			svcOpts := []document.Option{
				document.WithDefaultPrefix(cfg.Storage.Prefix),
				document.WithTagProgress(func(r document.TagResult) {
					if r.Err != nil {
						fmt.Fprintf(out, "[%d/%d] FAILED %s: %v\n", r.Done, r.Total, r.Name, r.Err)
						return
					}
					fmt.Fprintf(out, "[%d/%d] %s -> %s\n", r.Done, r.Total, r.Name, r.NotebookID)
				}),
			}
			if cfg.Redis.Enabled {
				rc, err := redis.NewClient(cfg.Redis, log)
				if err != nil {
					log.Warn("redis unavailable, running without a job lock", logging.Err(err))
				} else {
					defer rc.Close()
					svcOpts = append(svcOpts, document.WithJobLock(func(name string) document.Locker {
						return rc.NewMutex(name, redis.WithLockTTL(tagLockTTL), redis.WithWatchdog())
					}))
				}
			}

			svc := document.NewService(store, log, svcOpts...)
			summary, err := svc.TagNotebookIDs(cmd.Context(), prefix, workers)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, summary)
			}
			fmt.Fprintf(out, "\nprocessed %d of %d objects, %d errors\n", summary.Processed, summary.Total, summary.Errors)
			for _, name := range summary.Failed {
				fmt.Fprintf(out, "  failed: %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "object name prefix (default: storage.prefix)")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent metadata updates")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

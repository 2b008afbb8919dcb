package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the document index used for retrieval",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Index the documents under a directory, replacing the previous index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return fmt.Errorf("failed to get dir flag: %w", err)
			}

			cfg, log, err := loadConfig(cmd, os.Stderr)
			if err != nil {
				return err
			}
			if cfg.Index.Path == "" {
				return errors.New("--index-path is required")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			client, err := newLLMClient(log, cfg)
			if err != nil {
				return err
			}
			idx, err := openIndex(log, cfg, client)
			if err != nil {
				return err
			}
			defer idx.Close()

			stats, err := idx.Build(ctx, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %d files into %s\n", stats.Chunks, stats.Files, cfg.Index.Path)
			return nil
		},
	}
	buildCmd.Flags().String("dir", "", "directory of documents to index")
	_ = buildCmd.MarkFlagRequired("dir")

	cmd.AddCommand(buildCmd)
	return cmd
}

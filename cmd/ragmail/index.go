package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and store the policy document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Source.DocumentPath
			if file != "" {
				path = file
			}

			svc, err := a.indexingService(cmd.Context())
			if err != nil {
				return err
			}

			report, err := svc.Run(cmd.Context(), path)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d/%d chunks from %s in %s\n",
				report.Indexed, report.Total, path, report.Duration.Round(time.Millisecond))
			for _, f := range report.Failures {
				fmt.Fprintf(out, "  %s: %v\n", f.ChunkID, f.Err)
			}
			if err != nil {
				return err
			}
			if report.Failed() > 0 {
				return fmt.Errorf("%d of %d chunks failed", report.Failed(), report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Document to index (default: source.document_path)")
	return cmd
}

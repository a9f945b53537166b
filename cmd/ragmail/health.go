package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	healthuc "github.com/kailas-cloud/ragmail/internal/usecase/health"
)

type healthOutput struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Errors map[string]string `json:"errors,omitempty"`
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the vector store and the embedding provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := a.healthService(cmd.Context()).Check(cmd.Context())

			out := healthOutput{
				Status: string(report.Status),
				Checks: make(map[string]string, len(report.Checks)),
				Errors: report.Errors,
			}
			for k, v := range report.Checks {
				out.Checks[k] = string(v)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if report.Status != healthuc.Healthy {
				return errUnhealthy
			}
			return nil
		},
	}
}

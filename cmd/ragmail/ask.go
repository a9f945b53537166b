package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question from the indexed document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.answerService(cmd.Context())
			if err != nil {
				return err
			}

			ans, err := svc.Answer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ans.Text)
			if showContext {
				fmt.Fprintln(out)
				for i, m := range ans.Matches {
					fmt.Fprintf(out, "[%d] %s score=%.4f\n", i+1, m.ID, m.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the retrieved chunk ids and scores")
	return cmd
}

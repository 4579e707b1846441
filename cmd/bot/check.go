package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"max.ks1230/beancount-bot/internal/model/ledger"
)

func newCheckCommand() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the transaction files of a ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			problems, err := ledger.Check(root)
			if err != nil {
				return err
			}
			for _, p := range problems {
				fmt.Fprintln(cmd.OutOrStdout(), p.String())
			}
			if len(problems) > 0 {
				return errors.Errorf("%d problem(s) found", len(problems))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "Ledger root directory")
	return cmd
}

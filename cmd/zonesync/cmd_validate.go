package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clearskydns/zonesync/internal/compile"
	"github.com/clearskydns/zonesync/pkg/zone"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate zone documents without contacting any provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := buildStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			reg, err := zone.Load(ctx, store, zone.WithLogger(logger))
			if err != nil {
				return err
			}

			// Compiling exercises every cross-document check: tunnel
			// references, proxy constraints, provider consistency.
			if _, err := compile.Compile(reg); err != nil {
				return err
			}

			for _, warning := range reg.Warnings() {
				fmt.Fprintln(cmd.OutOrStdout(), "warning:", warning)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d zone(s) valid\n", reg.Len())
			return nil
		},
	}
}

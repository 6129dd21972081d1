package cmd

import (
	"fmt"

	"github.com/pqbench/pqbench/internal/config"
	"github.com/pqbench/pqbench/internal/run"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			// Resolving commands catches unknown algorithms too.
			quantities, err := run.BuildQuantities(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("%s: ok (%d quantities, mode %s, repeats %d)\n",
				cfgFile, len(quantities), cfg.Mode, cfg.Repeats)
			return nil
		},
	}
}

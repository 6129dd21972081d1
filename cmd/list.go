package cmd

import (
	"fmt"

	"github.com/pqbench/pqbench/internal/config"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured quantities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Subject: %s\n\nQuantities:\n", cfg.Subject.Image)
			for _, q := range cfg.Quantities {
				if q.Algorithm != "" {
					fmt.Printf("  - %s [%s, %s]\n", q.Name, q.Family, q.Algorithm)
				} else {
					fmt.Printf("  - %s [%s]\n", q.Name, q.Family)
				}
			}
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blazeapi/blaze/internal/config"
)

func newValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an endpoints configuration file without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg = config.FromEnv()
			}
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			fmt.Println("Configuration is valid.")
			fmt.Println()
			fmt.Println(cfg.Summary())
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to an endpoints configuration file")
	return cmd
}

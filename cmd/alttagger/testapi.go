package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chriskillpack/alttagger/describer"
)

func newTestAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-api",
		Short: "Check that the configured provider is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CallTimeout)
			defer cancel()

			name := cfg.Provider
			if p, ok := describer.LookupProvider(cfg.Provider); ok {
				name = p.DisplayName
			}
			if err := a.tagger.IsHealthy(ctx); err != nil {
				return fmt.Errorf("%s is not responding: %w", name, err)
			}
			fmt.Printf("%s connection OK (model %s)\n", name, cfg.ResolvedModel())
			return nil
		},
	}
}

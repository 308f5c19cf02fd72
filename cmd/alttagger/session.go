package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset the processing session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a session can be resumed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.proc.CheckSession(ctx)
			if err != nil {
				return err
			}
			if !r.HasSession {
				fmt.Printf("No session in progress, %d images need alt text\n", r.Remaining)
				return nil
			}
			fmt.Printf("Session %q: %d/%d images processed, %d remaining\n", cfg.Session, r.Processed, r.SessionTotal, r.Remaining)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the session so the next run starts counting again",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.proc.StartFreshSession(ctx); err != nil {
				return err
			}
			fmt.Printf("Session %q reset\n", cfg.Session)
			return nil
		},
	})

	return cmd
}

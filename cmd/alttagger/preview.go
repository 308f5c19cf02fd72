package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chriskillpack/alttagger/internal/processing"
)

func newPreviewCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Describe the first few pending images without saving",
		Long: `Describes the first --count pending images with the configured provider and
prints the results. Nothing is written to the database and the session is not
touched, so preview is a safe way to try out a prompt or model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.proc.Preview(ctx, cfg.Step(), count)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No images need alt text")
				return nil
			}
			for _, r := range results {
				fmt.Printf("%d %s\n", r.ID, filepath.Base(r.Path))
				if r.Error != "" {
					fmt.Printf("  error: %s\n", r.Error)
				} else {
					fmt.Printf("  %s\n", r.AltText)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", processing.DefaultPreviewCount, "Number of images to describe")

	return cmd
}

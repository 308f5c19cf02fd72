package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chriskillpack/alttagger"
)

func newScanCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Add images in the library to the database",
		Long: `Walks the library directory and records every JPEG, PNG, GIF and WebP file
that is not already known. Existing images and their alt text are left alone.`,
		Example: `  alttagger scan --library ~/Pictures`,
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

			images, err := alttagger.FindImages(a.lib.Root())
			if err != nil {
				return err
			}
			fmt.Printf("Found %d images on disk\n", len(images))

			added, err := a.db.InsertImagePaths(ctx, images, batchSize)
			if err != nil {
				return err
			}

			fmt.Printf("Added %d new images\n", added)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "insert-batch", 100, "Rows per INSERT statement")

	return cmd
}

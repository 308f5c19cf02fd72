package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chriskillpack/alttagger"
)

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many images have alt text",
		Example: `  alttagger stats
  alttagger stats --format json`,
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

			s, err := a.db.Stats(ctx)
			if err != nil {
				return err
			}
			return writeStats(os.Stdout, format, s)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json, yaml or csv")

	return cmd
}

func writeStats(w io.Writer, format string, s alttagger.Stats) error {
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Total images\t%d\n", s.Total)
		fmt.Fprintf(tw, "With alt text\t%d\n", s.WithAlt)
		fmt.Fprintf(tw, "Without alt text\t%d\n", s.WithoutAlt)
		fmt.Fprintf(tw, "Coverage\t%.1f%%\n", s.Percentage)
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(s)
	case "csv":
		cw := csv.NewWriter(w)
		cw.Write([]string{"total", "with_alt", "without_alt", "percentage"})
		cw.Write([]string{
			strconv.Itoa(s.Total),
			strconv.Itoa(s.WithAlt),
			strconv.Itoa(s.WithoutAlt),
			strconv.FormatFloat(s.Percentage, 'f', 1, 64),
		})
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown format %q, use table, json, yaml or csv", format)
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ey-asu-rnd/streamguard/internal/monitor"
)

type planFlags struct {
	records  uint64
	formats  string
	path     string
	lines    int
	noStrict bool
}

func newPlanCmd(g *globalFlags) *cobra.Command {
	f := &planFlags{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Estimate disk, memory and time for a run before starting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			records := f.records
			if !cmd.Flags().Changed("records") && cfg.Pipeline.TotalRecords > 0 {
				records = uint64(cfg.Pipeline.TotalRecords)
			}
			formatList := f.formats
			if formatList == "" {
				formatList = cfg.Sink.Format
			}
			formats, err := monitor.ParseFormats(formatList)
			if err != nil {
				return err
			}
			path := f.path
			if path == "" {
				path = cfg.Sink.Dir
			}
			lines := f.lines
			if lines == 0 {
				lines = cfg.Pipeline.LinesPerEntry
			}

			in := monitor.PlanInput{
				Entries:    records,
				Formats:    formats,
				Compressed: cfg.Sink.Compression != "" && cfg.Sink.Compression != "none",
				AvgLines:   lines,
				Path:       nearestExisting(path),
				MinFreeMB:  cfg.Guard.Disk.HardLimitMB + cfg.Guard.Disk.ReserveMB,
			}
			if cfg.Guard.Memory.Enabled {
				in.MemoryLimitMB = cfg.Guard.Memory.HardLimitMB
			}
			if cfg.RateLimit.Enabled {
				in.Rate = cfg.RateLimit.Rate
			}

			plan := monitor.CalculatePlan(in, nil)
			fmt.Fprint(cmd.OutOrStdout(), plan.Format())

			if !plan.Sufficient() && !f.noStrict {
				return errors.New("insufficient resources for the planned run")
			}
			return nil
		},
	}

	cmd.Flags().Uint64VarP(&f.records, "records", "n", 1_000_000, "records to plan for")
	cmd.Flags().StringVar(&f.formats, "formats", "", "comma separated output formats (csv, json, parquet, segment)")
	cmd.Flags().StringVar(&f.path, "path", "", "output directory (default: sink dir)")
	cmd.Flags().IntVar(&f.lines, "lines", 0, "average lines per record")
	cmd.Flags().BoolVar(&f.noStrict, "no-strict", false, "exit zero even when resources are insufficient")
	return cmd
}

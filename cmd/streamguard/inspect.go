package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ey-asu-rnd/streamguard/internal/config"
	"github.com/ey-asu-rnd/streamguard/internal/constants"
	"github.com/ey-asu-rnd/streamguard/internal/record"
	"github.com/ey-asu-rnd/streamguard/internal/retention"
	"github.com/ey-asu-rnd/streamguard/internal/sink"
)

func newInspectCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect DIR",
		Short: "Read sink output back and report record counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			var (
				records []record.Record
				err     error
			)
			switch format {
			case constants.SinkFormatSegment:
				records, err = sink.ReadSegments(dir)
			case constants.SinkFormatParquet:
				records, err = sink.ReadParquetDir(dir)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}

			usage, err := retention.New(dir, config.RetentionConfig{}).Usage()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printInspection(out, dir, records)
			fmt.Fprint(out, retention.FormatDiskUsage(usage))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", constants.SinkFormatSegment, "sink format (segment, parquet)")
	return cmd
}

func printInspection(w io.Writer, dir string, records []record.Record) {
	var anomalies, unbalanced, quality, lines int
	for i := range records {
		r := &records[i]
		if r.IsAnomaly {
			anomalies++
		}
		if !r.Balanced() {
			unbalanced++
		}
		if r.QualityIssue != "" {
			quality++
		}
		lines += len(r.Lines)
	}

	fmt.Fprintf(w, "Directory:       %s\n", dir)
	fmt.Fprintf(w, "Records:         %d\n", len(records))
	fmt.Fprintf(w, "Lines:           %d\n", lines)
	fmt.Fprintf(w, "Anomalies:       %d\n", anomalies)
	fmt.Fprintf(w, "Unbalanced:      %d\n", unbalanced)
	fmt.Fprintf(w, "Quality Issues:  %d\n", quality)
}

// nearestExisting walks up from path to the first directory that exists, so
// disk readings work before the output directory is created.
func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

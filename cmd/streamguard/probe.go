package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ey-asu-rnd/streamguard/internal/platform"
)

func newProbeCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show which resource readings this platform supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printProbe(cmd.OutOrStdout(), platform.Default(), nearestExisting(path))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", ".", "filesystem path for the disk reading")
	return cmd
}

func printProbe(w io.Writer, p platform.Probe, path string) {
	caps := p.Capabilities()
	fmt.Fprintf(w, "Capabilities: disk=%t memory=%t cpu=%t\n", caps.Disk, caps.Memory, caps.CPU)

	if usage, err := p.DiskUsage(path); err != nil {
		fmt.Fprintf(w, "Disk (%s): unavailable (%v)\n", path, err)
	} else {
		fmt.Fprintf(w, "Disk (%s): %d MB available of %d MB\n",
			path, usage.AvailableBytes>>20, usage.TotalBytes>>20)
	}

	if rss, err := p.ResidentMemory(); err != nil {
		fmt.Fprintf(w, "Memory: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Memory: %d MB resident\n", rss>>20)
	}
	if total, err := p.TotalMemory(); err == nil {
		fmt.Fprintf(w, "System memory: %d MB\n", total>>20)
	}

	if times, err := p.CPUTimes(); err != nil {
		fmt.Fprintf(w, "CPU: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(w, "CPU: %.0fs total, %.0fs idle since boot\n", times.Total, times.Idle)
	}
}

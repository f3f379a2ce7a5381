package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/netcore-rdp/rdportal/internal/domain/reachability"
)

var probeCmd = &cobra.Command{
	Use:   "probe <host>",
	Short: "Check whether a host accepts remote-desktop connections",
	Long: `Open a TCP connection to the host's remote-desktop port and report
whether it was accepted. Exits non-zero when the host is unreachable.

Examples:
  rdportal probe 10.0.0.5
  rdportal probe 10.0.0.5 --port 3390 --timeout 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

var (
	probePort    int
	probeTimeout time.Duration
)

func init() {
	probeCmd.Flags().IntVar(&probePort, "port", reachability.DefaultPort, "remote-desktop port")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", reachability.DefaultTimeout, "connect timeout")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	host := args[0]
	prober := reachability.NewProber(
		reachability.WithPort(probePort),
		reachability.WithTimeout(probeTimeout),
	)

	start := time.Now()
	reachable := prober.Probe(cmd.Context(), host)
	elapsed := time.Since(start).Round(time.Millisecond)

	if !reachable {
		return fmt.Errorf("%s:%d is not reachable (after %s)", host, probePort, elapsed)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:%d reachable (%s)\n", host, probePort, elapsed)
	return nil
}

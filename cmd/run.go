package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/nfd/internal/config"
	"firestige.xyz/nfd/internal/log"
	"firestige.xyz/nfd/internal/metrics"
	"firestige.xyz/nfd/internal/runtime"
	"firestige.xyz/nfd/internal/source"
	"firestige.xyz/nfd/internal/symtab"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture frames and bind them into the symbol table",
	Long: `Run the receive-process loop in the foreground.

Each IPv4 frame read from the interface or capture file is decoded and bound
as the current frame. Unsupported frames are skipped. The loop ends at the
end of a capture file, after --max-frames frames, or on SIGINT/SIGTERM.

Examples:
  nfd run -c /etc/nfd/nfd.yml -i eth0
  nfd run -r trace.pcapng -n 1000`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig(runInterface, runPcapFile, runMaxFrames)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := runSession(ctx, cfg, cmd.OutOrStdout()); err != nil {
			exitWithError("run failed", err)
		}
	},
}

var (
	runInterface string
	runPcapFile  string
	runMaxFrames int
)

func init() {
	runCmd.Flags().StringVarP(&runInterface, "interface", "i", "", "capture on this interface")
	runCmd.Flags().StringVarP(&runPcapFile, "pcap", "r", "", "read frames from a pcap/pcapng file")
	runCmd.Flags().IntVarP(&runMaxFrames, "max-frames", "n", 0, "stop after this many frames (0 = unlimited)")
	runCmd.MarkFlagsMutuallyExclusive("interface", "pcap")
}

func runSession(ctx context.Context, cfg *config.GlobalConfig, out io.Writer) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	table := symtab.New(symtab.WithFrameID(cfg.Runtime.FrameIdentifier))
	if err := runtime.Seed(table, cfg.Symbols); err != nil {
		return fmt.Errorf("failed to seed symbols: %w", err)
	}

	src, err := source.Open(cfg.Capture)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			src.Close()
			return err
		}
		defer srv.Stop(context.Background())
	}

	sess := runtime.New(runtime.Config{
		Source:               src,
		SourceLabel:          sourceLabel(cfg.Capture),
		Table:                table,
		MaxFrames:            cfg.Capture.MaxFrames,
		StopOnNotImplemented: cfg.Runtime.StopOnNotImplemented,
	})
	defer sess.Close()

	if err := sess.Run(ctx); err != nil {
		return err
	}

	st := sess.Stats()
	fmt.Fprintf(out, "session %s: %d received, %d extracted, %d skipped (%d not implemented)\n",
		sess.ID(), st.Received, st.Extracted, st.Skipped(), st.NotImplemented)
	return nil
}

func sourceLabel(c config.CaptureConfig) string {
	if c.PcapFile != "" {
		return c.PcapFile
	}
	return c.Interface
}

// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/nfd/internal/config"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nfd",
	Short: "nfd - network filter description runtime",
	Long: `nfd keeps a symbol table of typed network values (IP networks, integers,
rules, maps and sets) and binds the facts of each captured IPv4 frame into it.

Frames come from a live Ethernet interface or a pcap/pcapng file. Symbols can
be declared up front in the configuration file.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and NFD_* environment only when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the global config and applies command-line overrides.
func loadConfig(iface, pcapFile string, maxFrames int) (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if iface != "" {
		cfg.Capture.Interface = iface
		cfg.Capture.PcapFile = ""
	}
	if pcapFile != "" {
		cfg.Capture.PcapFile = pcapFile
		cfg.Capture.Interface = ""
	}
	if maxFrames > 0 {
		cfg.Capture.MaxFrames = maxFrames
	}
	return cfg, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

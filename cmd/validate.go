package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/nfd/internal/runtime"
	"firestige.xyz/nfd/internal/symtab"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without capturing.

Every declared symbol literal is parsed and built into a scratch table.

Examples:
  nfd validate -c /etc/nfd/nfd.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if configFile == "" {
			exitWithError("--config is required", nil)
		}
		if err := runValidate(cmd.OutOrStdout()); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(out io.Writer) error {
	cfg, err := loadConfig("", "", 0)
	if err != nil {
		return err
	}

	table := symtab.New(symtab.WithFrameID(cfg.Runtime.FrameIdentifier))
	if err := runtime.Seed(table, cfg.Symbols); err != nil {
		return err
	}

	fmt.Fprintf(out, "VALID: %s - %d symbol(s)\n", configFile, table.Len())
	for id, v := range table.All() {
		fmt.Fprintf(out, "  %-16s %-6s %s\n", id, v.Kind(), v)
	}
	return nil
}

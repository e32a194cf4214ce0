package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/nfd/internal/config"
	"firestige.xyz/nfd/internal/core"
	"firestige.xyz/nfd/internal/log"
	"firestige.xyz/nfd/internal/runtime"
	"firestige.xyz/nfd/internal/source"
	"firestige.xyz/nfd/internal/symtab"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the symbol table as YAML",
	Long: `Seed the symbol table from the configuration file, optionally replay a
capture file into it, and print every binding as YAML.

Examples:
  nfd inspect -c nfd.yml
  nfd inspect -c nfd.yml -r trace.pcap -n 1`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig("", inspectPcapFile, inspectMaxFrames)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := runInspect(cmd.Context(), cfg, cmd.OutOrStdout()); err != nil {
			exitWithError("inspect failed", err)
		}
	},
}

var (
	inspectPcapFile  string
	inspectMaxFrames int
)

func init() {
	inspectCmd.Flags().StringVarP(&inspectPcapFile, "pcap", "r", "", "replay frames from a pcap/pcapng file")
	inspectCmd.Flags().IntVarP(&inspectMaxFrames, "max-frames", "n", 0, "replay at most this many frames")
}

type inspectDump struct {
	Session string       `yaml:"session,omitempty"`
	Stats   *statsDump   `yaml:"stats,omitempty"`
	Symbols []symbolDump `yaml:"symbols"`
}

type statsDump struct {
	Received       uint64 `yaml:"received"`
	Extracted      uint64 `yaml:"extracted"`
	Unsupported    uint64 `yaml:"unsupported"`
	NotImplemented uint64 `yaml:"not_implemented"`
}

type symbolDump struct {
	ID    string      `yaml:"id"`
	Kind  string      `yaml:"kind"`
	Value interface{} `yaml:"value"`
}

type entryDump struct {
	Key   interface{} `yaml:"key"`
	Value interface{} `yaml:"value"`
}

func runInspect(ctx context.Context, cfg *config.GlobalConfig, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	table := symtab.New(symtab.WithFrameID(cfg.Runtime.FrameIdentifier))
	if err := runtime.Seed(table, cfg.Symbols); err != nil {
		return fmt.Errorf("failed to seed symbols: %w", err)
	}

	var dump inspectDump
	if cfg.Capture.PcapFile != "" {
		src, err := source.OpenFile(cfg.Capture.PcapFile)
		if err != nil {
			return err
		}
		sess := runtime.New(runtime.Config{
			Source:      src,
			SourceLabel: cfg.Capture.PcapFile,
			Table:       table,
			MaxFrames:   cfg.Capture.MaxFrames,
		})
		defer sess.Close()
		if err := sess.Run(ctx); err != nil {
			return err
		}
		st := sess.Stats()
		dump.Session = sess.ID()
		dump.Stats = &statsDump{
			Received:       st.Received,
			Extracted:      st.Extracted,
			Unsupported:    st.Unsupported,
			NotImplemented: st.NotImplemented,
		}
	}

	dump.Symbols = dumpTable(table)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(dump); err != nil {
		return fmt.Errorf("failed to encode symbol table: %w", err)
	}
	return enc.Close()
}

// dumpTable renders every binding in identifier order.
func dumpTable(t *symtab.Table) []symbolDump {
	out := make([]symbolDump, 0, t.Len())
	for id, v := range t.All() {
		out = append(out, symbolDump{ID: id, Kind: v.Kind().String(), Value: dumpValue(v)})
	}
	return out
}

func dumpValue(v core.Variable) interface{} {
	switch v := v.(type) {
	case *core.Set:
		elems := make([]interface{}, 0, v.Len())
		for e := range v.All() {
			elems = append(elems, dumpValue(e))
		}
		return elems
	case *core.Map:
		entries := make([]entryDump, 0, v.Len())
		for k, val := range v.All() {
			entries = append(entries, entryDump{Key: dumpValue(k), Value: dumpValue(val)})
		}
		return entries
	case core.Packet:
		fields := make(map[string]string, v.Fields.Len())
		for f, info := range v.Fields.All() {
			fields[f.String()] = info.String()
		}
		return fields
	}
	return v.String()
}

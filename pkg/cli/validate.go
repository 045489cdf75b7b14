package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/skylink-labs/acarsrouter/pkg/config"
	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// ValidateOutput is the JSON form of a successful validation.
type ValidateOutput struct {
	Valid    bool                           `json:"valid"`
	Families map[string]config.FamilyConfig `json:"families"`
	Sources  map[string]string              `json:"sources"`
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var rf *routerFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without starting the router",
		Long: `Load the configuration from every source, validate it, and print the
sinks and sources each family would start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g, rf)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return printValidateJSON(cmd.OutOrStdout(), cfg)
			}
			printSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	rf = addRouterFlags(cmd)
	return cmd
}

func printValidateJSON(w io.Writer, cfg *config.Config) error {
	out := ValidateOutput{
		Valid:    true,
		Families: make(map[string]config.FamilyConfig),
		Sources:  cfg.Sources,
	}
	for _, f := range message.Families() {
		out.Families[f.Topic()] = cfg.Family(f)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "configuration is valid")
	for _, f := range message.Families() {
		fc := cfg.Family(f)
		fmt.Fprintf(w, "\n%s (topic %q):\n", f, cfg.Topic(f))
		lists := fc.Lists()
		empty := true
		for _, key := range config.ListKeys {
			if !config.ShouldStart(lists[key]) {
				continue
			}
			empty = false
			fmt.Fprintf(w, "  %-15s %v\n", key, lists[key])
		}
		if empty {
			fmt.Fprintln(w, "  (nothing configured)")
		}
	}

	fmt.Fprintf(w, "\nqueue_size=%d max_udp_packet_size=%d serve_host=%s reassembly_window=%s\n",
		cfg.QueueSize, cfg.MaxUDPPacketSize, cfg.ServeHost, cfg.ReassemblyWindow)

	keys := make([]string, 0, len(cfg.Sources))
	for k := range cfg.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "\nvalue sources:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %-28s %s\n", k, cfg.Sources[k])
	}
}

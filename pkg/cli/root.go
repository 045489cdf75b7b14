package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skylink-labs/acarsrouter/pkg/config"
	"github.com/skylink-labs/acarsrouter/pkg/message"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
	logFile    string
	jsonOutput bool
}

// NewRootCommand builds the acarsrouter command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "acarsrouter",
		Short: "acarsrouter distributes decoded ACARS and VDLM2 messages",
		Long: `acarsrouter ingests newline-delimited JSON messages from ACARS and VDLM2
feeders and fans every message out to UDP, TCP and pub/sub destinations.

Configuration can be provided via a YAML file, a .env file, AR_* environment
variables, or flags. Flags take precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "YAML configuration file (default: $AR_CONFIG)")
	pf.StringVar(&g.envFile, "env-file", "", "Environment file to load (default: ./.env when present)")
	pf.StringVar(&g.logLevel, "log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", config.DefaultLogFormat, "Log format (text, json)")
	pf.StringVar(&g.logFile, "log-file", "", "Also write logs to this file")
	pf.BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(newServeCmd(g), newValidateCmd(g), newVersionCmd(g))
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// routerFlags holds the per-command overrides of the configuration file.
type routerFlags struct {
	lists             map[string]*[]string
	queueSize         int
	maxUDPPacketSize  int
	serveHost         string
	reassemblyWindow  time.Duration
	pubsubTopicPrefix string
	metricsAddr       string
}

// listFlag returns the flag name of list key for family f, for example
// "send-udp-acars".
func listFlag(key string, f message.Family) string {
	return strings.ReplaceAll(key, "_", "-") + "-" + f.Topic()
}

func addRouterFlags(cmd *cobra.Command) *routerFlags {
	rf := &routerFlags{lists: make(map[string]*[]string)}
	fs := cmd.Flags()
	for _, f := range message.Families() {
		for _, key := range config.ListKeys {
			name := listFlag(key, f)
			rf.lists[name] = fs.StringSlice(name, nil,
				fmt.Sprintf("%s %s entries (overrides %s)", f, strings.ReplaceAll(key, "_", " "), config.FamilyEnv(key, f)))
		}
	}
	fs.IntVar(&rf.queueSize, "queue-size", 0, "Capacity of every queue")
	fs.IntVar(&rf.maxUDPPacketSize, "max-udp-packet-size", 0, "Largest UDP datagram before splitting")
	fs.StringVar(&rf.serveHost, "serve-host", "", "Interface the broadcast servers and listeners bind to")
	fs.DurationVar(&rf.reassemblyWindow, "reassembly-window", 0, "How long a partial UDP message waits for the rest")
	fs.StringVar(&rf.pubsubTopicPrefix, "pubsub-topic-prefix", "", "Prefix of the pub/sub family topics")
	fs.StringVar(&rf.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return rf
}

// loadConfig layers flags over the file and environment configuration and
// validates the result.
func loadConfig(cmd *cobra.Command, g *globalFlags, rf *routerFlags) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: g.configFile, EnvFile: g.envFile})
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}

	for _, f := range message.Families() {
		for _, key := range config.ListKeys {
			name := listFlag(key, f)
			if changed(name) {
				if err := cfg.SetList(f, key, *rf.lists[name], config.SourceFlag); err != nil {
					return nil, err
				}
			}
		}
	}

	setString := func(name, key string, dst *string, v string) {
		if changed(name) {
			*dst = v
			cfg.Sources[key] = config.SourceFlag
		}
	}
	setInt := func(name, key string, dst *int, v int) {
		if changed(name) {
			*dst = v
			cfg.Sources[key] = config.SourceFlag
		}
	}
	setString("log-level", "log.level", &cfg.Log.Level, g.logLevel)
	setString("log-format", "log.format", &cfg.Log.Format, g.logFormat)
	setString("log-file", "log.file", &cfg.Log.File, g.logFile)
	setString("serve-host", "serve_host", &cfg.ServeHost, rf.serveHost)
	setString("pubsub-topic-prefix", "pubsub_topic_prefix", &cfg.PubSubTopicPrefix, rf.pubsubTopicPrefix)
	setString("metrics-addr", "metrics_addr", &cfg.MetricsAddr, rf.metricsAddr)
	setInt("queue-size", "queue_size", &cfg.QueueSize, rf.queueSize)
	setInt("max-udp-packet-size", "max_udp_packet_size", &cfg.MaxUDPPacketSize, rf.maxUDPPacketSize)
	if changed("reassembly-window") {
		cfg.ReassemblyWindow = rf.reassemblyWindow
		cfg.Sources["reassembly_window"] = config.SourceFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

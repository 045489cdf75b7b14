package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// Environment variable names. Family lists use EnvPrefix + key + family,
// for example AR_SEND_UDP_ACARS or AR_RECEIVE_TCP_VDLM2.
const (
	EnvPrefix            = "AR_"
	EnvConfig            = "AR_CONFIG"
	EnvMaxUDPPacketSize  = "AR_MAX_UDP_PACKET_SIZE"
	EnvQueueSize         = "AR_QUEUE_SIZE"
	EnvPubSubTopicPrefix = "AR_PUBSUB_TOPIC_PREFIX"
	EnvServeHost         = "AR_SERVE_HOST"
	EnvReassemblyWindow  = "AR_REASSEMBLY_WINDOW"
	EnvLogLevel          = "AR_LOG_LEVEL"
	EnvLogFormat         = "AR_LOG_FORMAT"
	EnvLogFile           = "AR_LOG_FILE"
	EnvMetricsAddr       = "AR_METRICS_ADDR"
)

// DefaultEnvFile is loaded when no .env file is named explicitly.
const DefaultEnvFile = ".env"

// FamilyEnv returns the environment variable of list key for family f.
func FamilyEnv(key string, f message.Family) string {
	return EnvPrefix + strings.ToUpper(key) + "_" + f.String()
}

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. An empty path loads DefaultEnvFile if it
// exists.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with every AR_* variable present in the
// environment.
func ApplyEnv(cfg *Config) error {
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}

	for _, f := range message.Families() {
		for _, key := range ListKeys {
			if v, ok := os.LookupEnv(FamilyEnv(key, f)); ok {
				_ = cfg.SetList(f, key, SplitList(v), SourceEnv)
			}
		}
	}

	var errs []error
	setInt := func(name, key string, dst *int) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", name, v))
			return
		}
		*dst = n
		cfg.Sources[key] = SourceEnv
	}
	setString := func(name, key string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
			cfg.Sources[key] = SourceEnv
		}
	}

	setInt(EnvMaxUDPPacketSize, "max_udp_packet_size", &cfg.MaxUDPPacketSize)
	setInt(EnvQueueSize, "queue_size", &cfg.QueueSize)
	if v, ok := os.LookupEnv(EnvReassemblyWindow); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", EnvReassemblyWindow, v))
		} else {
			cfg.ReassemblyWindow = d
			cfg.Sources["reassembly_window"] = SourceEnv
		}
	}
	setString(EnvPubSubTopicPrefix, "pubsub_topic_prefix", &cfg.PubSubTopicPrefix)
	setString(EnvServeHost, "serve_host", &cfg.ServeHost)
	setString(EnvLogLevel, "log.level", &cfg.Log.Level)
	setString(EnvLogFormat, "log.format", &cfg.Log.Format)
	setString(EnvLogFile, "log.file", &cfg.Log.File)
	setString(EnvMetricsAddr, "metrics_addr", &cfg.MetricsAddr)

	return errors.Join(errs...)
}

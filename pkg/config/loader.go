package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is a YAML file. When empty, AR_CONFIG is consulted.
	ConfigFile string
	// EnvFile is a .env file loaded into the process environment before
	// environment variables are applied. A missing default ".env" is not
	// an error; a missing explicitly named file is.
	EnvFile string
}

// Load builds the configuration from defaults, the YAML file, the .env
// file and the process environment, in that order. It does not validate.
func Load(opts LoadOptions) (*Config, error) {
	if err := LoadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML configuration file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%w in file %s: %v", ErrInvalidYAML, path, err)
	}
	return cfg, nil
}

// ParseYAML decodes data on top of the defaults. Unknown keys are errors.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}

	markFileSources(cfg)
	return cfg, nil
}

// ToYAML encodes cfg.
func ToYAML(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func markFileSources(cfg *Config) {
	def := Default()
	for _, f := range message.Families() {
		fc := cfg.Family(f)
		for key, list := range fc.Lists() {
			if ShouldStart(list) {
				cfg.Sources[familyKey(key, f)] = SourceFile
			}
		}
	}

	scalars := map[string]bool{
		"max_udp_packet_size": cfg.MaxUDPPacketSize != def.MaxUDPPacketSize,
		"queue_size":          cfg.QueueSize != def.QueueSize,
		"pubsub_topic_prefix": cfg.PubSubTopicPrefix != "",
		"serve_host":          cfg.ServeHost != def.ServeHost,
		"reassembly_window":   cfg.ReassemblyWindow != def.ReassemblyWindow,
		"log.level":           cfg.Log.Level != def.Log.Level,
		"log.format":          cfg.Log.Format != def.Log.Format,
		"log.file":            cfg.Log.File != "",
		"metrics_addr":        cfg.MetricsAddr != "",
	}
	for key, changed := range scalars {
		if changed {
			cfg.Sources[key] = SourceFile
		}
	}
}

// Lists returns every list of fc keyed by its configuration key.
func (fc FamilyConfig) Lists() map[string][]string {
	return map[string][]string{
		"send_udp":       fc.SendUDP,
		"send_tcp":       fc.SendTCP,
		"serve_tcp":      fc.ServeTCP,
		"serve_pubsub":   fc.ServePubSub,
		"receive_tcp":    fc.ReceiveTCP,
		"receive_pubsub": fc.ReceivePubSub,
		"listen_udp":     fc.ListenUDP,
		"listen_tcp":     fc.ListenTCP,
	}
}

func familyKey(key string, f message.Family) string {
	return f.Topic() + "." + key
}

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/skylink-labs/acarsrouter/pkg/config"
	"github.com/skylink-labs/acarsrouter/pkg/logging"
)

// newLogger builds the process logger from cfg. The returned close
// function releases the log file, if any.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	lc := logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: stderr,
	}
	if cfg.Log.File == "" {
		return logging.New(lc), func() {}, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	lc.Tee = f
	return logging.New(lc), func() { _ = f.Close() }, nil
}

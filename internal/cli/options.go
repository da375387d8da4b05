package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/parley/internal/config"
)

// DefaultConfigPath is read when --config is not given. It may be absent.
const DefaultConfigPath = "parley.yaml"

// RunOptions contains the flags shared by the commands.
type RunOptions struct {
	ConfigPath string
	// BotPath overrides the bot file named by the configuration.
	BotPath   string
	SessionID string
	Debug     bool
	Watch     bool
	// Fresh deletes the stored session before the conversation starts.
	Fresh bool

	Stdin  io.Reader
	Stdout io.Writer
}

func (o *RunOptions) streams() (io.Reader, io.Writer) {
	in, out := o.Stdin, o.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return in, out
}

// Setup loads the configuration and the logger for opts. The default config
// path is optional; an explicit one must exist.
func Setup(opts RunOptions) (*config.Config, *slog.Logger, error) {
	path := opts.ConfigPath
	required := path != ""
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, nil, err
	}
	if opts.BotPath != "" {
		cfg.Bot = opts.BotPath
	}
	logger, err := createLogger(cfg.LogLevel, opts.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

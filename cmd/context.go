package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/githerald/githerald/config"
	"github.com/githerald/githerald/internal/dispatch"
	"github.com/githerald/githerald/internal/git"
	"github.com/githerald/githerald/internal/mail"
)

// CommandContext holds common state for command execution: configuration
// with flag overrides applied, the repository inspector, the selected
// transport, and a ready runner.
type CommandContext struct {
	Config *config.Config
	Log    *zap.Logger
	Runner *dispatch.Runner
}

// NewCommandContext creates a context from CLI flags.
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override config from CLI flags
	if repo := c.String("repo"); repo != "" {
		cfg.RepoPath = repo
	}
	if statePath := c.String("state"); statePath != "" {
		cfg.StateFile = statePath
	}
	if to := c.StringSlice("to"); len(to) > 0 {
		cfg.Mail.To = to
	}
	if sender := c.String("sender"); sender != "" {
		cfg.Mail.Sender = sender
	}
	if c.Bool("no-update") {
		cfg.NoUpdate = true
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	insp, err := git.Open(cfg.RepoPath)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Config: cfg,
		Log:    log,
		Runner: dispatch.New(insp, transport, cfg, log),
	}, nil
}

// Close flushes the logger.
func (ctx *CommandContext) Close() {
	_ = ctx.Log.Sync()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func newTransport(cfg *config.Config) (mail.Transport, error) {
	if cfg.Debug {
		return &mail.DebugTransport{W: os.Stdout}, nil
	}
	switch cfg.Transport.Kind {
	case "sendmail":
		return &mail.SendmailTransport{Command: cfg.Transport.Sendmail}, nil
	case "smtp":
		return &mail.SMTPTransport{
			Host:     cfg.Transport.Host,
			Port:     cfg.Transport.Port,
			Username: cfg.Transport.Username,
			Password: cfg.Transport.Password,
			StartTLS: cfg.Transport.StartTLS,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

package cmd

import (
	"github.com/urfave/cli/v2"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "githerald",
		Usage:   "Mail notifications for pushes to a Git repository",
		Version: "1.0.0",
		Commands: []*cli.Command{
			RunCmd(),
			ReplayCmd(),
			DiffCmd(),
			DumpCmd(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			// No subcommand: behave as the post-receive hook entry point.
			return runAction(c)
		},
	}
}

// Common flags shared across commands
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "repo",
			Aliases: []string{"r"},
			Usage:   "Path to the Git repository",
		},
		&cli.StringFlag{
			Name:  "state",
			Usage: "Path to the state file",
		},
		&cli.StringSliceFlag{
			Name:  "to",
			Usage: "Recipient address (repeatable)",
		},
		&cli.StringFlag{
			Name:  "sender",
			Usage: "Sender address",
		},
		&cli.BoolFlag{
			Name:  "no-update",
			Usage: "Run without rewriting the state file",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Print messages to stdout instead of sending, keep state untouched",
		},
	}
}

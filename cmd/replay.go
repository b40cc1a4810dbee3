package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// ReplayCmd returns the replay command: force-notify every revision of an
// explicit range, bypassing the already-reported suppression. Used to
// backfill notifications that were missed.
func ReplayCmd() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Force-notify every revision in an [old..]new range",
		ArgsUsage: "<[old..]new>",
		Flags:     commonFlags(),
		Action:    replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one revision range argument")
	}
	oldRev, newRev, err := parseRange(c.Args().Get(0))
	if err != nil {
		return err
	}

	ctx, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer ctx.Close()

	summary, err := ctx.Runner.Replay(c.Context, oldRev, newRev)
	if err != nil {
		ctx.Log.Error("replay aborted", zap.Error(err))
		return err
	}
	summary.Print()
	return nil
}

// parseRange splits "[old..]new". A bare revision means the full ancestor
// chain of that revision.
func parseRange(arg string) (oldRev, newRev string, err error) {
	if !strings.Contains(arg, "..") {
		return "", arg, nil
	}
	parts := strings.SplitN(arg, "..", 2)
	if parts[1] == "" {
		return "", "", fmt.Errorf("malformed revision range %q", arg)
	}
	return parts[0], parts[1], nil
}

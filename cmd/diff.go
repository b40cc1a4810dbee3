package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// DiffCmd returns the diff command: mail the diff of an arbitrary range
// once. A repeated request for the same range is suppressed through a
// marker in the state file.
func DiffCmd() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Mail the diff between two revisions",
		ArgsUsage: "<old..new>",
		Flags:     commonFlags(),
		Action:    diffAction,
	}
}

func diffAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one revision range argument")
	}
	oldRev, newRev, err := parseRange(c.Args().Get(0))
	if err != nil {
		return err
	}
	if oldRev == "" {
		return fmt.Errorf("diff requires an explicit old..new range")
	}

	ctx, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer ctx.Close()

	summary, err := ctx.Runner.ManualDiff(c.Context, oldRev, newRev)
	if err != nil {
		ctx.Log.Error("diff mail aborted", zap.Error(err))
		return err
	}
	summary.Print()
	return nil
}

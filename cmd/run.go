package cmd

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// RunCmd returns the run command, the automatic push-triggered path.
func RunCmd() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Reconcile repository state and mail pending notifications",
		Flags:  commonFlags(),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	ctx, err := NewCommandContext(c)
	if err != nil {
		return err
	}
	defer ctx.Close()

	summary, err := ctx.Runner.Run(c.Context)
	if err != nil {
		ctx.Log.Error("run aborted, state not updated", zap.Error(err))
		return err
	}
	summary.Print()
	return nil
}

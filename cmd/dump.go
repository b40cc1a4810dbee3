package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/githerald/githerald/config"
	"github.com/githerald/githerald/internal/state"
)

// DumpCmd returns the dump command, a read-only view of the state file.
func DumpCmd() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print the parsed state file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Path to the Git repository",
			},
			&cli.StringFlag{
				Name:  "state",
				Usage: "Path to the state file",
			},
		},
		Action: dumpAction,
	}
}

func dumpAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if repo := c.String("repo"); repo != "" {
		cfg.RepoPath = repo
	}
	if statePath := c.String("state"); statePath != "" {
		cfg.StateFile = statePath
	}

	cache, found, err := state.Load(cfg.StatePath())
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(os.Stderr, "no state file at %s\n", cfg.StatePath())
		return nil
	}

	color.Green("State: %s", cfg.StatePath())
	fmt.Printf("%d heads, %d tags, %d revisions, %d diff markers\n\n",
		len(cache.Snapshot.Heads), len(cache.Snapshot.Tags), len(cache.Snapshot.Revs), len(cache.Diffs))

	for _, name := range sortedKeys(cache.Snapshot.Heads) {
		fmt.Printf("head %-30s %s\n", name, cache.Snapshot.Heads[name])
	}
	for _, name := range sortedKeys(cache.Snapshot.Tags) {
		fmt.Printf("tag  %-30s %s\n", name, cache.Snapshot.Tags[name])
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

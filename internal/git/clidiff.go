package git

import (
	"bytes"
	"os/exec"
	"strings"
)

// Diff and DiffStat shell out to the git executable rather than going
// through go-git: combined merge diffs (--cc) have no go-git equivalent,
// and the failure footer in notifications names the exact command line,
// which only exists for the CLI path.

// Diff returns the patch text for one revision (oldRev empty) or for the
// range oldRev..newRev.
func (r *RepoInspector) Diff(oldRev, newRev string, mode DiffMode) ([]byte, error) {
	return r.runGit(diffArgs(oldRev, newRev, mode))
}

// DiffCommand returns the exact command line Diff runs, for suppression
// footers that tell the operator what to re-run.
func DiffCommand(oldRev, newRev string, mode DiffMode) string {
	return "git " + strings.Join(diffArgs(oldRev, newRev, mode), " ")
}

func diffArgs(oldRev, newRev string, mode DiffMode) []string {
	if oldRev == "" {
		args := []string{"diff-tree", "--no-color", "--root", "-p"}
		switch mode {
		case DiffMerge:
			args = append(args, "--cc")
		case DiffFirstParent:
			args = append(args, "--first-parent", "-m")
		default:
			args = append(args, "-m")
		}
		return append(args, newRev)
	}
	return []string{"diff", "--no-color", oldRev, newRev}
}

// DiffStat returns the diffstat text for one revision or a range.
func (r *RepoInspector) DiffStat(oldRev, newRev string) ([]byte, error) {
	var args []string
	if oldRev == "" {
		args = []string{"diff-tree", "--no-color", "--root", "--stat", newRev}
	} else {
		args = []string{"diff", "--no-color", "--stat", oldRev, newRev}
	}
	return r.runGit(args)
}

func (r *RepoInspector) runGit(args []string) ([]byte, error) {
	full := append([]string{"-C", r.path}, args...)
	cmd := exec.Command("git", full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exit := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exit = ee.ExitCode()
		}
		return nil, &DiffError{
			Cmd:      "git " + strings.Join(args, " "),
			ExitCode: exit,
			Output:   strings.TrimSpace(stderr.String()),
		}
	}
	return stdout.Bytes(), nil
}

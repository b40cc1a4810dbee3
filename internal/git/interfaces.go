package git

import (
	"fmt"
	"time"
)

// DiffMode selects how a revision's diff is generated.
type DiffMode int

const (
	// DiffDefault shows the full diff of a commit against each parent (-m).
	DiffDefault DiffMode = iota
	// DiffMerge shows the combined merge diff (--cc).
	DiffMerge
	// DiffFirstParent restricts the diff to the first parent.
	DiffFirstParent
)

// RevisionInfo holds the metadata of a single revision.
type RevisionInfo struct {
	ID            string
	Author        string // "Name <email>"
	CommitterDate time.Time
	Subject       string
	Body          string   // full commit message including the subject line
	Branches      []string // local branches containing this revision, sorted
}

// Inspector is a read-only query interface over a repository's refs,
// revisions and diffs.
//
// The default implementation combines go-git for ref and revision queries
// with the git executable for diff generation; the interface allows a test
// double without a real repository.
type Inspector interface {
	// Heads returns the current branch heads, short name to revision id.
	Heads() (map[string]string, error)

	// AnnotatedTags returns annotated tags only, short name to the id of
	// the commit the tag points to. Lightweight tags are ignored.
	AnnotatedTags() (map[string]string, error)

	// Reachable returns the set of revision ids reachable from the given
	// revisions, the revisions themselves included.
	Reachable(from []string) (map[string]struct{}, error)

	// AncestryExclusion returns the ancestors of newRev that are not
	// ancestors of oldRev, oldest first. An empty oldRev returns the full
	// ancestor chain of newRev.
	AncestryExclusion(oldRev, newRev string) ([]string, error)

	// Describe returns the metadata of a single revision.
	Describe(rev string) (*RevisionInfo, error)

	// RemotesContaining returns the remote-tracking branches that already
	// contain the revision.
	RemotesContaining(rev string) ([]string, error)

	// Diff returns the patch text for a revision (oldRev empty) or a
	// revision range. A generation failure is reported as *DiffError.
	Diff(oldRev, newRev string, mode DiffMode) ([]byte, error)

	// DiffStat returns the diffstat text for a revision or range.
	DiffStat(oldRev, newRev string) ([]byte, error)
}

// DiffError reports a failed diff generation. Cmd is the exact command line
// an operator can re-run to reproduce the failure.
type DiffError struct {
	Cmd      string
	ExitCode int
	Output   string
}

func (e *DiffError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Cmd, e.ExitCode, e.Output)
}

// Compile-time interface conformance checks.
var (
	_ Inspector = (*RepoInspector)(nil)
	_ Inspector = (*MockInspector)(nil)
)

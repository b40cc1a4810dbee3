package policy

import (
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/githerald/githerald/config"
	"github.com/githerald/githerald/internal/git"
)

// Markers a commit message can carry to influence its own notification.
const (
	MarkerNoMail = "[nomail]"
	MarkerNoDiff = "[nodiff]"
)

// Decision is the outcome of admitting a revision for notification.
type Decision int

const (
	Skip Decision = iota
	Notify
	NotifyWithoutDiff
)

// Policy holds the per-run notification rules derived from configuration.
type Policy struct {
	Include       []string
	Exclude       []string
	FullHistory   []string
	MergeDiff     []string
	FirstParent   []string
	MaxAgeCutoff  time.Time // zero means no age cutoff
	IgnoreRemotes bool
}

// FromConfig derives the run policy. The age cutoff is anchored at now so
// every admission in one run uses the same boundary.
func FromConfig(cfg *config.Config, now time.Time) *Policy {
	p := &Policy{
		Include:       cfg.Branches.Include,
		Exclude:       cfg.Branches.Exclude,
		FullHistory:   cfg.Branches.FullHistory,
		MergeDiff:     cfg.Branches.MergeDiff,
		FirstParent:   cfg.Branches.FirstParent,
		IgnoreRemotes: cfg.Branches.IgnoreRemotes,
	}
	if cfg.Limits.MaxAgeDays > 0 {
		p.MaxAgeCutoff = now.AddDate(0, 0, -cfg.Limits.MaxAgeDays)
	}
	return p
}

// Admit decides whether a revision is notified, and in which diff shape.
// remotes is the list of remote-tracking branches already containing the
// revision; callers only need to compute it when IgnoreRemotes is set.
// The returned reason names the rule behind a Skip, for logging.
func (p *Policy) Admit(info *git.RevisionInfo, remotes []string, alreadyReported, forced bool) (Decision, string) {
	if alreadyReported && !forced {
		return Skip, "already reported this run"
	}
	if p.IgnoreRemotes && len(remotes) > 0 {
		return Skip, "already present on remote " + remotes[0]
	}
	if !p.MaxAgeCutoff.IsZero() && info.CommitterDate.Before(p.MaxAgeCutoff) {
		return Skip, "older than age cutoff"
	}
	if strings.Contains(info.Body, MarkerNoMail) {
		return Skip, "opt-out marker in commit message"
	}
	if strings.Contains(info.Body, MarkerNoDiff) {
		return NotifyWithoutDiff, ""
	}
	return Notify, ""
}

// BranchOfInterest reports whether a branch passes the include/exclude
// patterns: included (or no include list) and not excluded.
func (p *Policy) BranchOfInterest(name string) bool {
	for _, pattern := range p.Exclude {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return false
		}
	}
	if len(p.Include) == 0 {
		return true
	}
	for _, pattern := range p.Include {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// InterestingBranches filters a containing-branch list down to the branches
// of interest. An event whose result is empty is suppressed entirely.
func (p *Policy) InterestingBranches(branches []string) []string {
	out := branches[:0:0]
	for _, name := range branches {
		if p.BranchOfInterest(name) {
			out = append(out, name)
		}
	}
	return out
}

// FullHistoryBranch reports whether any containing branch is configured
// for per-commit notification instead of a moved-head summary.
func (p *Policy) FullHistoryBranch(branches []string) bool {
	return anyMatch(p.FullHistory, branches)
}

// DiffMode selects the diff shape for a revision from its containing
// branches: combined merge diffs for mergeDiff branches, first-parent
// diffs for firstParent branches, full diffs otherwise. mergeDiff wins
// when a branch matches both.
func (p *Policy) DiffMode(branches []string) git.DiffMode {
	if anyMatch(p.MergeDiff, branches) {
		return git.DiffMerge
	}
	if anyMatch(p.FirstParent, branches) {
		return git.DiffFirstParent
	}
	return git.DiffDefault
}

func anyMatch(patterns, names []string) bool {
	for _, pattern := range patterns {
		for _, name := range names {
			if matched, _ := doublestar.Match(pattern, name); matched {
				return true
			}
		}
	}
	return false
}

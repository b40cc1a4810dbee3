package reconcile

import (
	"fmt"
	"sort"

	"github.com/githerald/githerald/internal/git"
	"github.com/githerald/githerald/internal/state"
)

// Resolver expands ref-level events into ordered revision lists using the
// repository's ancestry-exclusion queries. It is a pure function of the
// repository state at query time: identical inputs yield identical lists.
type Resolver struct {
	Insp git.Inspector
}

// Resolve returns the ancestors of newRev not reachable from oldRev,
// oldest first. An empty oldRev yields the full ancestor chain.
func (r *Resolver) Resolve(oldRev, newRev string) ([]string, error) {
	return r.Insp.AncestryExclusion(oldRev, newRev)
}

// Expand fills in the revision path of a HeadMoved or BranchAdded event.
// Revisions already present in the previous snapshot are excluded: they
// were reachable (and reported) via some other ref before this run.
func (r *Resolver) Expand(ev *Event, prev *state.Snapshot) error {
	switch ev.Kind {
	case HeadMoved:
		path, err := r.Resolve(ev.OldRev, ev.NewRev)
		if err != nil {
			return fmt.Errorf("resolve %s..%s: %w", ev.OldRev, ev.NewRev, err)
		}
		ev.Path = dropKnown(path, prev)
	case BranchAdded:
		path, err := r.Resolve("", ev.NewRev)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ev.NewRev, err)
		}
		ev.Path = dropKnown(path, prev)
	}
	return nil
}

// NewRevisions resolves the commit-level notification stream: every
// revision reachable now but not in the previous snapshot, ordered oldest
// first and deduplicated across branches. The candidate set is covered by
// walking each current ref's exclusion path so that ordering follows the
// repository's own ancestry, not map iteration.
func (r *Resolver) NewRevisions(prev, cur *state.Snapshot) ([]string, error) {
	candidates := make(map[string]struct{})
	for rev := range cur.Revs {
		if !prev.HasRev(rev) {
			candidates[rev] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	taken := make(map[string]struct{}, len(candidates))
	var ordered []string

	appendPath := func(oldRev, newRev string) error {
		path, err := r.Resolve(oldRev, newRev)
		if err != nil {
			return err
		}
		for _, rev := range path {
			if _, want := candidates[rev]; !want {
				continue
			}
			if _, seen := taken[rev]; seen {
				continue
			}
			taken[rev] = struct{}{}
			ordered = append(ordered, rev)
		}
		return nil
	}

	for _, name := range sortedNames(cur.Heads) {
		old := prev.Heads[name]
		if err := appendPath(old, cur.Heads[name]); err != nil {
			return nil, fmt.Errorf("resolve head %s: %w", name, err)
		}
	}
	for _, name := range sortedNames(cur.Tags) {
		if len(taken) == len(candidates) {
			break
		}
		if err := appendPath("", cur.Tags[name]); err != nil {
			return nil, fmt.Errorf("resolve tag %s: %w", name, err)
		}
	}

	return ordered, nil
}

func dropKnown(path []string, prev *state.Snapshot) []string {
	out := path[:0:0]
	for _, rev := range path {
		if !prev.HasRev(rev) {
			out = append(out, rev)
		}
	}
	return out
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

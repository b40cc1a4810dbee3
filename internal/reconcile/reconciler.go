package reconcile

import (
	"sort"

	"github.com/githerald/githerald/internal/state"
)

// Reconcile diffs the previous snapshot against the current one and returns
// the events that must be considered for notification.
//
// A nil previous snapshot means this is the initial run: nothing is
// notified, the caller persists the current snapshot as the baseline.
//
// Event order is deterministic: branch removals, branch additions, head
// moves, tag removals, tag additions, then a single commit-level
// NewCommits event. Removals sort before additions so a branch deleted and
// recreated in one push is reported as delete-then-create, never dropped.
func Reconcile(prev, cur *state.Snapshot) []Event {
	if prev == nil {
		return nil
	}

	var events []Event

	removed, added, moved := diffRefs(prev.Heads, cur.Heads)
	for _, name := range removed {
		events = append(events, Event{Kind: BranchRemoved, Name: name, OldRev: prev.Heads[name]})
	}
	for _, name := range added {
		events = append(events, Event{Kind: BranchAdded, Name: name, NewRev: cur.Heads[name]})
	}
	for _, name := range moved {
		events = append(events, Event{
			Kind:   HeadMoved,
			Name:   name,
			OldRev: prev.Heads[name],
			NewRev: cur.Heads[name],
		})
	}

	tagRemoved, tagAdded, tagMoved := diffRefs(prev.Tags, cur.Tags)
	for _, name := range tagRemoved {
		events = append(events, Event{Kind: TagRemoved, Name: name, OldRev: prev.Tags[name]})
	}
	// A moved annotated tag is reported as a fresh TagAdded: tags are not
	// expected to move, so the new target is what matters.
	tagAdded = append(tagAdded, tagMoved...)
	sort.Strings(tagAdded)
	for _, name := range tagAdded {
		events = append(events, Event{Kind: TagAdded, Name: name, NewRev: cur.Tags[name]})
	}

	if hasNewRevs(prev, cur) {
		events = append(events, Event{Kind: NewCommits})
	}

	return events
}

// diffRefs computes removed, added and moved names between two ref maps.
// Each result is sorted for reproducible event streams.
func diffRefs(prev, cur map[string]string) (removed, added, moved []string) {
	for name := range prev {
		if _, ok := cur[name]; !ok {
			removed = append(removed, name)
		}
	}
	for name, rev := range cur {
		old, ok := prev[name]
		switch {
		case !ok:
			added = append(added, name)
		case old != rev:
			moved = append(moved, name)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)
	sort.Strings(moved)
	return removed, added, moved
}

func hasNewRevs(prev, cur *state.Snapshot) bool {
	for rev := range cur.Revs {
		if !prev.HasRev(rev) {
			return true
		}
	}
	return false
}

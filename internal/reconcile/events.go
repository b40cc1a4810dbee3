package reconcile

// EventKind identifies the variant of a reconciliation event.
type EventKind int

const (
	BranchRemoved EventKind = iota
	BranchAdded
	HeadMoved
	TagRemoved
	TagAdded
	NewCommits
)

// String returns a short name for the event kind.
func (k EventKind) String() string {
	switch k {
	case BranchRemoved:
		return "branch-removed"
	case BranchAdded:
		return "branch-added"
	case HeadMoved:
		return "head-moved"
	case TagRemoved:
		return "tag-removed"
	case TagAdded:
		return "tag-added"
	case NewCommits:
		return "new-commits"
	default:
		return "unknown"
	}
}

// Event is one observed difference between the previous and current
// snapshot. Events are transient pipeline values: produced by the
// reconciler, expanded by the resolver, consumed by the dispatcher, never
// retained.
type Event struct {
	Kind   EventKind
	Name   string // branch or tag name; empty for NewCommits
	OldRev string // previous tip, empty for additions and NewCommits
	NewRev string // current tip, empty for removals and NewCommits

	// Path is the ordered, oldest-first list of newly reachable revisions
	// for HeadMoved, BranchAdded and NewCommits events. It is filled by
	// the resolver, not the reconciler.
	Path []string
}

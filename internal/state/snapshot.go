package state

import (
	"fmt"

	"github.com/githerald/githerald/internal/git"
)

// Snapshot captures the observable repository state at one point in time:
// branch heads, annotated tags, and every revision reachable from either.
// A snapshot is built once per run and never mutated afterwards.
type Snapshot struct {
	Heads map[string]string
	Tags  map[string]string
	Revs  map[string]struct{}
}

// TakeSnapshot builds a fresh snapshot from the repository.
func TakeSnapshot(insp git.Inspector) (*Snapshot, error) {
	heads, err := insp.Heads()
	if err != nil {
		return nil, fmt.Errorf("read heads: %w", err)
	}
	tags, err := insp.AnnotatedTags()
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	tips := make([]string, 0, len(heads)+len(tags))
	for _, rev := range heads {
		tips = append(tips, rev)
	}
	for _, rev := range tags {
		tips = append(tips, rev)
	}

	revs, err := insp.Reachable(tips)
	if err != nil {
		return nil, fmt.Errorf("walk reachable revisions: %w", err)
	}

	return &Snapshot{Heads: heads, Tags: tags, Revs: revs}, nil
}

// HasRev reports whether the snapshot's reachable set contains id.
func (s *Snapshot) HasRev(id string) bool {
	_, ok := s.Revs[id]
	return ok
}

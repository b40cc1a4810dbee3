package git

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RepoInspector reads refs and revisions through go-git and generates
// diffs through the git executable (see clidiff.go).
type RepoInspector struct {
	repo *git.Repository
	path string
}

// Open opens the repository at path.
func Open(path string) (*RepoInspector, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &RepoInspector{repo: repo, path: path}, nil
}

// Heads returns the current branch heads.
func (r *RepoInspector) Heads() (map[string]string, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	heads := make(map[string]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().IsBranch() {
			heads[ref.Name().Short()] = ref.Hash().String()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return heads, nil
}

// AnnotatedTags returns annotated tags peeled to the commit they point to.
// Lightweight tags are ignored, matching the original notification scope.
func (r *RepoInspector) AnnotatedTags() (map[string]string, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	tags := make(map[string]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		tag, err := r.repo.TagObject(ref.Hash())
		if err == plumbing.ErrObjectNotFound {
			return nil // lightweight tag
		}
		if err != nil {
			return err
		}
		commit, err := tag.Commit()
		if err != nil {
			// Annotated tag on a non-commit object (tree, blob).
			return nil
		}
		tags[ref.Name().Short()] = commit.Hash.String()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// Reachable walks the ancestry of every given revision and returns the
// union of visited revision ids.
func (r *RepoInspector) Reachable(from []string) (map[string]struct{}, error) {
	seen := make(map[plumbing.Hash]bool)
	for _, rev := range from {
		commit, err := r.commit(rev)
		if err != nil {
			return nil, err
		}
		iter := object.NewCommitPreorderIter(commit, seen, nil)
		err = iter.ForEach(func(c *object.Commit) error {
			seen[c.Hash] = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk ancestry of %s: %w", rev, err)
		}
	}
	out := make(map[string]struct{}, len(seen))
	for h := range seen {
		out[h.String()] = struct{}{}
	}
	return out, nil
}

// AncestryExclusion returns the ancestors of newRev that are not ancestors
// of oldRev, oldest first.
func (r *RepoInspector) AncestryExclusion(oldRev, newRev string) ([]string, error) {
	exclude := make(map[plumbing.Hash]bool)
	if oldRev != "" {
		old, err := r.commit(oldRev)
		if err != nil {
			return nil, err
		}
		iter := object.NewCommitPreorderIter(old, nil, nil)
		err = iter.ForEach(func(c *object.Commit) error {
			exclude[c.Hash] = true
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk ancestry of %s: %w", oldRev, err)
		}
	}

	newc, err := r.commit(newRev)
	if err != nil {
		return nil, err
	}
	var found []*object.Commit
	iter := object.NewCommitPreorderIter(newc, exclude, nil)
	err = iter.ForEach(func(c *object.Commit) error {
		found = append(found, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk ancestry of %s: %w", newRev, err)
	}

	// Oldest first; the walk order is not chronological on non-linear
	// history (forced pushes, merges), so sort explicitly.
	sort.SliceStable(found, func(i, j int) bool {
		ti, tj := found[i].Committer.When, found[j].Committer.When
		if ti.Equal(tj) {
			return found[i].Hash.String() < found[j].Hash.String()
		}
		return ti.Before(tj)
	})

	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = c.Hash.String()
	}
	return ids, nil
}

// Describe returns the metadata of a single revision, including the local
// branches containing it.
func (r *RepoInspector) Describe(rev string) (*RevisionInfo, error) {
	commit, err := r.commit(rev)
	if err != nil {
		return nil, err
	}

	subject, body := splitMessage(commit.Message)
	branches, err := r.branchesContaining(commit, false)
	if err != nil {
		return nil, err
	}

	return &RevisionInfo{
		ID:            commit.Hash.String(),
		Author:        fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email),
		CommitterDate: commit.Committer.When,
		Subject:       subject,
		Body:          body,
		Branches:      branches,
	}, nil
}

// RemotesContaining returns the remote-tracking branches containing rev.
func (r *RepoInspector) RemotesContaining(rev string) ([]string, error) {
	commit, err := r.commit(rev)
	if err != nil {
		return nil, err
	}
	return r.branchesContaining(commit, true)
}

func (r *RepoInspector) branchesContaining(commit *object.Commit, remotes bool) ([]string, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	var names []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if remotes && !ref.Name().IsRemote() {
			return nil
		}
		if !remotes && !ref.Name().IsBranch() {
			return nil
		}
		head, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil // e.g. a remote ref pointing at a tag object
		}
		if head.Hash == commit.Hash {
			names = append(names, ref.Name().Short())
			return nil
		}
		ok, err := commit.IsAncestor(head)
		if err != nil {
			return err
		}
		if ok {
			names = append(names, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *RepoInspector) commit(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %s: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", rev, err)
	}
	return commit, nil
}

func splitMessage(message string) (subject, body string) {
	body = strings.TrimRight(message, "\n")
	subject = body
	if idx := strings.IndexByte(subject, '\n'); idx != -1 {
		subject = subject[:idx]
	}
	return strings.TrimSpace(subject), body
}

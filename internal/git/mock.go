package git

import "fmt"

// MockInspector is a test double for the Inspector interface. It serves
// predefined repository state so tests never need a real repository.
type MockInspector struct {
	HeadRefs map[string]string
	TagRefs  map[string]string
	Revs     map[string]*RevisionInfo

	// Paths maps "old..new" (or "..new" for a full chain) to the ordered
	// ancestry-exclusion result.
	Paths map[string][]string

	// ReachableRevs, when nil, defaults to the keys of Revs.
	ReachableRevs map[string]struct{}

	// Remotes maps a revision id to the remote branches containing it.
	Remotes map[string][]string

	// DiffPayload and StatPayload are returned for every Diff/DiffStat
	// call unless DiffErr is set.
	DiffPayload []byte
	StatPayload []byte
	DiffErr     error

	// DiffCalls records the "old..new" keys of every Diff request.
	DiffCalls []string
}

func (m *MockInspector) Heads() (map[string]string, error) {
	return m.HeadRefs, nil
}

func (m *MockInspector) AnnotatedTags() (map[string]string, error) {
	return m.TagRefs, nil
}

func (m *MockInspector) Reachable(from []string) (map[string]struct{}, error) {
	if m.ReachableRevs != nil {
		return m.ReachableRevs, nil
	}
	out := make(map[string]struct{}, len(m.Revs))
	for id := range m.Revs {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *MockInspector) AncestryExclusion(oldRev, newRev string) ([]string, error) {
	key := oldRev + ".." + newRev
	path, ok := m.Paths[key]
	if !ok {
		return nil, fmt.Errorf("no ancestry fixture for %s", key)
	}
	return path, nil
}

func (m *MockInspector) Describe(rev string) (*RevisionInfo, error) {
	info, ok := m.Revs[rev]
	if !ok {
		return nil, fmt.Errorf("no revision fixture for %s", rev)
	}
	return info, nil
}

func (m *MockInspector) RemotesContaining(rev string) ([]string, error) {
	return m.Remotes[rev], nil
}

func (m *MockInspector) Diff(oldRev, newRev string, mode DiffMode) ([]byte, error) {
	m.DiffCalls = append(m.DiffCalls, oldRev+".."+newRev)
	if m.DiffErr != nil {
		return nil, m.DiffErr
	}
	return m.DiffPayload, nil
}

func (m *MockInspector) DiffStat(oldRev, newRev string) ([]byte, error) {
	return m.StatPayload, nil
}

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/githerald/githerald/config"
	"github.com/githerald/githerald/internal/git"
	"github.com/githerald/githerald/internal/mail"
	"github.com/githerald/githerald/internal/state"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Repository = "widget"
	cfg.StateFile = filepath.Join(t.TempDir(), "githerald.state")
	cfg.Mail.To = []string{"list@example.com"}
	cfg.Mail.Sender = "githerald@example.com"
	cfg.Limits.PaceMillis = 0
	return cfg
}

func testRunner(insp git.Inspector, cfg *config.Config) (*Runner, *mail.CaptureTransport) {
	capture := &mail.CaptureTransport{}
	r := New(insp, capture, cfg, zap.NewNop())
	r.Now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return r, capture
}

func fixtureRev(id, subject, body string, branches ...string) *git.RevisionInfo {
	return &git.RevisionInfo{
		ID:            id,
		Author:        "Dev <dev@example.com>",
		CommitterDate: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		Subject:       subject,
		Body:          body,
		Branches:      branches,
	}
}

func writeState(t *testing.T, path string, cache *state.Cache) {
	t.Helper()
	require.NoError(t, state.Save(path, cache))
}

func cacheWith(heads map[string]string, revs ...string) *state.Cache {
	snap := &state.Snapshot{
		Heads: heads,
		Tags:  map[string]string{},
		Revs:  map[string]struct{}{},
	}
	for _, rev := range revs {
		snap.Revs[rev] = struct{}{}
	}
	for _, rev := range heads {
		snap.Revs[rev] = struct{}{}
	}
	return state.NewCache(snap)
}

func TestRun_InitialRunRecordsBaseline(t *testing.T) {
	cfg := testConfig(t)
	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r1"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}},
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.InitialRun)
	assert.Empty(t, capture.Messages)

	cache, found, err := state.Load(cfg.StateFile)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "r1", cache.Snapshot.Heads["main"])
	assert.True(t, cache.Snapshot.HasRev("r1"))
}

func TestRun_SummaryForMovedBranch(t *testing.T) {
	cfg := testConfig(t)
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		Paths:         map[string][]string{"r1..r2": {"r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "fix the widget", "fix the widget", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	// One moved-head summary, no per-commit mail.
	require.Len(t, capture.Messages, 1)
	assert.Equal(t, 1, summary.Sent)
	assert.Contains(t, capture.Messages[0].Subject, "main: 1 new changesets")

	cache, _, err := state.Load(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, "r2", cache.Snapshot.Heads["main"])
	assert.True(t, cache.Snapshot.HasRev("r2"))
}

func TestRun_FullHistoryBranchGetsPerCommitMail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Branches.FullHistory = []string{"main"}
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		Paths:         map[string][]string{"r1..r2": {"r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "fix the widget", "fix the widget", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, capture.Messages, 1)
	assert.Equal(t, 1, summary.Sent)
	assert.Contains(t, capture.Messages[0].Subject, "fix the widget")
	assert.NotContains(t, capture.Messages[0].Subject, "new changesets")
	assert.Equal(t, "r2", capture.Messages[0].Extra["X-Git-Revision"])
}

func TestRun_PerCommitMailsInChronologicalOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Branches.FullHistory = []string{"main"}
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r3"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}, "r3": {}},
		Paths:         map[string][]string{"r1..r3": {"r2", "r3"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "older change", "older change", "main"),
			"r3": fixtureRev("r3", "newer change", "newer change", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, capture.Messages, 2)
	assert.Equal(t, "r2", capture.Messages[0].Extra["X-Git-Revision"])
	assert.Equal(t, "r3", capture.Messages[1].Extra["X-Git-Revision"])
}

func TestRun_DiffBudgetIsPerMessage(t *testing.T) {
	// Every standalone mail is bounded against the full configured limit;
	// an earlier mail in the same push must not eat a later one's budget.
	cfg := testConfig(t)
	cfg.Limits.MaxDiffBytes = 50
	cfg.Branches.FullHistory = []string{"main"}
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r3"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}, "r3": {}},
		Paths:         map[string][]string{"r1..r3": {"r2", "r3"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "first", "first", "main"),
			"r3": fixtureRev("r3", "second", "second", "main"),
		},
		DiffPayload: bytes.Repeat([]byte("x"), 30),
		StatPayload: []byte("STAT-ONLY\n"),
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Sent)
	require.Len(t, capture.Messages, 2)
	for _, msg := range capture.Messages {
		assert.Contains(t, msg.Body, strings.Repeat("x", 30))
		assert.NotContains(t, msg.Body, "Diff suppressed because of size")
	}
}

func TestRun_HeadSummarySkipsUndescribableRevision(t *testing.T) {
	// A revision that vanished between the snapshot and its description is
	// dropped from the listing; the summary still goes out.
	cfg := testConfig(t)
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r3"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}, "r3": {}},
		Paths:         map[string][]string{"r1..r3": {"r2", "r3"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "survives", "survives", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, capture.Messages, 1)
	assert.Contains(t, capture.Messages[0].Subject, "main: 1 new changesets")
	assert.Contains(t, capture.Messages[0].Body, "survives")
}

func TestRun_NoDuplicateAcrossBranchEvents(t *testing.T) {
	// r3 becomes reachable via two moved branches in one push; it must be
	// reported exactly once.
	cfg := testConfig(t)
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"alpha": "r1", "beta": "r2"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"alpha": "r3", "beta": "r3"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}, "r3": {}},
		Paths: map[string][]string{
			"r1..r3": {"r3"},
			"r2..r3": {"r3"},
		},
		Revs: map[string]*git.RevisionInfo{
			"r3": fixtureRev("r3", "shared change", "shared change", "alpha", "beta"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, capture.Messages, 1)
	assert.Contains(t, capture.Messages[0].Subject, "alpha: 1 new changesets")
}

func TestRun_NomailSkippedButReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.Branches.FullHistory = []string{"main"}
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		Paths:         map[string][]string{"r1..r2": {"r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "secret", "secret\n\n[nomail]", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, capture.Messages)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Suppressed)
	assert.Empty(t, insp.DiffCalls, "no diff may be computed for [nomail] revisions")

	// The revision lands in the snapshot, so it is never retried.
	cache, _, err := state.Load(cfg.StateFile)
	require.NoError(t, err)
	assert.True(t, cache.Snapshot.HasRev("r2"))
}

func TestRun_CrashSafety(t *testing.T) {
	cfg := testConfig(t)
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))
	before, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		Paths:         map[string][]string{"r1..r2": {"r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "fix", "fix", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}

	failing := &mail.CaptureTransport{Err: errors.New("relay down")}
	runner := New(insp, failing, cfg, zap.NewNop())
	_, err = runner.Run(context.Background())
	require.Error(t, err)

	// Cache untouched after the failed run.
	after, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The retry produces the notification the failed run owed.
	runner2, capture := testRunner(insp, cfg)
	summary, err := runner2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, capture.Messages, 1)
	assert.Contains(t, capture.Messages[0].Subject, "main: 1 new changesets")
}

func TestRun_ChangesetModeBatchesIntoOneDigest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Changeset = true
	cfg.Branches.FullHistory = []string{"main"}
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r3"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}, "r3": {}},
		Paths:         map[string][]string{"r1..r3": {"r2", "r3"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "first", "first", "main"),
			"r3": fixtureRev("r3", "second", "second", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, capture.Messages, 1)
	assert.Equal(t, 1, summary.Sent)
	assert.Contains(t, capture.Messages[0].Subject, "main: 2 new changesets")
	assert.Contains(t, capture.Messages[0].Body, "first")
	assert.Contains(t, capture.Messages[0].Body, "second")
}

func TestRun_BranchAndTagLifecycle(t *testing.T) {
	cfg := testConfig(t)
	prior := cacheWith(map[string]string{"gone": "r1", "main": "r1"})
	prior.Snapshot.Tags["v0.9"] = "r1"
	writeState(t, cfg.StateFile, prior)

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r1", "fresh": "r1"},
		TagRefs:       map[string]string{"v1.0": "r1"},
		ReachableRevs: map[string]struct{}{"r1": {}},
		Paths:         map[string][]string{"..r1": {"r1"}},
		Revs: map[string]*git.RevisionInfo{
			"r1": fixtureRev("r1", "init", "init", "fresh", "main"),
		},
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, capture.Messages, 4)
	assert.Equal(t, 4, summary.Sent)
	assert.Contains(t, capture.Messages[0].Subject, "branch gone deleted")
	assert.Contains(t, capture.Messages[1].Subject, "branch fresh created")
	assert.Contains(t, capture.Messages[2].Subject, "tag v0.9 deleted")
	assert.Contains(t, capture.Messages[3].Subject, "tag v1.0 created")
}

func TestRun_ExcludedBranchIsSuppressed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Branches.Exclude = []string{"wip/*"}
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"wip/x": "r1"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"wip/x": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		Paths:         map[string][]string{"r1..r2": {"r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "hidden", "hidden", "wip/x"),
		},
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, capture.Messages)
	assert.Equal(t, 0, summary.Sent)
	assert.GreaterOrEqual(t, summary.Suppressed, 1)
}

func TestRun_NoUpdateLeavesStateAlone(t *testing.T) {
	cfg := testConfig(t)
	cfg.NoUpdate = true
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r1"}))
	before, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		Paths:         map[string][]string{"r1..r2": {"r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r2": fixtureRev("r2", "fix", "fix", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, capture.Messages, 1)

	after, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReplay_ForcesNotification(t *testing.T) {
	cfg := testConfig(t)
	cfg.Branches.FullHistory = []string{"main"}

	insp := &git.MockInspector{
		Paths: map[string][]string{"..r2": {"r1", "r2"}},
		Revs: map[string]*git.RevisionInfo{
			"r1": fixtureRev("r1", "first", "first", "main"),
			"r2": fixtureRev("r2", "second", "second", "main"),
		},
		DiffPayload: []byte("diff\n"),
		StatPayload: []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	summary, err := runner.Replay(context.Background(), "", "r2")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Sent)
	require.Len(t, capture.Messages, 2)
	assert.Equal(t, "r1", capture.Messages[0].Extra["X-Git-Revision"])

	// Replay never writes state.
	_, found, err := state.Load(cfg.StateFile)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManualDiff_DeduplicatesAcrossRuns(t *testing.T) {
	cfg := testConfig(t)
	writeState(t, cfg.StateFile, cacheWith(map[string]string{"main": "r2"}))

	insp := &git.MockInspector{
		HeadRefs:      map[string]string{"main": "r2"},
		TagRefs:       map[string]string{},
		ReachableRevs: map[string]struct{}{"r1": {}, "r2": {}},
		DiffPayload:   []byte("the diff\n"),
		StatPayload:   []byte("stat\n"),
	}
	runner, capture := testRunner(insp, cfg)

	first, err := runner.ManualDiff(context.Background(), "r1", "r2")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)
	require.Len(t, capture.Messages, 1)
	assert.Contains(t, capture.Messages[0].Body, "the diff")

	second, err := runner.ManualDiff(context.Background(), "r1", "r2")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.Suppressed)
	require.Len(t, capture.Messages, 1)
}

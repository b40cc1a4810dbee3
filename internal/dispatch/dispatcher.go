package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/githerald/githerald/config"
	"github.com/githerald/githerald/internal/assemble"
	"github.com/githerald/githerald/internal/git"
	"github.com/githerald/githerald/internal/mail"
	"github.com/githerald/githerald/internal/policy"
	"github.com/githerald/githerald/internal/reconcile"
	"github.com/githerald/githerald/internal/state"
)

// Summary aggregates the per-run counters.
type Summary struct {
	Sent       int
	Bytes      int
	Suppressed int
	InitialRun bool
}

// Print writes the one-line operator summary.
func (s *Summary) Print() {
	switch {
	case s.InitialRun:
		color.Yellow("initial run: baseline recorded, no email sent")
	case s.Sent == 0:
		color.Yellow("no email sent (%d suppressed)", s.Suppressed)
	default:
		color.Green("%d message(s) sent, %d bytes, %d suppressed", s.Sent, s.Bytes, s.Suppressed)
	}
}

// Runner drives one complete run: snapshot, reconcile, filter, assemble,
// send, persist. Strictly sequential; the only scheduling concern is the
// minimum wall-clock gap between outgoing messages.
type Runner struct {
	Insp      git.Inspector
	Transport mail.Transport
	Cfg       *config.Config
	Log       *zap.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	limiter *rate.Limiter
}

// New creates a runner with pacing derived from the configuration.
func New(insp git.Inspector, transport mail.Transport, cfg *config.Config, log *zap.Logger) *Runner {
	gap := time.Duration(cfg.Limits.PaceMillis) * time.Millisecond
	limiter := rate.NewLimiter(rate.Inf, 1)
	if gap > 0 {
		limiter = rate.NewLimiter(rate.Every(gap), 1)
	}
	return &Runner{
		Insp:      insp,
		Transport: transport,
		Cfg:       cfg,
		Log:       log,
		Now:       time.Now,
		limiter:   limiter,
	}
}

// Run executes the automatic push-triggered path. On any fatal error the
// durable cache is left untouched, so the next run recomputes the same
// events.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	statePath := r.Cfg.StatePath()
	cache, found, err := state.Load(statePath)
	if err != nil {
		return nil, err
	}

	snap, err := state.TakeSnapshot(r.Insp)
	if err != nil {
		return nil, err
	}

	if !found {
		r.Log.Info("no prior state, recording baseline",
			zap.String("state", statePath),
			zap.Int("heads", len(snap.Heads)),
			zap.Int("revs", len(snap.Revs)))
		if err := r.persist(state.NewCache(snap)); err != nil {
			return nil, err
		}
		return &Summary{InitialRun: true}, nil
	}

	events := reconcile.Reconcile(cache.Snapshot, snap)
	pol := policy.FromConfig(r.Cfg, r.Now())
	resolver := &reconcile.Resolver{Insp: r.Insp}
	rc := NewRunContext(r.Cfg.Limits.MaxDiffBytes, false)
	asm := r.assembler(pol)
	summary := &Summary{}

	for _, ev := range events {
		if err := r.handleEvent(ctx, ev, cache.Snapshot, snap, pol, resolver, asm, rc, summary); err != nil {
			return nil, err
		}
	}

	next := state.NewCache(snap)
	next.Diffs = cache.Diffs // carry manual-diff markers forward
	if err := r.persist(next); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Runner) handleEvent(ctx context.Context, ev reconcile.Event, prev, cur *state.Snapshot,
	pol *policy.Policy, resolver *reconcile.Resolver, asm *assemble.Assembler,
	rc *RunContext, summary *Summary) error {

	switch ev.Kind {
	case reconcile.BranchRemoved, reconcile.BranchAdded, reconcile.HeadMoved:
		if !pol.BranchOfInterest(ev.Name) {
			r.Log.Debug("branch not of interest", zap.String("branch", ev.Name))
			summary.Suppressed++
			return nil
		}
	}

	switch ev.Kind {
	case reconcile.BranchRemoved, reconcile.TagRemoved, reconcile.TagAdded:
		r.Log.Info("ref change", zap.Stringer("kind", ev.Kind), zap.String("name", ev.Name))
		return r.send(ctx, asm.RefChange(ev, nil), summary)

	case reconcile.BranchAdded:
		if err := resolver.Expand(&ev, prev); err != nil {
			return err
		}
		entries := r.describeAll(ev.Path)
		r.Log.Info("branch created",
			zap.String("branch", ev.Name), zap.Int("commits", len(entries)))
		return r.send(ctx, asm.RefChange(ev, entries), summary)

	case reconcile.HeadMoved:
		if pol.FullHistoryBranch([]string{ev.Name}) {
			// Per-commit mails come from the commit-level stream.
			return nil
		}
		if err := resolver.Expand(&ev, prev); err != nil {
			return err
		}
		ev.Path = dropReported(ev.Path, rc)
		if len(ev.Path) == 0 {
			// Nothing newly reachable: forced push to an already-known
			// revision, or every revision already went out with an
			// earlier branch's summary.
			r.Log.Info("head moved with no unreported revisions", zap.String("branch", ev.Name))
			return nil
		}
		entries := r.describeAll(ev.Path)
		msg, err := asm.HeadSummary(ev, entries, r.freshBudget())
		if err != nil {
			return err
		}
		if err := r.send(ctx, msg, summary); err != nil {
			return err
		}
		for _, rev := range ev.Path {
			rc.MarkReported(rev)
		}
		return nil

	case reconcile.NewCommits:
		revs, err := resolver.NewRevisions(prev, cur)
		if err != nil {
			return err
		}
		return r.notifyRevisions(ctx, revs, pol, asm, rc, summary)
	}
	return nil
}

// notifyRevisions drives the commit-level stream: one message per admitted
// revision, or a single digest in changeset mode.
func (r *Runner) notifyRevisions(ctx context.Context, revs []string, pol *policy.Policy,
	asm *assemble.Assembler, rc *RunContext, summary *Summary) error {

	var batch []assemble.Entry

	for _, rev := range revs {
		info, err := r.Insp.Describe(rev)
		if err != nil {
			// Dangling revision: reachable when the snapshot was taken,
			// gone by the time it is described. Not an error.
			r.Log.Warn("revision not describable, skipping", zap.String("rev", rev), zap.Error(err))
			summary.Suppressed++
			continue
		}

		branches := pol.InterestingBranches(info.Branches)
		if len(branches) == 0 {
			r.Log.Debug("no containing branch of interest", zap.String("rev", rev))
			summary.Suppressed++
			continue
		}

		var remotes []string
		if pol.IgnoreRemotes {
			remotes, err = r.Insp.RemotesContaining(rev)
			if err != nil {
				return err
			}
		}

		decision, reason := pol.Admit(info, remotes, rc.Reported(rev), rc.Forced)
		if decision == policy.Skip {
			r.Log.Debug("revision skipped", zap.String("rev", rev), zap.String("reason", reason))
			rc.MarkReported(rev)
			summary.Suppressed++
			continue
		}

		withDiff := decision == policy.Notify
		if r.Cfg.Changeset {
			batch = append(batch, assemble.Entry{Info: info, Branches: branches, WithDiff: withDiff})
			rc.MarkReported(rev)
			continue
		}

		msg, err := asm.Revision(info, branches, withDiff, r.freshBudget())
		if err != nil {
			return err
		}
		if msg == nil {
			summary.Suppressed++
			continue
		}
		if err := r.send(ctx, msg, summary); err != nil {
			return err
		}
		rc.MarkReported(rev)
	}

	if len(batch) > 0 {
		msg, err := asm.ChangesetDigest(batch, rc.Budget)
		if err != nil {
			return err
		}
		if msg != nil {
			return r.send(ctx, msg, summary)
		}
	}
	return nil
}

// Replay force-notifies every revision in an explicit range, bypassing the
// already-reported skip. The durable cache is not touched: replay is a
// backfill tool, not a state transition.
func (r *Runner) Replay(ctx context.Context, oldRev, newRev string) (*Summary, error) {
	resolver := &reconcile.Resolver{Insp: r.Insp}
	revs, err := resolver.Resolve(oldRev, newRev)
	if err != nil {
		return nil, err
	}

	pol := policy.FromConfig(r.Cfg, r.Now())
	rc := NewRunContext(r.Cfg.Limits.MaxDiffBytes, true)
	asm := r.assembler(pol)
	summary := &Summary{}

	r.Log.Info("replaying range",
		zap.String("old", oldRev), zap.String("new", newRev), zap.Int("revisions", len(revs)))
	if err := r.notifyRevisions(ctx, revs, pol, asm, rc, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// ManualDiff mails the diff of an arbitrary range once: a synthetic marker
// derived from the range suppresses repeats across runs.
func (r *Runner) ManualDiff(ctx context.Context, oldRev, newRev string) (*Summary, error) {
	statePath := r.Cfg.StatePath()
	cache, found, err := state.Load(statePath)
	if err != nil {
		return nil, err
	}
	if !found {
		snap, err := state.TakeSnapshot(r.Insp)
		if err != nil {
			return nil, err
		}
		cache = state.NewCache(snap)
	}

	marker := assemble.DiffMarker(oldRev, newRev)
	if _, ok := cache.Diffs[marker]; ok {
		r.Log.Info("diff already mailed", zap.String("range", oldRev+".."+newRev))
		return &Summary{Suppressed: 1}, nil
	}

	pol := policy.FromConfig(r.Cfg, r.Now())
	rc := NewRunContext(r.Cfg.Limits.MaxDiffBytes, true)
	asm := r.assembler(pol)
	summary := &Summary{}

	msg, err := asm.RangeDiff(oldRev, newRev, rc.Budget)
	if err != nil {
		return nil, err
	}
	if err := r.send(ctx, msg, summary); err != nil {
		return nil, err
	}

	cache.Diffs[marker] = struct{}{}
	if err := r.persist(cache); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Runner) assembler(pol *policy.Policy) *assemble.Assembler {
	return &assemble.Assembler{
		Insp:          r.Insp,
		Policy:        pol,
		Repository:    r.Cfg.DisplayName(),
		Link:          r.Cfg.Mail.Link,
		SubjectPrefix: r.Cfg.Mail.SubjectPrefix,
		MaxSubjectLen: r.Cfg.Mail.MaxSubjectLen,
		HTML:          r.Cfg.HTML,
	}
}

// freshBudget returns a per-message diff budget. The budget only shrinks
// across messages inside a changeset digest; every standalone message is
// bounded against the full configured limit.
func (r *Runner) freshBudget() *assemble.ByteBudget {
	return &assemble.ByteBudget{Remaining: r.Cfg.Limits.MaxDiffBytes}
}

func dropReported(revs []string, rc *RunContext) []string {
	out := revs[:0:0]
	for _, rev := range revs {
		if !rc.Reported(rev) {
			out = append(out, rev)
		}
	}
	return out
}

// describeAll resolves the revisions of a ref-level listing. A revision
// that cannot be described anymore is dangling, not an error; it is logged
// and dropped from the listing.
func (r *Runner) describeAll(revs []string) []*git.RevisionInfo {
	infos := make([]*git.RevisionInfo, 0, len(revs))
	for _, rev := range revs {
		info, err := r.Insp.Describe(rev)
		if err != nil {
			r.Log.Warn("revision not describable, skipping", zap.String("rev", rev), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// send paces, addresses and transmits one message. A transport failure is
// fatal to the run so the cache is never updated past an unsent
// notification.
func (r *Runner) send(ctx context.Context, msg *mail.Message, summary *Summary) error {
	if msg == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	msg.To = r.Cfg.Mail.To
	msg.From = r.Cfg.Mail.Sender
	msg.ReplyTo = r.Cfg.Mail.ReplyTo
	msg.Date = r.Now()

	if err := r.Transport.Send(msg); err != nil {
		return fmt.Errorf("send %q: %w", msg.Subject, err)
	}

	summary.Sent++
	summary.Bytes += len(msg.Body)
	r.Log.Info("message sent", zap.String("subject", msg.Subject), zap.Int("bytes", len(msg.Body)))
	return nil
}

func (r *Runner) persist(cache *state.Cache) error {
	if r.Cfg.NoUpdate || r.Cfg.Debug {
		r.Log.Info("state update suppressed")
		return nil
	}
	return state.Save(r.Cfg.StatePath(), cache)
}

package assemble

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/githerald/githerald/internal/git"
	"github.com/githerald/githerald/internal/mail"
	"github.com/githerald/githerald/internal/policy"
	"github.com/githerald/githerald/internal/reconcile"
)

const separator = ">---------------------------------------------------------------"

// ByteBudget is the mutable diff-size budget shared across one run. In
// changeset mode every included diff shrinks it, so later revisions in a
// large batch degrade to stat-only first.
type ByteBudget struct {
	Remaining int
}

// Fits reports whether a payload of n bytes is within the budget.
func (b *ByteBudget) Fits(n int) bool { return n <= b.Remaining }

// Spend consumes n bytes of the budget.
func (b *ByteBudget) Spend(n int) { b.Remaining -= n }

// Assembler builds bounded-size notification messages. It never talks to a
// transport; addressing and delivery belong to the dispatcher.
type Assembler struct {
	Insp          git.Inspector
	Policy        *policy.Policy
	Repository    string
	Link          string // %s = revision id, %r = repository name
	SubjectPrefix string
	MaxSubjectLen int
	HTML          bool
}

// Revision builds the message for one admitted revision. Returns nil if
// the revision's branches of interest are empty (dangling revision).
func (a *Assembler) Revision(info *git.RevisionInfo, branches []string, withDiff bool, budget *ByteBudget) (*mail.Message, error) {
	if len(branches) == 0 {
		return nil, nil
	}

	var b strings.Builder
	a.writeTagBlock(&b, "Branch", strings.Join(branches, ", "), info.ID)
	b.WriteString("\n" + separator + "\n\n")
	b.WriteString(describeText(info))
	b.WriteString("\n" + separator + "\n\n")

	mode := a.Policy.DiffMode(branches)
	payload, footer := a.payload("", info.ID, mode, withDiff, budget)
	b.WriteString(payload)
	a.writeFooter(&b, footer)

	subject := fmt.Sprintf("%s: %s (%s)", strings.Join(branches, ","), info.Subject, abbrev(info.ID))
	msg := a.message(subject, b.String())
	msg.Extra["X-Git-Revision"] = info.ID
	return msg, nil
}

// HeadSummary builds the moved-branch summary: the newly reachable commits
// folded into one message, with a diffstat of the whole move.
func (a *Assembler) HeadSummary(ev reconcile.Event, entries []*git.RevisionInfo, budget *ByteBudget) (*mail.Message, error) {
	var b strings.Builder
	a.writeTagBlock(&b, "Branch", ev.Name, ev.NewRev)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Branch %s now includes the following %d commits:\n\n", ev.Name, len(entries))
	for _, info := range entries {
		fmt.Fprintf(&b, "    %s  %s\n", abbrev(info.ID), info.Subject)
	}
	b.WriteString("\n" + separator + "\n\n")

	payload, footer := a.rangePayload(ev.OldRev, ev.NewRev, budget)
	b.WriteString(payload)
	a.writeFooter(&b, footer)

	subject := fmt.Sprintf("%s: %d new changesets", ev.Name, len(entries))
	return a.message(subject, b.String()), nil
}

// RefChange builds the message for a branch or tag lifecycle event.
// entries lists the commits a new branch brings in, when any.
func (a *Assembler) RefChange(ev reconcile.Event, entries []*git.RevisionInfo) *mail.Message {
	kind := "Branch"
	if ev.Kind == reconcile.TagAdded || ev.Kind == reconcile.TagRemoved {
		kind = "Tag"
	}

	var b strings.Builder
	switch ev.Kind {
	case reconcile.BranchRemoved, reconcile.TagRemoved:
		a.writeTagBlock(&b, kind, ev.Name, "")
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s has been removed.\n", kind, ev.Name)
		if ev.OldRev != "" {
			fmt.Fprintf(&b, "It previously pointed at %s.\n", ev.OldRev)
		}
	default:
		a.writeTagBlock(&b, kind, ev.Name, ev.NewRev)
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s has been created, pointing at %s.\n", kind, ev.Name, ev.NewRev)
		if len(entries) > 0 {
			fmt.Fprintf(&b, "\nIt includes the following %d new commits:\n\n", len(entries))
			for _, info := range entries {
				fmt.Fprintf(&b, "    %s  %s\n", abbrev(info.ID), info.Subject)
			}
		}
	}

	verb := "created"
	if ev.Kind == reconcile.BranchRemoved || ev.Kind == reconcile.TagRemoved {
		verb = "deleted"
	}
	subject := fmt.Sprintf("%s %s %s", strings.ToLower(kind), ev.Name, verb)
	return a.message(subject, b.String())
}

// payload produces the diff-or-stat section for a single revision,
// degrading to stat-only on generation failure or budget overflow. The
// returned footer explains a suppression, naming the command an operator
// can re-run.
func (a *Assembler) payload(oldRev, newRev string, mode git.DiffMode, withDiff bool, budget *ByteBudget) (string, string) {
	if !withDiff {
		return a.statOnly(oldRev, newRev), "Diff suppressed by " + policy.MarkerNoDiff + "."
	}

	diff, err := a.Insp.Diff(oldRev, newRev, mode)
	if err != nil {
		var de *git.DiffError
		footer := "Diff generation failed."
		if errors.As(err, &de) {
			footer = fmt.Sprintf("Diff generation failed (exit status %d).\nTo retry manually, run: %s", de.ExitCode, de.Cmd)
		}
		return a.statOnly(oldRev, newRev), footer
	}

	if !budget.Fits(len(diff)) {
		footer := fmt.Sprintf("Diff suppressed because of size (%d bytes).\nTo see it, run: %s",
			len(diff), git.DiffCommand(oldRev, newRev, mode))
		return a.statOnly(oldRev, newRev), footer
	}

	budget.Spend(len(diff))
	return string(diff), ""
}

// rangePayload is payload for an old..new range (moved-branch summaries
// and manual changeset diffs).
func (a *Assembler) rangePayload(oldRev, newRev string, budget *ByteBudget) (string, string) {
	return a.payload(oldRev, newRev, git.DiffDefault, true, budget)
}

func (a *Assembler) statOnly(oldRev, newRev string) string {
	stat, err := a.Insp.DiffStat(oldRev, newRev)
	if err != nil {
		return ""
	}
	return string(stat)
}

func (a *Assembler) writeTagBlock(b *strings.Builder, refKind, refNames, rev string) {
	fmt.Fprintf(b, "Repository : %s\n", a.Repository)
	if refNames != "" {
		fmt.Fprintf(b, "%-10s : %s\n", refKind, refNames)
	}
	if a.Link != "" && rev != "" {
		link := strings.ReplaceAll(a.Link, "%s", rev)
		link = strings.ReplaceAll(link, "%r", a.Repository)
		fmt.Fprintf(b, "Link       : %s\n", link)
	}
}

func (a *Assembler) writeFooter(b *strings.Builder, footer string) {
	if footer == "" {
		return
	}
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n" + separator + "\n" + footer + "\n")
}

func (a *Assembler) message(subject, body string) *mail.Message {
	full := subject
	if a.SubjectPrefix != "" {
		full = a.SubjectPrefix + " " + subject
	}
	full = truncateSubject(full, a.MaxSubjectLen)

	msg := &mail.Message{
		Subject: full,
		Body:    body,
		Extra:   map[string]string{"X-Git-Repository": a.Repository},
	}
	if a.HTML {
		msg.HTMLBody = Htmlify(body)
	}
	return msg
}

// describeText renders the canonical commit description. Lines consisting
// only of "---" are replaced so mail clients do not treat the remainder as
// a signature.
func describeText(info *git.RevisionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", info.ID)
	fmt.Fprintf(&b, "Author: %s\n", info.Author)
	fmt.Fprintf(&b, "Date:   %s\n\n", info.CommitterDate.Format(time.RFC1123Z))
	for _, line := range strings.Split(info.Body, "\n") {
		if strings.TrimSpace(line) == "---" {
			line = "----"
		}
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}

// truncateSubject bounds a subject to max runes, ellipsis included, without
// splitting a multi-byte rune. max <= 3 leaves no room for the ellipsis and
// disables truncation.
func truncateSubject(subject string, max int) string {
	if max <= 3 {
		return subject
	}
	runes := []rune(subject)
	if len(runes) <= max {
		return subject
	}
	return string(runes[:max-3]) + "..."
}

func abbrev(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

package assemble

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/githerald/githerald/internal/git"
	"github.com/githerald/githerald/internal/mail"
)

// Entry is one revision admitted into a changeset digest.
type Entry struct {
	Info     *git.RevisionInfo
	Branches []string
	WithDiff bool
}

// ChangesetDigest folds multiple revisions into one message. The shared
// budget shrinks with every included diff, so chronologically older
// revisions (listed first) win diff space over later ones.
func (a *Assembler) ChangesetDigest(entries []Entry, budget *ByteBudget) (*mail.Message, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	branches := unionBranches(entries)

	var b strings.Builder
	a.writeTagBlock(&b, "Branch", strings.Join(branches, ", "), entries[len(entries)-1].Info.ID)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d new changesets:\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "    %s  %s\n", abbrev(e.Info.ID), e.Info.Subject)
	}

	for _, e := range entries {
		b.WriteString("\n" + separator + "\n\n")
		b.WriteString(describeText(e.Info))
		b.WriteString("\n")

		mode := a.Policy.DiffMode(e.Branches)
		payload, footer := a.payload("", e.Info.ID, mode, e.WithDiff, budget)
		b.WriteString(payload)
		a.writeFooter(&b, footer)
	}

	subject := fmt.Sprintf("%s: %d new changesets", strings.Join(branches, ","), len(entries))
	msg := a.message(subject, b.String())
	return msg, nil
}

// RangeDiff builds the manual changeset mail for an explicit old..new
// range.
func (a *Assembler) RangeDiff(oldRev, newRev string, budget *ByteBudget) (*mail.Message, error) {
	var b strings.Builder
	a.writeTagBlock(&b, "Range", oldRev+".."+newRev, newRev)
	b.WriteString("\n" + separator + "\n\n")

	payload, footer := a.rangePayload(oldRev, newRev, budget)
	b.WriteString(payload)
	a.writeFooter(&b, footer)

	subject := fmt.Sprintf("diff %s..%s", abbrev(oldRev), abbrev(newRev))
	msg := a.message(subject, b.String())
	return msg, nil
}

// DiffMarker derives the synthetic pseudo-revision id recorded in the
// durable cache to suppress a duplicate manual-mode diff of the same
// range.
func DiffMarker(oldRev, newRev string) string {
	sum := sha1.Sum([]byte(oldRev + ".." + newRev))
	return hex.EncodeToString(sum[:])
}

func unionBranches(entries []Entry) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range entries {
		for _, name := range e.Branches {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffCommand(t *testing.T) {
	tests := []struct {
		name   string
		oldRev string
		newRev string
		mode   DiffMode
		want   string
	}{
		{
			name:   "single revision default",
			newRev: "abc123",
			mode:   DiffDefault,
			want:   "git diff-tree --no-color --root -p -m abc123",
		},
		{
			name:   "single revision merge",
			newRev: "abc123",
			mode:   DiffMerge,
			want:   "git diff-tree --no-color --root -p --cc abc123",
		},
		{
			name:   "single revision first parent",
			newRev: "abc123",
			mode:   DiffFirstParent,
			want:   "git diff-tree --no-color --root -p --first-parent -m abc123",
		},
		{
			name:   "range ignores mode",
			oldRev: "abc123",
			newRev: "def456",
			mode:   DiffMerge,
			want:   "git diff --no-color abc123 def456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiffCommand(tt.oldRev, tt.newRev, tt.mode))
		})
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantSubject string
		wantBody    string
	}{
		{
			name:        "subject only",
			message:     "fix the widget\n",
			wantSubject: "fix the widget",
			wantBody:    "fix the widget",
		},
		{
			name:        "subject and body",
			message:     "fix the widget\n\nlonger explanation\n",
			wantSubject: "fix the widget",
			wantBody:    "fix the widget\n\nlonger explanation",
		},
		{
			name:        "empty message",
			message:     "",
			wantSubject: "",
			wantBody:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := splitMessage(tt.message)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

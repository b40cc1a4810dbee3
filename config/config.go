package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration structure.
type Config struct {
	Repository string          `json:"repository"` // display name, defaults to the directory name
	RepoPath   string          `json:"repoPath"`
	StateFile  string          `json:"stateFile"` // defaults to <repoPath>/githerald.state
	Mail       MailConfig      `json:"mail"`
	Limits     LimitConfig     `json:"limits"`
	Branches   BranchConfig    `json:"branches"`
	Transport  TransportConfig `json:"transport"`
	Changeset  bool            `json:"changeset"` // batch a push into one digest message
	HTML       bool            `json:"html"`      // attach an HTML rendering of the body
	NoUpdate   bool            `json:"noUpdate"`  // run without rewriting the state file
	Debug      bool            `json:"debug"`     // print messages instead of sending
}

// MailConfig holds addressing and presentation options.
type MailConfig struct {
	To            []string `json:"to"`
	Sender        string   `json:"sender"`
	ReplyTo       string   `json:"replyTo"`
	SubjectPrefix string   `json:"subjectPrefix"`
	MaxSubjectLen int      `json:"maxSubjectLen"` // 0 = unlimited
	Link          string   `json:"link"`          // template, %s = revision id, %r = repository
}

// LimitConfig holds size and pacing limits.
type LimitConfig struct {
	MaxDiffBytes int `json:"maxDiffBytes"`
	MaxAgeDays   int `json:"maxAgeDays"` // 0 = no age cutoff
	PaceMillis   int `json:"paceMillis"` // minimum gap between messages
}

// BranchConfig holds per-branch notification policy. All fields are
// doublestar glob patterns matched against short branch names.
type BranchConfig struct {
	Include       []string `json:"include"`     // empty = all branches
	Exclude       []string `json:"exclude"`     // wins over include
	FullHistory   []string `json:"fullHistory"` // per-commit mails instead of a summary
	MergeDiff     []string `json:"mergeDiff"`   // combined merge diffs (--cc)
	FirstParent   []string `json:"firstParent"` // merge commits diffed against the first parent only
	IgnoreRemotes bool     `json:"ignoreRemotes"`
}

// TransportConfig selects and parameterizes the outgoing mail transport.
type TransportConfig struct {
	Kind     string `json:"kind"` // "sendmail" or "smtp"
	Sendmail string `json:"sendmail"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	StartTLS bool   `json:"startTLS"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		RepoPath: ".",
		Mail: MailConfig{
			SubjectPrefix: "[git]",
			MaxSubjectLen: 0,
		},
		Limits: LimitConfig{
			MaxDiffBytes: 50 * 1024,
			MaxAgeDays:   0,
			PaceMillis:   1000,
		},
		Branches: BranchConfig{
			Include: []string{},
			Exclude: []string{},
		},
		Transport: TransportConfig{
			Kind:     "sendmail",
			Sendmail: "/usr/sbin/sendmail",
			Port:     25,
		},
	}
}

// Load reads configuration from a file, merging with defaults. An empty
// path tries .githerald.json in the working directory, then in the home
// directory; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		candidates := []string{".githerald.json"}
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			candidates = append(candidates, filepath.Join(home, ".githerald.json"))
		}
		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if !c.Debug && len(c.Mail.To) == 0 {
		return fmt.Errorf("no recipients configured")
	}
	if !c.Debug && c.Mail.Sender == "" {
		return fmt.Errorf("no sender configured")
	}
	switch c.Transport.Kind {
	case "sendmail", "smtp":
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Limits.MaxDiffBytes <= 0 {
		return fmt.Errorf("maxDiffBytes must be positive")
	}
	return nil
}

// DisplayName returns the configured repository name, falling back to the
// repository directory's base name.
func (c *Config) DisplayName() string {
	if c.Repository != "" {
		return c.Repository
	}
	abs, err := filepath.Abs(c.RepoPath)
	if err != nil {
		return c.RepoPath
	}
	return filepath.Base(abs)
}

// StatePath returns the state file location, defaulting to a file next to
// the repository.
func (c *Config) StatePath() string {
	if c.StateFile != "" {
		return c.StateFile
	}
	return filepath.Join(c.RepoPath, "githerald.state")
}

package mail

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Message is a finished notification ready for a transport: addressing,
// headers, a plain-text body and an optional HTML alternative.
type Message struct {
	To      []string
	From    string
	ReplyTo string
	Subject string
	Date    time.Time

	// Extra holds additional headers, e.g. X-Git-Repository.
	Extra map[string]string

	Body     string
	HTMLBody string
}

// Transport delivers a finished message. Implementations are swappable
// (local submission command, SMTP, test capture); the choice is opaque to
// the notification core.
type Transport interface {
	Send(msg *Message) error
}

const altBoundary = "=-githerald-alt"

// Render serializes the message as an RFC 822 text suitable for piping
// into a local mail submission command. When an HTML body is present the
// result is a multipart/alternative with the plain text first.
func (m *Message) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\n", m.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	if !m.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", m.Date.Format(time.RFC1123Z))
	}
	if m.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\n", m.ReplyTo)
	}
	for _, name := range sortedHeaderNames(m.Extra) {
		fmt.Fprintf(&b, "%s: %s\n", name, m.Extra[name])
	}

	if m.HTMLBody == "" {
		b.WriteString("\n")
		b.WriteString(m.Body)
		return b.String()
	}

	fmt.Fprintf(&b, "MIME-Version: 1.0\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\n\n", altBoundary)
	fmt.Fprintf(&b, "--%s\nContent-Type: text/plain; charset=utf-8\n\n%s\n", altBoundary, m.Body)
	fmt.Fprintf(&b, "--%s\nContent-Type: text/html; charset=utf-8\n\n%s\n", altBoundary, m.HTMLBody)
	fmt.Fprintf(&b, "--%s--\n", altBoundary)
	return b.String()
}

func sortedHeaderNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DebugTransport writes rendered messages to w instead of delivering
// them. Used by debug mode.
type DebugTransport struct {
	W io.Writer
}

func (d *DebugTransport) Send(msg *Message) error {
	_, err := fmt.Fprintf(d.W, "%s\n\n", msg.Render())
	return err
}

// CaptureTransport records every message instead of delivering it. Test
// double; also backs debug mode's dry-run accounting.
type CaptureTransport struct {
	Messages []*Message
	Err      error
}

func (c *CaptureTransport) Send(msg *Message) error {
	if c.Err != nil {
		return c.Err
	}
	c.Messages = append(c.Messages, msg)
	return nil
}

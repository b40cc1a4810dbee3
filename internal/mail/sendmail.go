package mail

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// SendmailTransport pipes rendered messages into a local mail submission
// command, sendmail-compatible (-t reads recipients from the headers).
type SendmailTransport struct {
	// Command is the submission binary, e.g. /usr/sbin/sendmail.
	Command string
}

func (t *SendmailTransport) Send(msg *Message) error {
	cmd := exec.Command(t.Command, "-t")
	cmd.Stdin = strings.NewReader(msg.Render())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", t.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

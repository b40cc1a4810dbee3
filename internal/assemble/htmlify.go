package assemble

import (
	"fmt"
	"strings"
)

// Htmlify renders a plain-text notification body as a minimal HTML
// document for mail clients: leading indentation is preserved with
// non-breaking spaces, removed diff lines are colored dark red and added
// lines dark green.
func Htmlify(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = mangleLine(line)
	}
	return fmt.Sprintf("<html><body><tt>%s</tt></body></html>", strings.Join(lines, "<br>"))
}

func mangleLine(line string) string {
	content := strings.TrimLeft(line, " \t")
	leading := strings.Repeat("&nbsp;", len(line)-len(content))

	if strings.HasPrefix(content, "-") {
		return fmt.Sprintf(`<span style="color:#800">%s%s</span>`, leading, content)
	}
	if strings.HasPrefix(content, "+") {
		return fmt.Sprintf(`<span style="color:#080">%s%s</span>`, leading, content)
	}
	return leading + content
}

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/agentwire/session"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

const (
	bodyIndent   = "  "
	minWrapWidth = 20
	ellipsis     = "…"
)

var roleColors = map[session.Role]text.Colors{
	session.RoleUser:      {text.FgHiCyan, text.Bold},
	session.RoleAssistant: {text.FgHiGreen, text.Bold},
	session.RoleSystem:    {text.FgHiYellow},
}

var roleLabels = map[session.Role]string{
	session.RoleUser:      "you",
	session.RoleAssistant: "agent",
	session.RoleSystem:    "system",
}

// renderer prints the transcript as an append-only log. Committed entries are
// printed once; the streaming partial lives on a status line that is
// rewritten in place when the output is a terminal.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	color   bool
	live    bool
	width   int
	printed []string
	conn    session.ConnectionState
	status  bool
	seen    bool
}

func newRenderer(out io.Writer, color, live bool, width int) *renderer {
	return &renderer{out: out, color: color, live: live, width: width}
}

// update is the session OnChange hook
func (r *renderer) update(view session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearStatus()

	if !r.seen || view.Connection != r.conn {
		r.seen = true
		r.conn = view.Connection
		r.line(r.paint(text.Colors{text.FgHiBlack}, connectionNotice(view.Connection)))
	}

	start := len(r.printed)
	if !sameHistory(r.printed, view.Messages) {
		// Hydration or a gateway session switch replaced the transcript
		r.line(r.paint(text.Colors{text.FgHiBlack}, "── conversation reloaded ──"))
		r.printed = r.printed[:0]
		start = 0
	}
	for _, msg := range view.Messages[start:] {
		for _, l := range formatMessage(msg, r.width, r.color) {
			r.line(l)
		}
		r.printed = append(r.printed, msg.ID)
	}

	if view.Partial != "" && r.live {
		prefix := roleLabels[session.RoleAssistant] + " ▸ "
		partial := tailToWidth(flatten(view.Partial), r.width-runewidth.StringWidth(prefix)-1)
		fmt.Fprint(r.out, r.paint(text.Colors{text.FgHiBlack}, prefix)+partial)
		r.status = true
	}
}

// notice prints a client-side line such as a recording tick
func (r *renderer) notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearStatus()
	r.line(r.paint(text.Colors{text.FgHiBlack}, fmt.Sprintf(format, args...)))
}

func (r *renderer) clearStatus() {
	if r.status {
		fmt.Fprint(r.out, "\r\033[K")
		r.status = false
	}
}

func (r *renderer) line(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *renderer) paint(c text.Colors, s string) string {
	if !r.color {
		return s
	}
	return c.Sprint(s)
}

func connectionNotice(state session.ConnectionState) string {
	switch state {
	case session.Connected:
		return "● connected"
	case session.Connecting:
		return "○ connecting…"
	default:
		return "○ disconnected, retrying"
	}
}

// sameHistory reports whether the already printed ids are a prefix of msgs
func sameHistory(printed []string, msgs []session.Message) bool {
	if len(msgs) < len(printed) {
		return false
	}
	for i, id := range printed {
		if msgs[i].ID != id {
			return false
		}
	}
	return true
}

// formatMessage renders one transcript entry as a header line followed by the
// soft-wrapped, indented body.
func formatMessage(msg session.Message, width int, color bool) []string {
	label, ok := roleLabels[msg.Role]
	if !ok {
		label = string(msg.Role)
	}
	header := label + " · " + msg.Timestamp.Local().Format(time.Kitchen)
	if color {
		header = roleColors[msg.Role].Sprint(label) + text.Colors{text.FgHiBlack}.Sprint(" · "+msg.Timestamp.Local().Format(time.Kitchen))
	}

	wrap := width - len(bodyIndent)
	if wrap < minWrapWidth {
		wrap = minWrapWidth
	}

	lines := []string{header}
	if msg.Thinking != "" {
		thinking := text.WrapSoft(msg.Thinking, wrap)
		for _, l := range strings.Split(thinking, "\n") {
			if color {
				l = text.Colors{text.FgHiBlack, text.Italic}.Sprint(l)
			}
			lines = append(lines, bodyIndent+l)
		}
	}
	for _, l := range strings.Split(text.WrapSoft(msg.Content, wrap), "\n") {
		lines = append(lines, bodyIndent+l)
	}
	return lines
}

// flatten collapses a multi-line partial into one status line
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tailToWidth keeps the end of s so that it fits in width cells; streaming
// text grows at the end, which is the part worth showing.
func tailToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}

	budget := width - runewidth.StringWidth(ellipsis)
	runes := []rune(s)
	used := 0
	i := len(runes)
	for i > 0 {
		w := runewidth.RuneWidth(runes[i-1])
		if used+w > budget {
			break
		}
		used += w
		i--
	}
	return ellipsis + string(runes[i:])
}

package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/unreadbell/internal/snapshot"
	"github.com/five82/unreadbell/internal/state"
)

// Link status values, used as badge labels and theme color keys.
const (
	statusWaiting  = "waiting"
	statusLive     = "live"
	statusRevive   = "resync"
	statusStale    = "stale"
	statusDegraded = "degraded"
)

// linkStatus classifies the listener view for the header badge.
func linkStatus(v state.View, now time.Time, staleAfter time.Duration) string {
	switch {
	case v.IsDegraded():
		return statusDegraded
	case !v.HasPacket:
		return statusWaiting
	case v.IsStale(now, staleAfter):
		return statusStale
	case v.Revive:
		return statusRevive
	default:
		return statusLive
	}
}

func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	switch m.currentView {
	case ViewLogs:
		title := "Relay Log"
		if m.follow {
			title += " (follow)"
		}
		b.WriteString(m.renderBox(title, m.logViewport.View()))
	default:
		b.WriteString(m.renderBox("Unread", m.unreadViewport.View()))
	}
	return b.String()
}

// renderHeader renders the status bar: logo, link badge, totals and age.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	status := linkStatus(m.view, m.now, m.staleAfter)

	parts := []string{
		styles.Logo.Render("unreadbell"),
		styles.StatusStyle(status).Render(strings.ToUpper(status)),
	}

	if m.view.HasPacket {
		t := m.view.Unread.Totals()
		parts = append(parts,
			styles.MutedText.Render("Conversations:")+" "+styles.Text.Render(fmt.Sprint(t.Conversations)),
			styles.MutedText.Render("Messages:")+" "+styles.Text.Render(fmt.Sprint(t.Messages)),
			styles.MutedText.Render("Guilds:")+" "+styles.Text.Render(fmt.Sprint(t.Containers)),
		)
		if t.Mentions > 0 {
			parts = append(parts, styles.WarningText.Render(fmt.Sprintf("@%d", t.Mentions)))
		}
		parts = append(parts, styles.FaintText.Render(humanizeDuration(m.now.Sub(m.view.LastUpdated))+" ago"))
	} else if m.source != "" {
		parts = append(parts, styles.WarningText.Render("Listening on "+truncateMiddle(m.source, 40)))
	}

	if m.width >= 100 {
		parts = append(parts, styles.MutedText.Render(fmt.Sprintf("relays:%d packets:%d", m.view.Clients, m.view.Packets)))
	}
	if m.view.LastError != nil {
		parts = append(parts, styles.DangerText.Render(truncate(m.view.LastError.Error(), 40)))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd
	switch m.currentView {
	case ViewLogs:
		followLabel := "Pause"
		if !m.follow {
			followLabel = "Follow"
		}
		commands = []cmd{{"f", followLabel}, {"j/k", "Scroll"}, {"u", "Unread"}, {"?", "More"}}
	default:
		commands = []cmd{{"j/k", "Scroll"}}
		if m.logPath != "" {
			commands = append(commands, cmd{"l", "Logs"})
		}
		commands = append(commands, cmd{"T", m.theme.Name}, cmd{"?", "More"})
	}

	parts := make([]string, 0, len(commands))
	for _, c := range commands {
		parts = append(parts, styles.AccentText.Render("<"+c.key+">")+" "+styles.MutedText.Render(c.desc))
	}
	return styles.Footer.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderBox(title, content string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(m.theme.Border)).
		Padding(0, 1).
		Width(max(m.width-2, 1))
	heading := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text)).Render(title)
	return border.Render(heading + "\n" + content)
}

// renderUnreadContent lists conversations and guilds, busiest first.
func (m Model) renderUnreadContent() string {
	styles := m.theme.Styles()
	if !m.view.HasPacket {
		return styles.MutedText.Render("No update received yet.")
	}

	var b strings.Builder
	rows := conversationRows(m.view.Unread)
	b.WriteString(styles.AccentText.Render("Conversations"))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString(styles.FaintText.Render("  nothing unread"))
		b.WriteString("\n")
	}
	for _, r := range rows {
		countStyle := styles.MutedText
		if r.unread > 0 {
			countStyle = styles.SuccessText
		}
		fmt.Fprintf(&b, "  %s %s %s\n",
			countStyle.Render(fmt.Sprintf("%4d", r.unread)),
			styles.Text.Render(truncate(r.name, 48)),
			styles.FaintText.Render(r.detail))
	}

	guilds := guildRows(m.view.Unread)
	b.WriteString("\n")
	b.WriteString(styles.AccentText.Render("Guilds"))
	b.WriteString("\n")
	if len(guilds) == 0 {
		b.WriteString(styles.FaintText.Render("  nothing unread"))
		b.WriteString("\n")
	}
	for _, g := range guilds {
		mention := ""
		if g.mentions > 0 {
			mention = styles.WarningText.Render(fmt.Sprintf(" @%d", g.mentions))
		}
		fmt.Fprintf(&b, "  %s %s%s\n",
			styles.SuccessText.Render(fmt.Sprintf("%4d", g.unread)),
			styles.Text.Render(truncate(g.name, 48)),
			mention)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderLogContent() string {
	styles := m.theme.Styles()
	if m.logErr != nil {
		return styles.DangerText.Render("Log unavailable: " + m.logErr.Error())
	}
	if len(m.logLines) == 0 {
		return styles.MutedText.Render("No log output yet.")
	}
	lines := make([]string, len(m.logLines))
	for i, line := range m.logLines {
		lines[i] = m.colorizeLogLine(line)
	}
	return strings.Join(lines, "\n")
}

// colorizeLogLine tints a formatted log line by its level token.
func (m Model) colorizeLogLine(line string) string {
	styles := m.theme.Styles()
	padded := " " + line + " "
	switch {
	case strings.Contains(padded, " ERROR "), strings.Contains(padded, " FATAL "):
		return styles.DangerText.Render(line)
	case strings.Contains(padded, " WARN "):
		return styles.WarningText.Render(line)
	case strings.Contains(padded, " DEBUG "):
		return styles.FaintText.Render(line)
	default:
		return styles.Text.Render(line)
	}
}

func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	h := m.help
	h.ShowAll = true
	title := styles.Text.Bold(true).Render("Keyboard Shortcuts")
	hint := styles.FaintText.Render("Press any key to close")
	return lipgloss.NewStyle().Padding(1, 2).Render(title + "\n\n" + h.View(m.keys) + "\n\n" + hint)
}

type conversationRow struct {
	name   string
	detail string
	unread uint32
}

func conversationRows(s snapshot.Snapshot) []conversationRow {
	rows := make([]conversationRow, 0, len(s.DirectMessages)+len(s.Groups))
	for peer, dm := range s.DirectMessages {
		name := dm.DisplayName
		if name == "" {
			name = peer
		}
		rows = append(rows, conversationRow{name: name, detail: "dm", unread: dm.UnreadCount})
	}
	for id, g := range s.Groups {
		name := g.Name
		if name == "" {
			names := make([]string, 0, len(g.Members))
			for _, u := range g.Members {
				names = append(names, u.Username)
			}
			name = strings.Join(names, ", ")
		}
		if name == "" {
			name = id
		}
		rows = append(rows, conversationRow{name: name, detail: fmt.Sprintf("group of %d", len(g.Members)), unread: g.UnreadCount})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].unread != rows[j].unread {
			return rows[i].unread > rows[j].unread
		}
		return rows[i].name < rows[j].name
	})
	return rows
}

type guildRow struct {
	name     string
	unread   uint32
	mentions uint32
}

func guildRows(s snapshot.Snapshot) []guildRow {
	rows := make([]guildRow, 0, len(s.Containers))
	for id, c := range s.Containers {
		name := c.Name
		if name == "" {
			name = id
		}
		rows = append(rows, guildRow{name: name, unread: c.UnreadCount, mentions: c.MentionCount})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].mentions != rows[j].mentions {
			return rows[i].mentions > rows[j].mentions
		}
		if rows[i].unread != rows[j].unread {
			return rows[i].unread > rows[j].unread
		}
		return rows[i].name < rows[j].name
	})
	return rows
}

// humanizeDuration renders d as a short age like "4s", "3m" or "2h".
func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

func truncateMiddle(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width < 5 {
		return truncate(s, width)
	}
	head := (width - 1) / 2
	tail := width - 1 - head
	return string(r[:head]) + "…" + string(r[len(r)-tail:])
}

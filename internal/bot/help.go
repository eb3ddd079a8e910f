package bot

import (
	"html"
	"sort"
	"strings"
)

// helpText renders Telegram-friendly help in HTML parse mode.
func (d *Dispatcher) helpText(args []string) string {
	d.mu.RLock()
	byName := d.commands
	ordered := d.ordered
	d.mu.RUnlock()

	if len(args) > 0 {
		name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(args[0])), "/")
		if c := byName[name]; c != nil {
			return helpCommandHTML(c)
		}
		return strings.Join([]string{
			"❓ <b>Perintah tidak dikenal</b>",
			"Coba ketik <code>/help</code> untuk melihat daftar perintah.",
		}, "\n")
	}

	rows := make([]*Command, 0, len(ordered))
	rows = append(rows, ordered...)
	// Owner-only at the bottom, alphabetical within groups.
	sort.SliceStable(rows, func(i, j int) bool {
		li, lj := rows[i].Access == AccessOwnerOnly, rows[j].Access == AccessOwnerOnly
		if li != lj {
			return !li
		}
		return rows[i].Name < rows[j].Name
	})

	lines := []string{
		"📚 <b>Daftar Perintah</b>",
		"Ketik <code>/help &lt;perintah&gt;</code> untuk detail.",
	}
	for _, c := range rows {
		suffix := ""
		if c.Description != "" {
			suffix = " — " + html.EscapeString(c.Description)
		}
		prefix := "• "
		if c.Access == AccessOwnerOnly {
			prefix = "• 🔒 "
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(c.Name)+"</code>"+suffix)
	}
	return strings.Join(lines, "\n")
}

func helpCommandHTML(c *Command) string {
	lines := []string{"📚 <b>Bantuan</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if strings.TrimSpace(c.Description) != "" {
		lines = append(lines, html.EscapeString(strings.TrimSpace(c.Description)))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>Khusus owner</i>")
	}
	if strings.TrimSpace(c.Usage) != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(strings.TrimSpace(c.Usage))+"</code>")
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, "", "<b>Alias</b>")
		for _, a := range c.Aliases {
			lines = append(lines, "• <code>/"+html.EscapeString(a)+"</code>")
		}
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) == "" && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

package router

import (
	"sort"
	"strings"

	"airwatch/pkg/tgui"
)

// helpText renders the command list for ParseMode "HTML".
// Owner-only commands are listed for owners only.
func (r *Router) helpText(owner bool) string {
	r.mu.RLock()
	cmds := make([]*Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		cmds = append(cmds, c)
	}
	r.mu.RUnlock()

	sort.Slice(cmds, func(i, j int) bool {
		if cmds[i].Access != cmds[j].Access {
			return cmds[i].Access < cmds[j].Access
		}
		return cmds[i].Name < cmds[j].Name
	})

	lines := []tgui.H{tgui.B("Commands")}
	for _, c := range cmds {
		line := "• " + tgui.Code("/"+c.Name).String()
		if u := strings.TrimSpace(c.Usage); u != "" {
			line = "• " + tgui.Code(u).String()
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + tgui.Esc(d).String()
		}
		lines = append(lines, tgui.H(line))
	}
	return tgui.Lines(lines...).String()
}

// Built-in command and automation handlers.
package plugins

import (
	"fmt"
	"strings"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/plugin"
)

const DefaultCommandPrefix = `\.`

// Pattern of an operator command: the prefix, the command name, then whitespace or end of text.
func command(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}
	return prefix + name + `(?:\s|$)`
}

// Registers every built-in handler, in a fixed order.
func DefaultPlugins(b *plugin.Builder, cfg plugin.Config) error {
	p := cfg.CommandPrefix
	regs := []plugin.Registration{
		{
			Name:     "gban",
			Pattern:  command(p, "gban"),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleGBan,
			Async:    true,
			Help:     "Globally ban users. Reply to a message to gban its author, or pass user IDs.\nUsage: gban <id>... [reason] | gban reason=\"<reason>\" <id>...",
		},
		{
			Name:     "ungban",
			Pattern:  command(p, "ungban"),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleUnGBan,
			Async:    true,
			Help:     "Lift global bans. Reply to a message or pass user IDs.\nUsage: ungban <id>...",
		},
		{
			Name:     "banlist",
			Pattern:  command(p, `b(?:an)?l(?:ist)?`),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleBanlist,
			Async:    true,
			Help:     "Query and manage the ban list.\nUsage: banlist query [<id>...] [reason=<text>] | banlist import <file.csv> | banlist export [<file.csv>]",
		},
		{
			Name:     "tag",
			Pattern:  command(p, "tag"),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleTag,
			Help:     "Show or change the chat's tags.\nUsage: tag | tag add <name> [<value>] | tag del <name> | tag clear",
		},
		{
			Name:     "lock",
			Pattern:  command(p, "lock"),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleLock,
			Help:     "Lock the chat to read-only for normal members.",
		},
		{
			Name:     "stats",
			Pattern:  command(p, "stats"),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleStats,
			Help:     "Show gban statistics.",
		},
		{
			Name:     "help",
			Pattern:  command(p, `h(?:elp)?`),
			Outgoing: plugin.OnlyOutgoing,
			Handler:  handleHelp,
		},
		{
			Name:     "grenzschutz",
			Kinds:    []events.Kind{events.KindMessage, events.KindChatAction},
			Outgoing: plugin.Any,
			Handler:  handleGrenzschutz,
		},
		{
			Name:     "reports",
			Pattern:  `[/!]report|[\s\S]*@admins?`,
			Outgoing: plugin.OnlyIncoming,
			Handler:  handleReport,
		},
	}
	for _, reg := range regs {
		if err := b.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// Renders one section per reason, for reports sent back to the requester.
func formatSection(title string, byReason map[string][]int64) string {
	if len(byReason) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, reason := range automod.Reasons(byReason) {
		fmt.Fprintf(&sb, "  Reason: %s\n  IDs: %s\n", reason, joinIDs(byReason[reason]))
	}
	return sb.String()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

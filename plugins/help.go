package plugins

import (
	"fmt"
	"strings"

	"github.com/kantek-org/kantek/plugin"
)

func handleHelp(c *plugin.Context) error {
	args, err := ParseArgs(commandArgs(c.Event.RawText()))
	if err != nil {
		c.Notify(err.Error())
		return err
	}
	regs := c.Env.Registry.Registrations()
	byName := map[string]plugin.Registration{}
	for _, r := range regs {
		byName[r.Name] = r
	}

	var sb strings.Builder
	if len(args.Positional) > 0 {
		var missing []string
		for _, name := range args.Positional {
			r, ok := byName[name]
			if !ok || r.Help == "" {
				missing = append(missing, name)
				continue
			}
			fmt.Fprintf(&sb, "%s\n%s\n\n", r.Name, r.Help)
		}
		if len(missing) > 0 {
			sb.WriteString("Commands not in Kantek or have help:\n")
			for _, name := range missing {
				fmt.Fprintf(&sb, "  %s\n", name)
			}
		}
	} else {
		sb.WriteString("Available Kantek commands:\n")
		for _, r := range regs {
			if r.Help == "" {
				continue
			}
			fmt.Fprintf(&sb, "  %s\n", r.Name)
		}
	}
	_, err = c.Respond(strings.TrimSpace(sb.String()))
	return err
}

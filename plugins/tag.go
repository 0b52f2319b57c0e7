package plugins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kantek-org/kantek/plugin"
)

func handleTag(c *plugin.Context) error {
	args, err := ParseArgs(commandArgs(c.Event.RawText()))
	if err != nil {
		c.Notify(err.Error())
		return err
	}
	tags, err := c.Tags()
	if err != nil {
		return err
	}

	if len(args.Positional) == 0 {
		_, err := c.Respond(formatTags(tags.Unnamed(), tags.Named()))
		return err
	}

	switch sub, rest := args.Positional[0], args.Positional[1:]; sub {
	case "add", "set":
		// "tag add polizei", "tag add gban verbose" and "tag add gban=verbose" are all accepted
		for k, v := range args.Keywords {
			if err := tags.Set(c.Ctx, k, tagValue(v)); err != nil {
				return err
			}
		}
		switch len(rest) {
		case 0:
			if len(args.Keywords) == 0 {
				c.Notify("Usage: tag add <name> [<value>]")
				return plugin.Validationf("missing tag name")
			}
		case 1:
			err = tags.Set(c.Ctx, rest[0], nil)
		default:
			err = tags.Set(c.Ctx, rest[0], tagValue(strings.Join(rest[1:], " ")))
		}
	case "del", "rm", "remove":
		if len(rest) == 0 {
			c.Notify("Usage: tag del <name>")
			return plugin.Validationf("missing tag name")
		}
		for _, name := range rest {
			if err = tags.Delete(c.Ctx, name); err != nil {
				break
			}
		}
	case "clear":
		err = tags.Clear(c.Ctx)
	default:
		c.Notify(fmt.Sprintf("Unknown subcommand %q.", sub))
		return plugin.Validationf("unknown tag subcommand %q", sub)
	}
	if err != nil {
		return err
	}
	_, err = c.Respond(formatTags(tags.Unnamed(), tags.Named()))
	return err
}

// Integer values are stored as numbers.
func tagValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func formatTags(unnamed []string, named map[string]any) string {
	if len(unnamed) == 0 && len(named) == 0 {
		return "No tags set."
	}
	var sb strings.Builder
	sb.WriteString("Tags\n")
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %v\n", k, named[k])
	}
	for _, t := range unnamed {
		fmt.Fprintf(&sb, "  %s\n", t)
	}
	return sb.String()
}

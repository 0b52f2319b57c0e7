package plugins

import (
	"fmt"
	"strings"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/automod/countstore"
	"github.com/kantek-org/kantek/plugin"
)

func handleStats(c *plugin.Context) error {
	env := c.Env
	var sb strings.Builder
	sb.WriteString("Stats\n")

	total, err := env.Store.CountBans(c.Ctx, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(&sb, "  Ban list: %d\n", total)

	if env.Counters != nil {
		for _, name := range []string{automod.CounterGBan, automod.CounterUnGBan, automod.CounterGBanSkipped} {
			var parts []string
			for _, period := range countstore.Periods {
				n, err := env.Counters.GetCount(c.Ctx, name, automod.CounterAll, period)
				if err != nil {
					return err
				}
				parts = append(parts, fmt.Sprintf("%s %d", period, n))
			}
			fmt.Fprintf(&sb, "  %s: %s\n", name, strings.Join(parts, ", "))
		}
		chats, err := env.Counters.GetCountDistinct(c.Ctx, automod.CounterGBanChats, automod.CounterAll, countstore.PeriodTotal)
		if err != nil {
			return err
		}
		fmt.Fprintf(&sb, "  Chats with gbans: %d\n", chats)
	}

	if env.Reputation != nil {
		fmt.Fprintf(&sb, "  SpamWatch permission: %s\n", env.Reputation.Permission())
	}
	_, err = c.Respond(strings.TrimSpace(sb.String()))
	return err
}

package plugins

import (
	"fmt"
	"strings"

	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/plugin"
)

// Forwards "@admin" and "/report" requests from group members to the log chat.
func handleReport(c *plugin.Context) error {
	evt := c.Event
	env := c.Env
	logChat := env.Config.LogChatID
	if evt.Private || logChat == 0 {
		return nil
	}
	tags, err := c.Tags()
	if err != nil {
		return err
	}
	if tags.String("reports") == "exclude" {
		return nil
	}

	if target := evt.ReplyTarget(); target != nil {
		if _, err := env.Client.Forward(c.Ctx, evt.ChatID, target.MessageID, logChat); err != nil {
			c.Logger.Warn("failed to forward reported message", "err", err)
		}
	}

	chat := entityOrID(c, evt.ChatID, platform.EntityGroup)
	reporter := entityOrID(c, evt.SenderID, platform.EntityUser)
	var sb strings.Builder
	sb.WriteString("A user is requesting admin assistance in a group.\n")
	fmt.Fprintf(&sb, "  Group: %s [%d]\n", platform.Mention(chat), evt.ChatID)
	fmt.Fprintf(&sb, "  Reporter: %s [%d]\n", platform.Mention(reporter), evt.SenderID)
	fmt.Fprintf(&sb, "  Remark: %s", evt.RawText())
	return c.LogAction(sb.String())
}

func entityOrID(c *plugin.Context, id int64, kind platform.EntityKind) *platform.Entity {
	e, err := c.Env.Client.GetEntity(c.Ctx, id)
	if err != nil {
		c.Logger.Debug("could not resolve entity", "id", id, "err", err)
		return &platform.Entity{ID: id, Kind: kind}
	}
	return e
}

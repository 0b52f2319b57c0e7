package plugins

import (
	"errors"
	"fmt"
	"time"

	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/plugin"
)

func handleLock(c *plugin.Context) error {
	evt := c.Event
	if evt.Private {
		c.Notify("Private chats cannot be locked.")
		return plugin.Validationf("lock in private chat")
	}
	// zero rights for everyone: members can read, nothing else
	err := c.Env.Client.Restrict(c.Ctx, evt.ChatID, 0, platform.ChatRights{}, time.Time{})
	switch {
	case err == nil:
		_, err = c.Respond("Chat locked.")
		return err
	case errors.Is(err, platform.ErrNotModified):
		_, err = c.Respond("Chat already locked.")
		return err
	default:
		return fmt.Errorf("locking chat %d: %w", evt.ChatID, err)
	}
}

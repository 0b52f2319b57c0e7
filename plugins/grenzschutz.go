package plugins

import (
	"fmt"

	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/plugin"
)

// Removes globally banned accounts when they write in, or join, a chat where the bot can ban.
func handleGrenzschutz(c *plugin.Context) error {
	evt := c.Event
	env := c.Env
	if evt.Private {
		return nil
	}
	if evt.ChatAction != nil && evt.ChatAction.Action == events.ActionUserLeft {
		return nil
	}
	uid := evt.SubjectID()
	if uid == 0 {
		return nil
	}

	// cached; every message goes through here, so the cheap check comes first
	rec, err := env.Engine.LookupBan(c.Ctx, uid)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	tags, err := c.Tags()
	if err != nil {
		return err
	}
	if tags.String("grenzschutz") == "exclude" || tags.String("polizei") == "exclude" {
		return nil
	}

	rights, err := env.Client.SelfRights(c.Ctx, evt.ChatID)
	if err != nil {
		return err
	}
	if !rights.BanUsers {
		return nil
	}

	admins, err := env.Client.GetParticipants(c.Ctx, evt.ChatID, platform.FilterAdmins)
	if err != nil {
		return err
	}
	for _, a := range admins {
		if a.ID == uid {
			return nil
		}
	}

	if err := env.Client.Ban(c.Ctx, evt.ChatID, uid, platform.Forever); err != nil {
		return fmt.Errorf("banning %d in chat %d: %w", uid, evt.ChatID, err)
	}
	c.Logger.Info("removed globally banned user", "uid", uid, "reason", rec.Reason)

	user, err := env.Client.GetEntity(c.Ctx, uid)
	if err != nil {
		user = &platform.Entity{ID: uid, Kind: platform.EntityUser}
	}
	msg := fmt.Sprintf("SpamWatch Grenzschutz Ban\n  User: %s [%d]\n  Reason: %s\n  Chat ID: %d", platform.Mention(user), uid, rec.Reason, evt.ChatID)
	if err := c.LogAction(msg); err != nil {
		c.Logger.Warn("failed to log ban", "err", err)
	}
	if tags.String("grenzschutz") == "verbose" {
		if _, err := env.Client.SendMessage(c.Ctx, evt.ChatID, msg, &platform.SendOptions{DisablePreview: true}); err != nil {
			c.Logger.Warn("failed to announce ban", "err", err)
		}
	}
	return nil
}

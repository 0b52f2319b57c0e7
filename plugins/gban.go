package plugins

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/plugin"
)

func handleGBan(c *plugin.Context) error {
	evt := c.Event
	env := c.Env
	args, err := ParseArgs(commandArgs(evt.RawText()))
	if err != nil {
		c.Notify(err.Error())
		return err
	}
	tags, err := c.Tags()
	if err != nil {
		return err
	}
	verbose := tags.String("gban") == "verbose" || evt.Private

	if err := env.Client.DeleteMessage(c.Ctx, evt.ChatID, evt.MessageID); err != nil {
		c.Logger.Debug("could not delete command message", "err", err)
	}

	if evt.IsReply() {
		return gbanReplied(c, args)
	}

	ids := args.IDs()
	if len(ids) == 0 {
		c.Notify("No user IDs given.")
		return plugin.Validationf("gban without user IDs")
	}
	reason := strings.Join(args.Words(), " ")
	if reason == "" {
		reason = args.Keywords["reason"]
	}

	rep, err := env.Engine.GBan(c.Ctx, automod.GBanRequest{
		IDs:     ids,
		Reason:  reason,
		Verbose: verbose,
		ChatID:  evt.ChatID,
		Issuer:  evt.SenderID,
	})
	if verbose && rep != nil {
		if text := formatSection("GBanned Users", rep.Banned) + formatSection("Skipped GBan", rep.Skipped); text != "" {
			if _, serr := c.Respond(text); serr != nil {
				c.Logger.Warn("failed to send gban report", "err", serr)
			}
		}
	}
	return err
}

// Bans the author of the replied message: the message is forwarded to the coordination channel as evidence, the author is gbanned and removed from this chat, and the message is deleted.
func gbanReplied(c *plugin.Context, args Args) error {
	evt := c.Event
	env := c.Env
	target := evt.ReplyTarget()
	if target.SenderID == 0 {
		return plugin.Validationf("replied message has no author")
	}
	reason := strings.Join(args.Positional, " ")
	if reason == "" {
		reason = args.Keywords["reason"]
	}
	if reason == "" {
		reason = automod.DefaultReason
	}

	if coord := env.Config.CoordinationChatID; coord != 0 {
		if _, err := env.Client.Forward(c.Ctx, evt.ChatID, target.MessageID, coord); err != nil {
			c.Logger.Warn("failed to forward evidence", "err", err)
		}
	}

	_, gbanErr := env.Engine.GBan(c.Ctx, automod.GBanRequest{
		IDs:    []int64{target.SenderID},
		Reason: reason,
		ChatID: evt.ChatID,
		Issuer: evt.SenderID,
	})

	rights, err := env.Client.SelfRights(c.Ctx, evt.ChatID)
	if err != nil {
		return errors.Join(gbanErr, err)
	}
	if !rights.Admin {
		return gbanErr
	}

	tags, err := c.Tags()
	if err != nil {
		return errors.Join(gbanErr, err)
	}
	var localErr error
	switch bancmd := tags.String("gbancmd"); bancmd {
	case "", "manual":
		localErr = env.Client.Ban(c.Ctx, evt.ChatID, target.SenderID, platform.Forever)
	default:
		// another bot in the chat does the ban
		_, localErr = env.Client.SendMessage(c.Ctx, evt.ChatID, fmt.Sprintf("%s %s", bancmd, reason), &platform.SendOptions{ReplyTo: target.MessageID})
	}
	if localErr != nil {
		localErr = fmt.Errorf("banning %d in chat %d: %w", target.SenderID, evt.ChatID, localErr)
	}
	if err := env.Client.DeleteMessage(c.Ctx, evt.ChatID, target.MessageID); err != nil {
		c.Logger.Debug("could not delete replied message", "err", err)
	}
	return errors.Join(gbanErr, localErr)
}

func handleUnGBan(c *plugin.Context) error {
	evt := c.Event
	env := c.Env
	args, err := ParseArgs(commandArgs(evt.RawText()))
	if err != nil {
		c.Notify(err.Error())
		return err
	}

	if err := env.Client.DeleteMessage(c.Ctx, evt.ChatID, evt.MessageID); err != nil {
		c.Logger.Debug("could not delete command message", "err", err)
	}

	ids := args.IDs()
	if target := evt.ReplyTarget(); target != nil && target.SenderID != 0 {
		ids = append(ids, target.SenderID)
	}
	if len(ids) == 0 {
		c.Notify("No user IDs given.")
		return plugin.Validationf("ungban without user IDs")
	}

	tags, err := c.Tags()
	if err != nil {
		return err
	}
	rep, err := env.Engine.UnGBan(c.Ctx, automod.UnGBanRequest{
		IDs:     ids,
		Verbose: tags.String("gban") == "verbose" || evt.Private,
		ChatID:  evt.ChatID,
		Issuer:  evt.SenderID,
	})
	// stays quiet when nobody was unbanned
	if rep != nil && len(rep.BannedIDs()) > 0 {
		text := "Un-GBanned Users\n  IDs: " + joinIDs(rep.BannedIDs())
		if skipped := formatSection("Skipped", rep.Skipped); skipped != "" {
			text += "\n" + skipped
		}
		if _, serr := c.Respond(text); serr != nil {
			c.Logger.Warn("failed to send ungban report", "err", serr)
		}
	}
	return err
}

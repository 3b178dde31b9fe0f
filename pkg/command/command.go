// Package command parses, authorizes and executes the bot's admin commands.
//
// Ordering is load-bearing: authorization runs strictly before target
// resolution, which runs strictly before any store mutation, so resolution
// errors and side effects never leak to unauthorized callers.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/metrics"
	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/policy"
	"github.com/pacificderg/autoblock-bot/pkg/telegram"
)

// DefaultWelcome is the /start reply when the bot config has no override.
const DefaultWelcome = "Hello! This bot protects rooms by automatically blocking users on its list. " +
	"Add it to your room and make it an admin, and it will remove listed users before any trouble can start."

const noReason = "No reason given"

// ListSource hands out a temporary download URL for the latest export
// snapshot. Absent artifacts report ok=false.
type ListSource interface {
	PresignedURL(key string) (string, bool)
}

// Dispatcher executes commands for one bot.
type Dispatcher struct {
	Policy  policy.Policy
	API     telegram.API
	Admins  map[int64]struct{}
	Welcome string
	// List and ListKey back /getlist; a nil List means no export exists
	// for this bot's policy.
	List    ListSource
	ListKey string
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	_, ok := d.Admins[userID]
	return ok
}

// Handle processes a private text message carrying entities. Messages
// without a bot_command entity are ignored; that is not an error.
func (d *Dispatcher) Handle(m *models.Message) error {
	cmdEnt := models.FirstEntity(m.Entities, "bot_command")
	if cmdEnt == nil {
		return nil
	}
	cmd := cmdEnt.Slice(m.Text)
	logger.Info("command_received", "command", cmd, "from", m.From.ID, "chat", m.Chat.ID)

	switch cmd {
	case "/start":
		welcome := d.Welcome
		if welcome == "" {
			welcome = DefaultWelcome
		}
		if err := d.API.SendMessage(m.Chat.ID, welcome, 0); err != nil {
			return err
		}
		metrics.Count(metrics.EventStartCommand)
		return nil

	case "/getlist":
		return d.handleGetList(m)

	case "/isbanned", "/add", "/remove":
		// Privileged commands: authorize before anything else. Non-admins
		// get no reply at all, so command existence is not confirmed.
		if !d.isAdmin(m.From.ID) {
			logger.Info("ignoring_non_admin_command", "command", cmd, "from", m.From.ID)
			metrics.Count(metrics.EventNonAdminCommandIgnore)
			return nil
		}
		mention := models.FirstEntity(m.Entities, "mention")
		if mention == nil {
			return d.API.SendMessage(m.Chat.ID, "This command requires a username.", m.MessageID)
		}
		username := mention.Slice(m.Text)
		target, err := d.API.Resolve(username)
		if err != nil {
			if errors.Is(err, telegram.ErrNotFound) {
				return d.API.SendMessage(m.Chat.ID, err.Error(), m.MessageID)
			}
			return err
		}
		switch cmd {
		case "/isbanned":
			return d.handleIsBanned(m, username, target)
		case "/add":
			reason := strings.TrimSpace(m.Text[mention.Offset+mention.Length:])
			return d.handleAdd(m, username, target, reason)
		default:
			return d.handleRemove(m, username, target)
		}

	default:
		// Unknown command: the reply itself is admin-gated.
		if !d.isAdmin(m.From.ID) {
			logger.Info("ignoring_non_admin_command", "command", cmd, "from", m.From.ID)
			metrics.Count(metrics.EventNonAdminCommandIgnore)
			return nil
		}
		if err := d.API.SendMessage(m.Chat.ID, "Unknown command", m.MessageID); err != nil {
			return err
		}
		metrics.Count(metrics.EventUnknownCommand)
		return nil
	}
}

func (d *Dispatcher) handleGetList(m *models.Message) error {
	if d.List == nil {
		return d.API.SendMessage(m.Chat.ID, "No list is available.", m.MessageID)
	}
	url, ok := d.List.PresignedURL(d.ListKey)
	if !ok {
		return d.API.SendMessage(m.Chat.ID, "No list is available.", m.MessageID)
	}
	logger.Info("sending_list", "url", url, "chat", m.Chat.ID)
	if err := d.API.SendDocument(m.Chat.ID, url, m.MessageID); err != nil {
		return err
	}
	metrics.Count(metrics.EventGetListCommand)
	return nil
}

func (d *Dispatcher) handleIsBanned(m *models.Message, username string, target telegram.User) error {
	banned, err := d.Policy.IsBanned(target.ID)
	if err != nil {
		return err
	}
	var text string
	if banned {
		reason := noReason
		if rec, err := d.Policy.Lookup(target.ID); err != nil {
			return err
		} else if rec != nil && rec.Reason != "" {
			reason = rec.Reason
		}
		text = fmt.Sprintf("%s (%d) is banned: %s", username, target.ID, reason)
	} else {
		text = fmt.Sprintf("%s (%d) is not banned", username, target.ID)
	}
	if err := d.API.SendMessage(m.Chat.ID, text, m.MessageID); err != nil {
		return err
	}
	metrics.Count(metrics.EventIsBannedCommand)
	return nil
}

func (d *Dispatcher) handleAdd(m *models.Message, username string, target telegram.User, reason string) error {
	existing, err := d.Policy.Lookup(target.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		prior := existing.Reason
		if prior == "" {
			prior = noReason
		}
		return d.API.SendMessage(m.Chat.ID, fmt.Sprintf("%s (%d) is already added: %s", username, target.ID, prior), m.MessageID)
	}
	if err := d.Policy.Add(target.ID, username, reason); err != nil {
		return err
	}
	shown := reason
	if shown == "" {
		shown = noReason
	}
	if err := d.API.SendMessage(m.Chat.ID, fmt.Sprintf("%s (%d) has been added: %s", username, target.ID, shown), m.MessageID); err != nil {
		return err
	}
	metrics.Count(metrics.EventAddUserCommand)
	return nil
}

func (d *Dispatcher) handleRemove(m *models.Message, username string, target telegram.User) error {
	member, err := d.Policy.IsMember(target.ID)
	if err != nil {
		return err
	}
	if !member {
		return d.API.SendMessage(m.Chat.ID, fmt.Sprintf("%s (%d) is not added", username, target.ID), m.MessageID)
	}
	if err := d.Policy.Remove(target.ID); err != nil {
		return err
	}
	if err := d.API.SendMessage(m.Chat.ID, fmt.Sprintf("%s (%d) has been removed", username, target.ID), m.MessageID); err != nil {
		return err
	}
	metrics.Count(metrics.EventRemoveUserCommand)
	return nil
}

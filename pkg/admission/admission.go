// Package admission decides whether a joining chat participant may stay.
// "Allow" is the silent default; the engine only acts on banned users and
// on the bot's own join.
package admission

import (
	"fmt"
	"net/http"

	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/metrics"
	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/policy"
	"github.com/pacificderg/autoblock-bot/pkg/telegram"
)

// DefaultGreeting is sent once when the bot itself is added to a group.
const DefaultGreeting = "Hello! In order for this bot to be operational in this chat, it must be made an admin."

// Engine evaluates new-participant events for one bot.
type Engine struct {
	Policy   policy.Policy
	API      telegram.API
	BotID    int64
	Admins   map[int64]struct{}
	Greeting string
}

func isGroup(chatType string) bool {
	return chatType == "group" || chatType == "supergroup"
}

// HandleJoin processes a message carrying a new_chat_participant. Store or
// transport failures fail the whole invocation; the hosting environment
// owns any retry.
func (e *Engine) HandleJoin(m *models.Message) error {
	joined := m.NewChatParticipant
	if joined == nil {
		return nil
	}

	if joined.ID == e.BotID && isGroup(m.Chat.Type) {
		title := m.Chat.Title
		if title == "" {
			title = "Private chat"
		}
		logger.Info("added_to_chat", "chat", m.Chat.ID, "title", title)
		greeting := e.Greeting
		if greeting == "" {
			greeting = DefaultGreeting
		}
		if err := e.API.SendMessage(m.Chat.ID, greeting, 0); err != nil {
			return err
		}
		metrics.Count(metrics.EventAddedToChat)
		return nil
	}

	// Admins are exempt from any policy.
	if _, ok := e.Admins[joined.ID]; ok {
		return nil
	}

	banned, err := e.Policy.IsBanned(joined.ID)
	if err != nil {
		return err
	}
	if !banned {
		return nil
	}

	username := joined.Username
	if username == "" {
		username = "no_username"
	}
	logger.Info("banned_user_joined", "user", joined.ID, "username", username, "chat", m.Chat.ID)

	status, err := e.API.Kick(m.Chat.ID, joined.ID)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		metrics.Count(metrics.EventUserRemoved)
		return nil
	case http.StatusBadRequest:
		// The bot lacks admin rights in this chat; explain instead of failing.
		text := fmt.Sprintf("Unable to remove @%s because this bot is not an admin", username)
		return e.API.SendMessage(m.Chat.ID, text, m.MessageID)
	default:
		return fmt.Errorf("kickChatMember failed with status %d for user %d in chat %d", status, joined.ID, m.Chat.ID)
	}
}

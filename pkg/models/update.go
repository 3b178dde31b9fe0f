package models

// Update is the inbound Telegram webhook payload. Only the message branch
// is consumed; everything else in the Bot API update envelope is ignored.
type Update struct {
	UpdateID int64    `json:"update_id,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64    `json:"message_id"`
	Chat      Chat     `json:"chat"`
	From      User     `json:"from"`
	Text      string   `json:"text,omitempty"`
	Entities  []Entity `json:"entities,omitempty"`
	// NewChatParticipant is set when a user joined the chat this message
	// belongs to; it routes the update to the admission engine.
	NewChatParticipant *User `json:"new_chat_participant,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Entity is a structured span within a text message (bot_command, mention, ...).
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Slice returns the text span the entity covers, or "" when the entity is
// out of bounds for the given text.
func (e Entity) Slice(text string) string {
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(text) {
		return ""
	}
	return text[e.Offset : e.Offset+e.Length]
}

// FirstEntity returns the first entity of the given type, or nil.
func FirstEntity(entities []Entity, typ string) *Entity {
	for i := range entities {
		if entities[i].Type == typ {
			return &entities[i]
		}
	}
	return nil
}

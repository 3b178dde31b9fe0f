// Package telegram is a thin Bot API client covering the handful of calls
// the moderation engine needs. Responses outside the explicitly handled
// cases are surfaced as errors; the core performs no retries.
package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound marks a username that could not be resolved to an identity.
var ErrNotFound = errors.New("username not found")

// notFoundError keeps the API's own description as the error text so the
// dispatcher can reply with it verbatim, while still matching ErrNotFound.
type notFoundError struct{ desc string }

func (e *notFoundError) Error() string { return e.desc }
func (e *notFoundError) Unwrap() error { return ErrNotFound }

// User is a resolved platform identity.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// API is the messaging surface consumed by the admission engine and the
// command dispatcher. Kick returns the raw HTTP status so callers can
// branch on the documented 400 case.
type API interface {
	Kick(chatID, userID int64) (int, error)
	SendMessage(chatID int64, text string, replyTo int64) error
	SendDocument(chatID int64, documentURL string, replyTo int64) error
	Resolve(username string) (User, error)
}

// Client talks to api.telegram.org for a single bot credential.
type Client struct {
	key  string
	base string
	hc   *http.Client
}

// NewClient builds a client for the given bot key ("<id>:<secret>").
func NewClient(key string) *Client {
	return &Client{key: key, base: "https://api.telegram.org", hc: &http.Client{Timeout: 30 * time.Second}}
}

// NewClientWithBase overrides the API origin; used by tests.
func NewClientWithBase(key, base string) *Client {
	c := NewClient(key)
	c.base = strings.TrimSuffix(base, "/")
	return c
}

// BotID extracts the numeric bot identity from a bot key. Returns 0 when
// the key has no numeric prefix.
func BotID(key string) int64 {
	prefix, _, _ := strings.Cut(key, ":")
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) post(method string, form url.Values) (int, apiResponse, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.base, c.key, method)
	resp, err := c.hc.PostForm(endpoint, form)
	if err != nil {
		return 0, apiResponse{}, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	var body apiResponse
	// The Bot API returns a JSON envelope on error statuses too; a decode
	// failure only matters when the caller needs the description.
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body, nil
}

// Kick removes a user from a chat. The status code is returned for the
// 200/400 branch in the admission engine; transport failures are errors.
func (c *Client) Kick(chatID, userID int64) (int, error) {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("user_id", strconv.FormatInt(userID, 10))
	status, _, err := c.post("kickChatMember", form)
	return status, err
}

// SendMessage posts a text message, optionally as a reply. Any non-2xx
// status is an error.
func (c *Client) SendMessage(chatID int64, text string, replyTo int64) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	if replyTo != 0 {
		form.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}
	status, body, err := c.post("sendMessage", form)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("sendMessage failed with status %d: %s", status, body.Description)
	}
	return nil
}

// SendDocument posts a document by URL, optionally as a reply.
func (c *Client) SendDocument(chatID int64, documentURL string, replyTo int64) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("document", documentURL)
	if replyTo != 0 {
		form.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}
	status, body, err := c.post("sendDocument", form)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("sendDocument failed with status %d: %s", status, body.Description)
	}
	return nil
}

// Resolve maps a username (with or without the leading @) to a stable
// identity. The mapping can change over time, so results are never cached.
// An unknown username yields an error wrapping ErrNotFound whose text is
// suitable for a user-facing reply.
func (c *Client) Resolve(username string) (User, error) {
	handle := username
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	form := url.Values{}
	form.Set("chat_id", handle)
	status, body, err := c.post("getChat", form)
	if err != nil {
		return User{}, err
	}
	if status == http.StatusBadRequest || status == http.StatusNotFound {
		desc := body.Description
		if desc == "" {
			desc = fmt.Sprintf("No user has %q as username", username)
		}
		return User{}, &notFoundError{desc: desc}
	}
	if status < 200 || status > 299 || !body.OK {
		return User{}, fmt.Errorf("getChat failed with status %d: %s", status, body.Description)
	}
	var u User
	if err := json.Unmarshal(body.Result, &u); err != nil {
		return User{}, fmt.Errorf("getChat: decode result: %w", err)
	}
	if u.ID == 0 {
		return User{}, &notFoundError{desc: fmt.Sprintf("No identity found for %s", username)}
	}
	return u, nil
}

package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pacificderg/autoblock-bot/pkg/config"
	exportpkg "github.com/pacificderg/autoblock-bot/pkg/export"
	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/store"
	"github.com/pacificderg/autoblock-bot/pkg/telegram"
)

const (
	testBotKey   = "555000:TESTTOKEN"
	testSecret   = "hook-secret"
	testAdminID  = int64(99999999)
	testTargetID = int64(999999402)
	testChatID   = int64(-1009999992388)
)

// botAPIRecorder is a fake api.telegram.org capturing outbound calls.
type botAPIRecorder struct {
	mu       sync.Mutex
	kicks    []string
	messages []string
}

func (rec *botAPIRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		rec.mu.Lock()
		defer rec.mu.Unlock()
		switch {
		case strings.HasSuffix(r.URL.Path, "/kickChatMember"):
			rec.kicks = append(rec.kicks, r.PostForm.Get("chat_id")+"/"+r.PostForm.Get("user_id"))
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			rec.messages = append(rec.messages, r.PostForm.Get("text"))
			fmt.Fprint(w, `{"ok":true}`)
		case strings.HasSuffix(r.URL.Path, "/sendDocument"):
			fmt.Fprint(w, `{"ok":true}`)
		case strings.HasSuffix(r.URL.Path, "/getChat"):
			if r.PostForm.Get("chat_id") == "@test_user" {
				fmt.Fprintf(w, `{"ok":true,"result":{"id":%d,"username":"test_user"}}`, testTargetID)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (rec *botAPIRecorder) kickCount() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.kicks)
}

func newTestApp(t *testing.T) (*httptest.Server, *botAPIRecorder) {
	srv, rec, _ := newTestAppFull(t)
	return srv, rec
}

func newTestAppFull(t *testing.T) (*httptest.Server, *botAPIRecorder, *App) {
	t.Helper()

	rec := &botAPIRecorder{}
	botAPI := httptest.NewServer(rec.handler())
	t.Cleanup(botAPI.Close)

	prev := newTelegramClient
	newTelegramClient = func(key string) telegram.API {
		return telegram.NewClientWithBase(key, botAPI.URL)
	}
	t.Cleanup(func() { newTelegramClient = prev })

	cfg := &config.Config{
		Telegram:  config.TelegramConfig{APIID: "123", APIHash: "abc"},
		RootUsers: []int64{testAdminID},
		Bots: []config.BotConfig{{
			Name:        "blacklist",
			Key:         testBotKey,
			Path:        "/hooks/blacklist",
			SecretToken: testSecret,
			Policy:      "denylist",
		}},
	}
	cfg.Blob.Dir = t.TempDir()
	cfg.Blob.Secret = "test-blob-secret"
	eff := &config.Effective{Config: cfg, Addr: "127.0.0.1:0", DBPath: t.TempDir(), Source: "config"}

	a, err := New(eff, "test", "none", "unknown")
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return srv, rec, a
}

func postUpdate(t *testing.T, srv *httptest.Server, secret string, upd models.Update) *http.Response {
	t.Helper()
	body, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/hooks/blacklist", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post update: %v", err)
	}
	return resp
}

func commandUpdate(from int64, text string) models.Update {
	m := &models.Message{
		MessageID: 7,
		Chat:      models.Chat{ID: from, Type: "private"},
		From:      models.User{ID: from},
		Text:      text,
	}
	for _, f := range strings.Fields(text) {
		idx := strings.Index(text, f)
		switch {
		case strings.HasPrefix(f, "/"):
			m.Entities = append(m.Entities, models.Entity{Type: "bot_command", Offset: idx, Length: len(f)})
		case strings.HasPrefix(f, "@"):
			m.Entities = append(m.Entities, models.Entity{Type: "mention", Offset: idx, Length: len(f)})
		}
	}
	return models.Update{UpdateID: 1, Message: m}
}

func joinUpdate(chatID, userID int64, username string) models.Update {
	return models.Update{UpdateID: 2, Message: &models.Message{
		MessageID:          8,
		Chat:               models.Chat{ID: chatID, Type: "supergroup", Title: "Room"},
		NewChatParticipant: &models.User{ID: userID, Username: username},
	}}
}

func TestWebhookAddThenKickFlow(t *testing.T) {
	srv, rec := newTestApp(t)

	// Admin lists the user in a private chat.
	resp := postUpdate(t, srv, testSecret, commandUpdate(testAdminID, "/add @test_user test ban"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/add status = %d", resp.StatusCode)
	}
	rec.mu.Lock()
	if len(rec.messages) != 1 || !strings.Contains(rec.messages[0], "has been added: test ban") {
		t.Fatalf("unexpected reply: %v", rec.messages)
	}
	rec.mu.Unlock()

	// The listed user joins a protected chat and is kicked exactly once.
	resp = postUpdate(t, srv, testSecret, joinUpdate(testChatID, testTargetID, "test_user"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	if got := rec.kickCount(); got != 1 {
		t.Fatalf("kick count = %d, want 1", got)
	}
	rec.mu.Lock()
	want := fmt.Sprintf("%d/%d", testChatID, testTargetID)
	if rec.kicks[0] != want {
		t.Fatalf("kick = %q, want %q", rec.kicks[0], want)
	}
	rec.mu.Unlock()

	// An unlisted user joins and nothing happens.
	resp = postUpdate(t, srv, testSecret, joinUpdate(testChatID, 424242, "newcomer"))
	resp.Body.Close()
	if got := rec.kickCount(); got != 1 {
		t.Fatalf("unlisted user kicked: count = %d", got)
	}
}

func TestWebhookNonAdminSilentlyIgnored(t *testing.T) {
	srv, rec := newTestApp(t)

	resp := postUpdate(t, srv, testSecret, commandUpdate(12345, "/add @test_user spam"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 0 {
		t.Fatalf("non-admin got replies: %v", rec.messages)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	srv, rec := newTestApp(t)

	resp := postUpdate(t, srv, "wrong", commandUpdate(testAdminID, "/start"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 0 {
		t.Fatalf("update handled despite bad secret")
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestApp(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/hooks/blacklist", strings.NewReader("{not json"))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebhookAcksNonMessageUpdates(t *testing.T) {
	srv, _ := newTestApp(t)

	resp := postUpdate(t, srv, testSecret, models.Update{UpdateID: 9})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("ack body = %v, want {}", body)
	}
}

func TestProbesAndExportDownload(t *testing.T) {
	srv, _ := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}

	// An unsigned export request is a 404, not a leak.
	resp, err := http.Get(srv.URL + "/exports/" + exportpkg.ArchiveKey)
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unsigned export status = %d, want 404", resp.StatusCode)
	}
}

func TestExportDownloadWithSignedURL(t *testing.T) {
	srv, _, a := newTestAppFull(t)

	// Seed the list, snapshot it, then fetch the artifact through the
	// signed URL the /getlist command would hand out.
	resp := postUpdate(t, srv, testSecret, commandUpdate(testAdminID, "/add @test_user test ban"))
	resp.Body.Close()
	if err := exportpkg.Run(a.blob, models.RoleBlacklist); err != nil {
		t.Fatalf("export run: %v", err)
	}

	u, ok := a.blob.PresignedURL(exportpkg.ArchiveKey)
	if !ok {
		t.Fatalf("no presigned URL after export")
	}
	// The store was configured with the httptest origin's placeholder; only
	// the path and query matter here.
	idx := strings.Index(u, "/exports/")
	if idx < 0 {
		t.Fatalf("unexpected URL shape: %q", u)
	}
	dl, err := http.Get(srv.URL + u[idx:])
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(dl.Body); err != nil {
		t.Fatalf("read archive: %v", err)
	}
	rows, err := exportpkg.ReadArchive(buf.Bytes())
	if err != nil {
		t.Fatalf("parse archive: %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != testTargetID {
		t.Fatalf("archive rows = %+v", rows)
	}
}

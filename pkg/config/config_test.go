package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  address: "127.0.0.1"
  port: 9090
telegram:
  api_id: "123456"
  api_hash: "abcdef"
root_users:
  - 99999999
bots:
  - name: blacklist
    key: "111111:AAA"
    path: "/hooks/blacklist"
    policy: denylist
blob:
  url_ttl: 45m
  max_artifact: 16MB
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	eff, err := Ensure(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if eff.Addr != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", eff.Addr)
	}
	if eff.Source != "config" {
		t.Fatalf("source = %q", eff.Source)
	}
	if len(eff.Config.Bots) != 1 || eff.Config.Bots[0].Path != "/hooks/blacklist" {
		t.Fatalf("bots = %+v", eff.Config.Bots)
	}
	if got := eff.Config.Blob.URLTTL.Duration(); got != 45*time.Minute {
		t.Fatalf("url_ttl = %v", got)
	}
	if got := eff.Config.Blob.MaxArtifact.Int64(); got != 16*1000*1000 {
		t.Fatalf("max_artifact = %d", got)
	}
}

func TestMissingRequiredKeys(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	_, err := Ensure(writeConfig(t, `
telegram:
  api_id: "123456"
bots:
  - key: "111111:AAA"
    path: "/hooks/b"
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "expected config keys not found") {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"telegram.api_hash", "root_users"} {
		if !strings.Contains(msg, key) {
			t.Fatalf("error does not name %s: %v", key, err)
		}
	}
}

func TestEnvOverridesFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("AUTOBLOCK_ADDR", "0.0.0.0:7777")
	t.Setenv("AUTOBLOCK_ROOT_USERS", "1001, 1002")

	eff, err := Ensure(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if eff.Addr != "0.0.0.0:7777" {
		t.Fatalf("addr = %q", eff.Addr)
	}
	admins := eff.Config.RootUserSet()
	if _, ok := admins[1001]; !ok {
		t.Fatalf("env root user missing: %v", admins)
	}
	if _, ok := admins[99999999]; ok {
		t.Fatalf("file root users not replaced by env")
	}
}

func TestEnvOnlySingleBot(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("AUTOBLOCK_API_ID", "123")
	t.Setenv("AUTOBLOCK_API_HASH", "abc")
	t.Setenv("AUTOBLOCK_ROOT_USERS", "99999999")
	t.Setenv("AUTOBLOCK_BOT_KEY", "222222:BBB")

	eff, err := Ensure(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if eff.Source != "env" {
		t.Fatalf("source = %q", eff.Source)
	}
	if len(eff.Config.Bots) != 1 {
		t.Fatalf("bots = %+v", eff.Config.Bots)
	}
	b := eff.Config.Bots[0]
	if b.Path != "/blacklist" || b.Policy != "denylist" {
		t.Fatalf("env bot defaults wrong: %+v", b)
	}
}

func TestEnsureIsWriteOnce(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first := writeConfig(t, validYAML)
	eff1, err := Ensure(first)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// A second call with a different path must return the first result.
	other := writeConfig(t, strings.Replace(validYAML, "9090", "9191", 1))
	eff2, err := Ensure(other)
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if eff1 != eff2 {
		t.Fatalf("cache returned a different instance")
	}
	if eff2.Addr != "127.0.0.1:9090" {
		t.Fatalf("second load won: %q", eff2.Addr)
	}
}

func TestFailedLoadDoesNotPoisonCache(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	bad := writeConfig(t, "telegram: {api_id: only}")
	if _, err := Ensure(bad); err == nil {
		t.Fatalf("expected failure")
	}
	if Cached() != nil {
		t.Fatalf("failed load cached")
	}
	eff, err := Ensure(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if eff == nil || eff.Addr != "127.0.0.1:9090" {
		t.Fatalf("retry did not load: %+v", eff)
	}
}

func TestDuplicateWebhookPathsRejected(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	_, err := Ensure(writeConfig(t, `
telegram:
  api_id: "1"
  api_hash: "h"
root_users: [1]
bots:
  - key: "1:A"
    path: "/hook"
  - key: "2:B"
    path: "/hook"
`))
	if err == nil || !strings.Contains(err.Error(), "duplicate webhook path") {
		t.Fatalf("expected duplicate path error, got %v", err)
	}
}

func TestBotRoleDefaults(t *testing.T) {
	deny := BotConfig{Policy: "denylist"}
	if got := deny.RoleName(); string(got) != "blacklist" {
		t.Fatalf("denylist role = %q", got)
	}
	allow := BotConfig{Policy: "allowlist"}
	if got := allow.RoleName(); string(got) != "whitelist" {
		t.Fatalf("allowlist role = %q", got)
	}
	custom := BotConfig{Policy: "denylist", Role: "whitelist"}
	if got := custom.RoleName(); string(got) != "whitelist" {
		t.Fatalf("override role = %q", got)
	}
}

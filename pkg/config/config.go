package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pacificderg/autoblock-bot/pkg/models"
)

// Effective is the merged, validated configuration the process runs with.
type Effective struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "config", "env", or "flags"
}

var (
	cacheMu sync.Mutex
	cached  *Effective
)

// Ensure loads, merges and validates configuration exactly once per
// process. The first successful load wins and is returned to every later
// caller; a failed load leaves the cache empty so the next invocation
// retries instead of serving a poisoned partial state.
func Ensure(path string) (*Effective, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached != nil {
		return cached, nil
	}
	eff, err := load(path)
	if err != nil {
		return nil, err
	}
	cached = eff
	return cached, nil
}

// Cached returns the effective config when one has been loaded, else nil.
func Cached() *Effective {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	return cached
}

// Reset clears the cache; tests only.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cached = nil
}

func load(path string) (*Effective, error) {
	cfg := &Config{}
	source := "env"
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			source = "config"
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = "./.database"
	}
	return &Effective{Config: cfg, Addr: cfg.Addr(), DBPath: dbPath, Source: source}, nil
}

// applyEnv overlays AUTOBLOCK_* environment variables onto cfg. A single
// bot can be configured entirely from env (key/path/policy), which covers
// the one-bot deployment without any file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AUTOBLOCK_ADDR"); v != "" {
		if host, port, err := splitHostPort(v); err == nil {
			cfg.Server.Address = host
			cfg.Server.Port = port
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("AUTOBLOCK_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("AUTOBLOCK_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("AUTOBLOCK_API_ID"); v != "" {
		cfg.Telegram.APIID = v
	}
	if v := os.Getenv("AUTOBLOCK_API_HASH"); v != "" {
		cfg.Telegram.APIHash = v
	}
	if v := os.Getenv("AUTOBLOCK_ROOT_USERS"); v != "" {
		var ids []int64
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if id, err := strconv.ParseInt(p, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			cfg.RootUsers = ids
		}
	}
	if v := os.Getenv("AUTOBLOCK_BOT_KEY"); v != "" {
		bot := BotConfig{
			Key:    v,
			Path:   os.Getenv("AUTOBLOCK_BOT_PATH"),
			Policy: os.Getenv("AUTOBLOCK_BOT_POLICY"),
		}
		if bot.Path == "" {
			bot.Path = "/blacklist"
		}
		if bot.Policy == "" {
			bot.Policy = "denylist"
		}
		cfg.Bots = append(cfg.Bots, bot)
	}
	if v := os.Getenv("AUTOBLOCK_BLOB_DIR"); v != "" {
		cfg.Blob.Dir = v
	}
	if v := os.Getenv("AUTOBLOCK_BLOB_SECRET"); v != "" {
		cfg.Blob.Secret = v
	}
	if v := os.Getenv("AUTOBLOCK_EXPORT_CRON"); v != "" {
		cfg.Export.Enabled = true
		cfg.Export.Cron = v
	}
	if v := os.Getenv("AUTOBLOCK_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("AUTOBLOCK_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Security.RateLimit.Burst = n
		}
	}
}

func splitHostPort(v string) (string, int, error) {
	idx := strings.LastIndex(v, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("no port in %q", v)
	}
	port, err := strconv.Atoi(v[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return v[:idx], port, nil
}

// Validate checks the required keys. Missing keys are a configuration
// error: fatal for the invocation, and the cache stays uninitialized.
func Validate(cfg *Config) error {
	var missing []string
	if cfg.Telegram.APIID == "" {
		missing = append(missing, "telegram.api_id")
	}
	if cfg.Telegram.APIHash == "" {
		missing = append(missing, "telegram.api_hash")
	}
	if len(cfg.Bots) == 0 {
		missing = append(missing, "bots")
	}
	if len(cfg.RootUsers) == 0 {
		missing = append(missing, "root_users")
	}
	if len(missing) > 0 {
		return fmt.Errorf("expected config keys not found: %s", strings.Join(missing, ", "))
	}
	seen := map[string]struct{}{}
	for i, b := range cfg.Bots {
		if b.Key == "" {
			return fmt.Errorf("bots[%d]: missing key", i)
		}
		if b.Path == "" || !strings.HasPrefix(b.Path, "/") {
			return fmt.Errorf("bots[%d]: webhook path must start with /", i)
		}
		if _, dup := seen[b.Path]; dup {
			return fmt.Errorf("bots[%d]: duplicate webhook path %s", i, b.Path)
		}
		seen[b.Path] = struct{}{}
		switch b.Policy {
		case "", "denylist", "blacklist", "allowlist", "whitelist":
		default:
			return fmt.Errorf("bots[%d]: unknown policy %q", i, b.Policy)
		}
		if b.Role != "" && !models.Role(b.Role).Valid() {
			return fmt.Errorf("bots[%d]: unknown role %q", i, b.Role)
		}
	}
	return nil
}

// RootUserSet returns the admin identities as a set.
func (c *Config) RootUserSet() map[int64]struct{} {
	out := make(map[int64]struct{}, len(c.RootUsers))
	for _, id := range c.RootUsers {
		out[id] = struct{}{}
	}
	return out
}

package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/pacificderg/autoblock-bot/pkg/models"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Storage   StorageConfig  `yaml:"storage"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Bots      []BotConfig    `yaml:"bots"`
	RootUsers []int64        `yaml:"root_users"`
	Export    ExportConfig   `yaml:"export"`
	Blob      BlobConfig     `yaml:"blob"`
	Security  SecurityConfig `yaml:"security"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the webhook listener settings. PublicURL is the
// externally reachable origin used to build export download links.
type ServerConfig struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// TelegramConfig carries the platform application credential pair.
type TelegramConfig struct {
	APIID   string `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`
}

// BotConfig binds one bot credential to a webhook path and a role policy.
// Immutable after load.
type BotConfig struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
	Path string `yaml:"path"`
	// SecretToken, when set, must match the X-Telegram-Bot-Api-Secret-Token
	// header on inbound webhooks for this bot.
	SecretToken string `yaml:"secret_token"`
	// Policy selects the polarity: "denylist" or "allowlist".
	Policy string `yaml:"policy"`
	// Role overrides the store role name; defaults by policy.
	Role     string `yaml:"role"`
	Welcome  string `yaml:"welcome"`
	Greeting string `yaml:"greeting"`
}

// RoleName resolves the store role for this bot.
func (b BotConfig) RoleName() models.Role {
	if b.Role != "" {
		return models.Role(b.Role)
	}
	if b.Policy == "allowlist" || b.Policy == "whitelist" {
		return models.RoleWhitelist
	}
	return models.RoleBlacklist
}

// ExportConfig drives the scheduled blocklist export.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// OnStartup runs one export immediately when no artifact exists yet.
	OnStartup bool `yaml:"on_startup"`
}

// BlobConfig configures artifact storage and download URL signing.
type BlobConfig struct {
	Dir         string    `yaml:"dir"`
	Secret      string    `yaml:"secret"`
	URLTTL      Duration  `yaml:"url_ttl"`
	MaxArtifact SizeBytes `yaml:"max_artifact"`
}

type SecurityConfig struct {
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// SizeBytes is a byte count unmarshaled from human-friendly strings like
// "16MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration, accepting strings like "45m" or plain
// numbers interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

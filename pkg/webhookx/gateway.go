// Package webhookx guards the inbound webhook surface: request logging,
// optional IP whitelisting, per-source rate limiting and the Telegram
// secret-token check.
package webhookx

import (
	"net"
	"net/http"

	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/utils"
)

// SecConfig carries the webhook hardening knobs.
type SecConfig struct {
	RPS         float64
	Burst       int
	IPWhitelist []string
}

// Middleware wraps the webhook routes with logging, IP whitelist and rate
// limit checks. Health and metrics probes are exempt from limiting.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if len(cfg.IPWhitelist) > 0 && !ipWhitelisted(ip, cfg.IPWhitelist) {
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				return
			}

			if !limiters.Allow(ip) {
				logger.Warn("request_throttled", "ip", ip, "path", r.URL.Path)
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSecretToken rejects webhook posts whose
// X-Telegram-Bot-Api-Secret-Token header does not match the configured
// value. An empty configured token disables the check.
func RequireSecretToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != token {
			logger.Warn("request_blocked", "reason", "bad_secret_token", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipWhitelisted accepts exact IPs and CIDR ranges.
func ipWhitelisted(ip string, list []string) bool {
	parsed := net.ParseIP(ip)
	for _, w := range list {
		if ip == w {
			return true
		}
		if _, cidr, err := net.ParseCIDR(w); err == nil && parsed != nil && cidr.Contains(parsed) {
			return true
		}
	}
	return false
}

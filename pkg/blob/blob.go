// Package blob stores export artifacts on local disk and hands out
// HMAC-signed, expiring download URLs served by the app's own HTTP
// listener. It stands in for an object store with presigned GETs.
package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/pacificderg/autoblock-bot/pkg/logger"
)

// DefaultURLTTL bounds how long a presigned URL stays valid.
const DefaultURLTTL = 1 * time.Hour

// Store is a directory of artifacts addressed by flat keys.
type Store struct {
	dir     string
	baseURL string
	secret  []byte
	ttl     time.Duration
	maxSize int64
}

// Open prepares the artifact directory. baseURL is the externally
// reachable origin of this process (scheme://host[:port]); secret signs
// download URLs. maxSize of 0 means unbounded.
func Open(dir, baseURL, secret string, ttl time.Duration, maxSize int64) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty blob dir")
	}
	if secret == "" {
		return nil, fmt.Errorf("empty blob signing secret")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  []byte(secret),
		ttl:     ttl,
		maxSize: maxSize,
	}, nil
}

func (s *Store) path(key string) string {
	// keys are flat; strip any path components defensively
	return filepath.Join(s.dir, filepath.Base(key))
}

// Put writes the artifact atomically, overwriting any prior version under
// the same key.
func (s *Store) Put(key string, data []byte) error {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return fmt.Errorf("artifact %s exceeds max size (%d > %d bytes)", key, len(data), s.maxSize)
	}
	dst := s.path(key)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	logger.Info("artifact_written", "key", key, "bytes", len(data))
	return nil
}

// Get reads the artifact back; used by tests and the download handler.
func (s *Store) Get(key string) ([]byte, error) {
	return os.ReadFile(s.path(key))
}

func (s *Store) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", filepath.Base(key), exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// PresignedURL returns a signed, expiring download URL for the key, or
// ok=false when no artifact exists under it.
func (s *Store) PresignedURL(key string) (string, bool) {
	if _, err := os.Stat(s.path(key)); err != nil {
		return "", false
	}
	exp := time.Now().Add(s.ttl).Unix()
	u := fmt.Sprintf("%s/exports/%s?exp=%d&sig=%s", s.baseURL, filepath.Base(key), exp, s.sign(key, exp))
	return u, true
}

// Handler serves GET /exports/{key} with signature and expiry checks.
// Invalid signatures and missing artifacts are both 404 so probes cannot
// distinguish them.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]
		if key == "" {
			http.NotFound(w, r)
			return
		}
		exp, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
		if err != nil || time.Now().Unix() > exp {
			http.NotFound(w, r)
			return
		}
		sig := r.URL.Query().Get("sig")
		want := s.sign(key, exp)
		if sig == "" || !hmac.Equal([]byte(sig), []byte(want)) {
			logger.Warn("export_download_bad_signature", "key", key, "remote", r.RemoteAddr)
			http.NotFound(w, r)
			return
		}
		f, err := os.Open(s.path(key))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(key)))
		http.ServeContent(w, r, filepath.Base(key), time.Time{}, f)
	})
}

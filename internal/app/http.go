package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/pacificderg/autoblock-bot/pkg/banner"
	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/store"
	"github.com/pacificderg/autoblock-bot/pkg/utils"
	"github.com/pacificderg/autoblock-bot/pkg/webhookx"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	var paths []string
	for _, b := range a.bots {
		paths = append(paths, b.cfg.Path+" ("+b.admission.Policy.Mode.String()+")")
	}
	banner.Print(a.eff.Addr, a.eff.DBPath, a.eff.Source, verStr, paths)
}

// routes builds the full handler: per-bot webhook posts, signed export
// downloads, health probes, metrics and docs.
func (a *App) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs"))).Methods(http.MethodGet)
	r.Handle("/exports/{key}", a.blob.Handler()).Methods(http.MethodGet)
	for _, b := range a.bots {
		r.Handle(b.cfg.Path, webhookx.RequireSecretToken(b.cfg.SecretToken, a.webhookHandler(b))).Methods(http.MethodPost)
	}

	sec := webhookx.SecConfig{
		RPS:         a.eff.Config.Security.RateLimit.RPS,
		Burst:       a.eff.Config.Security.RateLimit.Burst,
		IPWhitelist: append([]string{}, a.eff.Config.Security.IPWhitelist...),
	}
	return webhookx.Middleware(sec)(r)
}

// webhookHandler routes one bot's updates: join events to the admission
// engine, private text commands to the dispatcher, everything else is
// acknowledged and dropped. Each update is handled start-to-finish before
// the response is written.
func (a *App) webhookHandler(b *botRuntime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upd models.Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
		m := upd.Message
		if m == nil {
			utils.JSONEmpty(w)
			return
		}

		var err error
		switch {
		case m.NewChatParticipant != nil:
			err = b.admission.HandleJoin(m)
		case m.Chat.Type == "private" && m.Text != "" && len(m.Entities) > 0:
			err = b.dispatcher.Handle(m)
		}
		if err != nil {
			logger.Error("webhook_handling_failed", "bot", b.cfg.Path, "chat", m.Chat.ID, "error", err)
			utils.JSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		utils.JSONEmpty(w)
	})
}

// readyzHandler reports readiness: the role store must be open.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startHTTP starts the HTTP server in a goroutine and returns a channel
// that will carry any server error.
func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{
		Addr:         a.eff.Addr,
		Handler:      a.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.eff.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

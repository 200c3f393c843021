package bot

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
)

// maintenance runs the recurring background jobs: the session expiry
// sweep and, when enabled, the keep-alive self-ping that stops free-tier
// hosts from idling the service out.
type maintenance struct {
	bot    *Bot
	cron   *cron.Cron
	client *http.Client
	logger *slog.Logger
}

func newMaintenance(b *Bot, logger *slog.Logger) *maintenance {
	return &maintenance{
		bot:    b,
		cron:   cron.New(),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "maintenance"),
	}
}

func (m *maintenance) start() error {
	sweepSpec := fmt.Sprintf("@every %ds", int(m.bot.cfg.Engine.SweepInterval().Seconds()))
	if _, err := m.cron.AddFunc(sweepSpec, m.sweepSessions); err != nil {
		return fmt.Errorf("registering session sweep: %w", err)
	}

	ka := m.bot.cfg.KeepAlive
	if ka.Enabled && ka.URL != "" {
		pingSpec := fmt.Sprintf("@every %ds", int(ka.Interval().Seconds()))
		if _, err := m.cron.AddFunc(pingSpec, m.ping); err != nil {
			return fmt.Errorf("registering keep-alive ping: %w", err)
		}
		m.logger.Info("keep-alive enabled", "url", ka.URL, "interval", ka.Interval())
	}

	m.cron.Start()
	return nil
}

func (m *maintenance) stop() {
	m.cron.Stop()
}

func (m *maintenance) sweepSessions() {
	ttl := m.bot.sessions.TTL()
	if evicted := m.bot.sessions.Sweep(time.Now(), ttl); evicted > 0 {
		m.logger.Debug("sweep done", "evicted", evicted)
	}
}

func (m *maintenance) ping() {
	resp, err := m.client.Get(m.bot.cfg.KeepAlive.URL)
	if err != nil {
		m.logger.Warn("keep-alive ping failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		m.logger.Warn("keep-alive ping got error status", "status", resp.StatusCode)
	}
}

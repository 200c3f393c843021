package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels/line"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/engine"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/gateway"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/providers"
)

// Provider interfaces consumed by the handlers. The concrete clients in
// the providers package satisfy them; tests substitute fakes.
type (
	chatCompleter interface {
		Complete(ctx context.Context, messages []providers.ChatMessage) (string, error)
	}
	weatherProvider interface {
		Current(ctx context.Context, location string) (*providers.WeatherReport, error)
	}
	translateProvider interface {
		Translate(ctx context.Context, text, targetLang string) (string, error)
	}
	flightProvider interface {
		Status(ctx context.Context, flightNumber string) (*providers.FlightStatus, error)
	}
	imageProvider interface {
		Generate(ctx context.Context, prompt string) (string, error)
	}
)

// Bot owns the dispatch engine, the LINE channel, and the capability
// providers, and processes webhook deliveries end to end.
type Bot struct {
	cfg    *Config
	logger *slog.Logger
	// base is the un-tagged logger handed to subsystems that pick their
	// own component tag.
	base *slog.Logger

	channel   channels.Channel
	sessions  *engine.SessionStore
	limiter   *engine.Limiter
	router    *engine.Router
	reminders *engine.ReminderScheduler

	llm       chatCompleter
	weather   weatherProvider
	translate translateProvider
	flight    flightProvider
	image     imageProvider

	maint *maintenance

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a bot from config. The LINE credentials must be present;
// provider API keys are checked lazily when a command needs them.
func New(cfg *Config, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	channel, err := line.New(cfg.Line, logger)
	if err != nil {
		return nil, fmt.Errorf("creating line channel: %w", err)
	}

	b := &Bot{
		cfg:       cfg,
		logger:    logger.With("component", "bot"),
		base:      logger,
		channel:   channel,
		sessions:  engine.NewSessionStore(cfg.Engine.MaxHistory, cfg.Engine.SessionTTL(), logger),
		limiter:   engine.NewLimiter(),
		llm:       providers.NewLLMClient(cfg.LLM, logger),
		weather:   providers.NewWeatherClient(cfg.Providers.Weather, logger),
		translate: providers.NewTranslateClient(cfg.Providers.Translate, logger),
		flight:    providers.NewFlightClient(cfg.Providers.Flight, logger),
		image:     providers.NewImageClient(cfg.Providers.Image, logger),
	}
	b.reminders = engine.NewReminderScheduler(b.deliverReminder, logger)
	b.router = engine.NewRouter(b.rules(), b.fallbackChat, logger)
	b.maint = newMaintenance(b, logger)
	return b, nil
}

// Start launches the background pieces: the reminder timer loop and the
// cron maintenance jobs (session sweep, keep-alive ping).
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.reminders.Start(b.ctx)
	if err := b.maint.start(); err != nil {
		return fmt.Errorf("starting maintenance jobs: %w", err)
	}
	b.logger.Info("bot started", "name", b.cfg.Name, "channel", b.channel.Name())
	return nil
}

// Run starts the bot and its HTTP gateway and blocks until ctx is
// cancelled or the server fails. The gateway is shut down gracefully on
// the way out.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	gw := gateway.New(b.cfg.Server.Addr, b, b.base)
	serveErr := gw.Start()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Stop shuts the background pieces down. In-flight event goroutines are
// not awaited; their replies fail fast once the channel context ends.
func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.reminders.Stop()
	b.maint.stop()
	b.logger.Info("bot stopped")
}

// WebhookHandler returns the HTTP handler for the platform callback.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return b.handleWebhook
}

// handleWebhook verifies and decodes one webhook delivery, acknowledges
// it, and processes each event on its own goroutine. The platform
// retries non-2xx responses, so the acknowledgement never waits on
// provider calls.
func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	msgs, err := b.channel.ParseWebhook(r)
	if err != nil {
		if errors.Is(err, channels.ErrInvalidSignature) {
			b.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		b.logger.Error("webhook parse failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// One goroutine per user, not per event: a user's events in a
	// delivery are handled in arrival order so their turns land in the
	// history in that order, while distinct users still run concurrently.
	for _, batch := range groupByUser(msgs) {
		go func(batch []*channels.IncomingMessage) {
			for _, msg := range batch {
				b.handleEvent(msg)
			}
		}(batch)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// groupByUser splits a delivery into per-user batches, preserving
// arrival order inside each batch.
func groupByUser(msgs []*channels.IncomingMessage) [][]*channels.IncomingMessage {
	byUser := make(map[string]int)
	var batches [][]*channels.IncomingMessage
	for _, msg := range msgs {
		i, ok := byUser[msg.UserID]
		if !ok {
			i = len(batches)
			byUser[msg.UserID] = i
			batches = append(batches, nil)
		}
		batches[i] = append(batches[i], msg)
	}
	return batches
}

// handleEvent processes one inbound event. A panicking handler must not
// take the process down, so everything below the webhook runs behind a
// recover.
func (b *Bot) handleEvent(msg *channels.IncomingMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event handler panicked", "user_id", msg.UserID, "panic", rec)
		}
	}()

	switch msg.Kind {
	case channels.KindFollow:
		b.sessions.GetOrCreate(msg.UserID)
		if err := b.channel.Reply(b.ctx, msg.ReplyToken, msgWelcome); err != nil {
			b.logger.Error("welcome reply failed", "user_id", msg.UserID, "error", err)
		}
	case channels.KindText:
		// Any inbound text counts as activity, command or not.
		b.sessions.GetOrCreate(msg.UserID).Touch()

		reply := b.router.Dispatch(b.ctx, msg.UserID, msg.Text)
		if reply.Text == "" {
			return
		}
		if err := b.channel.Reply(b.ctx, msg.ReplyToken, reply.Text); err != nil {
			b.logger.Error("reply failed", "user_id", msg.UserID, "error", err)
		}
	}
}

// deliverReminder is the scheduler's push delivery.
func (b *Bot) deliverReminder(ctx context.Context, owner, payload string) error {
	return b.channel.Push(ctx, owner, "⏰ 提醒:"+payload)
}

// checkLimit runs the cooldown check for a capability. When denied it
// returns the throttle message to send back.
func (b *Bot) checkLimit(userID, capability string) (ok bool, denied string) {
	cooldown := b.cfg.Engine.Cooldown(capability)
	now := time.Now()
	if b.limiter.TryAcquire(userID, capability, now, cooldown) {
		return true, ""
	}
	remaining := b.limiter.Remaining(userID, capability, now, cooldown)
	secs := int((remaining + time.Second - 1) / time.Second)
	return false, fmt.Sprintf(msgThrottled, secs)
}

// Gateway admin surface.

// ListSessions returns metadata for all live sessions.
func (b *Bot) ListSessions() []engine.SessionMeta {
	return b.sessions.ListSessions()
}

// DeleteSession removes a session and the user's cooldown state.
func (b *Bot) DeleteSession(userID string) bool {
	if !b.sessions.Delete(userID) {
		return false
	}
	b.limiter.Forget(userID)
	return true
}

// SessionCount returns the number of live sessions.
func (b *Bot) SessionCount() int { return b.sessions.Count() }

// PendingReminders returns the number of pending reminders.
func (b *Bot) PendingReminders() int { return b.reminders.PendingCount() }

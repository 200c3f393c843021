package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/engine"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/providers"
)

// User-facing messages. Replies are Traditional Chinese to match the
// bot's audience.
const (
	msgWelcome   = "歡迎加入!輸入 help 查看可用指令 🤖"
	msgApology   = "抱歉,服務暫時無法使用,請稍後再試 🙏"
	msgThrottled = "操作太頻繁了,請稍候 %d 秒再試 🙏"

	msgWeatherUsage   = "請輸入城市名稱,例如:weather Taipei"
	msgTranslateUsage = "請輸入目標語言和文字,例如:translate en 你好"
	msgFlightUsage    = "請輸入航班編號,例如:flight BR857"
	msgImageUsage     = "請描述想產生的圖片,例如:image 一隻太空貓"
	msgRemindUsage    = "請輸入提醒時間和內容,例如:remind 10m 喝水 或 remind 15:04 開會"
	msgRemindPast     = "提醒時間必須在未來,請重新輸入 ⏰"
	msgNoReminders    = "目前沒有待提醒事項"
	msgCancelUsage    = "請輸入要取消的提醒編號,輸入 reminders 查看編號"
	msgCancelMissing  = "找不到這個提醒編號,輸入 reminders 查看待提醒清單"

	msgHelp = `可用指令:
weather <城市> — 查詢目前天氣
translate <語言> <文字> — 翻譯文字
flight <航班編號> — 查詢航班狀態
image <描述> — 產生圖片
remind <時間> <內容> — 設定提醒(10m、15:04)
reminders — 查看待提醒清單
cancel <編號> — 取消提醒
其他訊息會直接與 AI 對話 💬`
)

// rules is the ordered dispatch table. First match wins, so "reminders"
// sits above "remind".
func (b *Bot) rules() []engine.Rule {
	return []engine.Rule{
		{Prefix: "weather", Name: "weather", Handle: b.handleWeather},
		{Prefix: "translate", Name: "translate", Handle: b.handleTranslate},
		{Prefix: "flight", Name: "flight", Handle: b.handleFlight},
		{Prefix: "image", Name: "image", Handle: b.handleImage},
		{Prefix: "reminders", Name: "reminders", Handle: b.handleReminders},
		{Prefix: "remind", Name: "remind", Handle: b.handleRemind},
		{Prefix: "cancel", Name: "cancel", Handle: b.handleCancel},
		{Prefix: "help", Name: "help", Handle: b.handleHelp},
	}
}

func (b *Bot) handleWeather(ctx context.Context, userID, args string) engine.Reply {
	if args == "" {
		return engine.Reply{Text: msgWeatherUsage}
	}
	if ok, denied := b.checkLimit(userID, "weather"); !ok {
		return engine.Reply{Text: denied}
	}
	report, err := b.weather.Current(ctx, args)
	if err != nil {
		b.logger.Error("weather lookup failed", "user_id", userID, "location", args, "error", err)
		return engine.Reply{Text: msgApology}
	}
	return engine.Reply{Text: report.String()}
}

func (b *Bot) handleTranslate(ctx context.Context, userID, args string) engine.Reply {
	lang, text, ok := strings.Cut(args, " ")
	if !ok || strings.TrimSpace(text) == "" {
		return engine.Reply{Text: msgTranslateUsage}
	}
	if ok, denied := b.checkLimit(userID, "translate"); !ok {
		return engine.Reply{Text: denied}
	}
	translated, err := b.translate.Translate(ctx, strings.TrimSpace(text), lang)
	if err != nil {
		b.logger.Error("translation failed", "user_id", userID, "target", lang, "error", err)
		return engine.Reply{Text: msgApology}
	}
	return engine.Reply{Text: translated}
}

func (b *Bot) handleFlight(ctx context.Context, userID, args string) engine.Reply {
	if args == "" {
		return engine.Reply{Text: msgFlightUsage}
	}
	if ok, denied := b.checkLimit(userID, "flight"); !ok {
		return engine.Reply{Text: denied}
	}
	status, err := b.flight.Status(ctx, args)
	if err != nil {
		b.logger.Error("flight lookup failed", "user_id", userID, "flight", args, "error", err)
		return engine.Reply{Text: msgApology}
	}
	return engine.Reply{Text: status.String()}
}

func (b *Bot) handleImage(ctx context.Context, userID, args string) engine.Reply {
	if args == "" {
		return engine.Reply{Text: msgImageUsage}
	}
	if ok, denied := b.checkLimit(userID, "image"); !ok {
		return engine.Reply{Text: denied}
	}
	url, err := b.image.Generate(ctx, args)
	if err != nil {
		b.logger.Error("image generation failed", "user_id", userID, "error", err)
		return engine.Reply{Text: msgApology}
	}
	return engine.Reply{Text: url}
}

func (b *Bot) handleRemind(ctx context.Context, userID, args string) engine.Reply {
	spec, payload, ok := strings.Cut(args, " ")
	payload = strings.TrimSpace(payload)
	if !ok || payload == "" {
		return engine.Reply{Text: msgRemindUsage}
	}

	fireAt, err := parseRemindTime(spec, time.Now())
	if err != nil {
		return engine.Reply{Text: msgRemindUsage}
	}

	id, err := b.reminders.Schedule(userID, fireAt, payload)
	if err != nil {
		if errors.Is(err, engine.ErrPastTime) {
			return engine.Reply{Text: msgRemindPast}
		}
		b.logger.Error("scheduling reminder failed", "user_id", userID, "error", err)
		return engine.Reply{Text: msgApology}
	}
	return engine.Reply{Text: fmt.Sprintf("好的,%s 提醒你:%s(編號 %s)",
		fireAt.Format("01/02 15:04"), payload, id)}
}

func (b *Bot) handleReminders(ctx context.Context, userID, args string) engine.Reply {
	pending := b.reminders.Pending(userID)
	if len(pending) == 0 {
		return engine.Reply{Text: msgNoReminders}
	}
	var sb strings.Builder
	sb.WriteString("待提醒事項:")
	for _, r := range pending {
		fmt.Fprintf(&sb, "\n%s %s — %s", r.ID, r.FireAt.Format("01/02 15:04"), r.Payload)
	}
	return engine.Reply{Text: sb.String()}
}

func (b *Bot) handleCancel(ctx context.Context, userID, args string) engine.Reply {
	if args == "" {
		return engine.Reply{Text: msgCancelUsage}
	}
	if !b.cancelOwned(userID, args) {
		return engine.Reply{Text: msgCancelMissing}
	}
	return engine.Reply{Text: fmt.Sprintf("已取消提醒 %s ✅", args)}
}

// cancelOwned cancels a reminder only when it belongs to the caller, so
// a user cannot cancel someone else's reminder by guessing IDs.
func (b *Bot) cancelOwned(userID, id string) bool {
	for _, r := range b.reminders.Pending(userID) {
		if r.ID == id {
			return b.reminders.Cancel(id)
		}
	}
	return false
}

func (b *Bot) handleHelp(ctx context.Context, userID, args string) engine.Reply {
	return engine.Reply{Text: msgHelp}
}

// fallbackChat is the default handler: the message becomes part of the
// conversation and is answered by the LLM with the session history as
// context. The user turn is recorded before the call; the assistant
// turn only on success, so a failed call leaves no half-exchange.
func (b *Bot) fallbackChat(ctx context.Context, userID, text string) engine.Reply {
	if text == "" {
		return engine.Reply{Text: msgHelp}
	}
	if ok, denied := b.checkLimit(userID, "chat"); !ok {
		return engine.Reply{Text: denied}
	}

	b.sessions.AppendTurn(userID, engine.RoleUser, text)

	history := b.sessions.Snapshot(userID)
	messages := make([]providers.ChatMessage, 0, len(history))
	for _, turn := range history {
		messages = append(messages, providers.ChatMessage{
			Role:    string(turn.Role),
			Content: turn.Text,
		})
	}

	answer, err := b.llm.Complete(ctx, messages)
	if err != nil {
		b.logger.Error("chat completion failed", "user_id", userID, "error", err)
		return engine.Reply{Text: msgApology}
	}

	b.sessions.AppendTurn(userID, engine.RoleAssistant, answer)
	return engine.Reply{Text: answer}
}

// parseRemindTime resolves a reminder time spec relative to now.
// Accepted forms: a Go duration ("10m", "1h30m"), a wall-clock "15:04"
// (today, or tomorrow when already past), and RFC3339.
func parseRemindTime(spec string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(d), nil
	}
	if clock, err := time.ParseInLocation("15:04", spec, now.Location()); err == nil {
		at := time.Date(now.Year(), now.Month(), now.Day(),
			clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if !at.After(now) {
			at = at.Add(24 * time.Hour)
		}
		return at, nil
	}
	if at, err := time.Parse(time.RFC3339, spec); err == nil {
		return at, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time spec %q", spec)
}

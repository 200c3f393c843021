package engine

import (
	"context"
	"log/slog"
	"strings"
)

// Reply is the outcome of dispatching one inbound message.
type Reply struct {
	// Text is the message sent back to the user.
	Text string
}

// HandlerFunc handles one routed message. args is the text after the
// matched prefix, already trimmed. Handlers must not return an error:
// every failure path is expected to produce a user-visible reply.
type HandlerFunc func(ctx context.Context, userID, args string) Reply

// Rule binds a literal prefix to a handler. Matching is case-insensitive
// on the prefix only.
type Rule struct {
	// Prefix is the literal command prefix, lower case (e.g. "weather").
	Prefix string

	// Name identifies the capability for logging and rate limiting.
	Name string

	// Handle processes the message remainder.
	Handle HandlerFunc
}

// Router dispatches inbound messages over an ordered rule table. Rules are
// evaluated top to bottom and the first matching prefix wins, so a rule
// whose prefix extends another's (e.g. "reminders" vs "remind") must be
// declared first. The table is fixed at construction; dispatch itself is
// stateless and safe for concurrent use.
type Router struct {
	rules    []Rule
	fallback HandlerFunc
	logger   *slog.Logger
}

// NewRouter creates a router with a fixed rule table and a fallback
// handler invoked when no prefix matches.
func NewRouter(rules []Rule, fallback HandlerFunc, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rules:    rules,
		fallback: fallback,
		logger:   logger.With("component", "router"),
	}
}

// Dispatch routes text for userID and returns the reply. The same input
// always selects the same handler regardless of caller or call order.
func (r *Router) Dispatch(ctx context.Context, userID, text string) Reply {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, rule := range r.rules {
		args, ok := matchPrefix(lower, trimmed, rule.Prefix)
		if !ok {
			continue
		}
		r.logger.Debug("dispatch", "user_id", userID, "rule", rule.Name)
		return rule.Handle(ctx, userID, args)
	}

	r.logger.Debug("dispatch", "user_id", userID, "rule", "fallback")
	return r.fallback(ctx, userID, trimmed)
}

// matchPrefix reports whether lower starts with the prefix as a whole
// word, returning the remainder from the original-cased text. "weather"
// matches "weather Taipei" and bare "weather", but not "weathermap".
func matchPrefix(lower, original, prefix string) (args string, ok bool) {
	if !strings.HasPrefix(lower, prefix) {
		return "", false
	}
	rest := original[len(prefix):]
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' && rest[0] != '\n' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

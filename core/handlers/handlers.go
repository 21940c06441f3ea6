// Package handlers provides the stock handlers a bot chains together: a policy
// guard, a slash-command table, a callback acknowledger and an echo fallback.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jdelaire/botpoll/core"
	"github.com/jdelaire/botpoll/core/policy"
	"github.com/jdelaire/botpoll/core/ratelimit"
)

const (
	GuardID    core.HandlerID = "guard"
	CommandsID core.HandlerID = "commands"
	CallbackID core.HandlerID = "callback"
	EchoID     core.HandlerID = "echo"
)

// Guard claims updates the policy rejects so later handlers never see them.
// It should be first in the chain. With a Limiter set, chats that keep failing
// the allowlist are muted and their rejections are no longer logged.
type Guard struct {
	Policy  *policy.Policy
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger

	reason error
}

func (g *Guard) CanHandle(_ context.Context, u core.Update) (bool, error) {
	g.reason = g.Policy.Check(u)
	return g.reason != nil, nil
}

func (g *Guard) Handle(_ context.Context, u core.Update, _ core.Client) error {
	chatID := u.ChatID()
	if g.Limiter != nil && chatID != 0 && errors.Is(g.reason, policy.ErrUnauthorizedChat) {
		if g.Limiter.Reject(chatID) {
			g.Logger.Warn("muting chat after repeated rejections", "chat_id", chatID)
			return nil
		}
		if g.Limiter.Muted(chatID) {
			return nil
		}
	}
	g.Logger.Debug("update rejected by policy", "update_id", u.ID, "chat_id", chatID, "reason", g.reason)
	return nil
}

// CallbackAck answers inline keyboard presses so the client stops its spinner.
type CallbackAck struct{}

func (CallbackAck) CanHandle(_ context.Context, u core.Update) (bool, error) {
	return u.CallbackQuery != nil, nil
}

func (CallbackAck) Handle(ctx context.Context, u core.Update, client core.Client) error {
	text := ""
	if u.CallbackQuery.Data != "" {
		text = "Received: " + u.CallbackQuery.Data
	}
	return client.AnswerCallbackQuery(ctx, u.CallbackQuery.ID, text)
}

// Echo replies to any plain text message with the same text.
type Echo struct{}

func (Echo) CanHandle(_ context.Context, u core.Update) (bool, error) {
	if u.Message == nil {
		return false, nil
	}
	text := strings.TrimSpace(u.Message.Text)
	return text != "" && !strings.HasPrefix(text, "/"), nil
}

func (Echo) Handle(ctx context.Context, u core.Update, client core.Client) error {
	if _, err := client.SendMessage(ctx, u.Message.Chat.ID, u.Message.Text); err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	return nil
}

// Deps are the shared objects the stock handlers are built from. Limiter may
// be nil. BotName is the bot's username without "@"; when empty, commands
// addressed to any bot are answered.
type Deps struct {
	Policy   *policy.Policy
	Limiter  *ratelimit.Limiter
	Commands *Commands
	BotName  string
	Logger   *slog.Logger
}

// Provide registers the stock handlers with a and returns their ids in chain
// order.
func Provide(a *core.FactoryActivator, deps Deps) ([]core.HandlerID, error) {
	factories := []struct {
		id      core.HandlerID
		factory core.HandlerFactory
	}{
		{GuardID, func() core.Handler {
			return &Guard{Policy: deps.Policy, Limiter: deps.Limiter, Logger: deps.Logger}
		}},
		{CommandsID, func() core.Handler { return &CommandHandler{Commands: deps.Commands, BotName: deps.BotName} }},
		{CallbackID, func() core.Handler { return CallbackAck{} }},
		{EchoID, func() core.Handler { return Echo{} }},
	}

	ids := make([]core.HandlerID, 0, len(factories))
	for _, f := range factories {
		if err := a.Provide(f.id, f.factory); err != nil {
			return nil, err
		}
		ids = append(ids, f.id)
	}
	return ids, nil
}

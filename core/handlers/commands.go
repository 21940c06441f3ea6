package handlers

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/jdelaire/botpoll/core"
)

// Command is a slash command a bot answers, e.g. /ping.
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args string) (string, error)
}

// Commands maps command names and aliases to commands.
type Commands struct {
	mu      sync.RWMutex
	byName  map[string]Command
	primary []string
}

// NewCommands creates an empty command table.
func NewCommands() *Commands {
	return &Commands{byName: make(map[string]Command)}
}

// Register adds cmd under its name and any aliases. Names are case
// insensitive. Nothing is registered if any name is already taken.
func (c *Commands) Register(cmd Command, aliases ...string) error {
	names := make([]string, 0, 1+len(aliases))
	for _, n := range append([]string{cmd.Name()}, aliases...) {
		n = strings.ToLower(n)
		if n == "" || slices.Contains(names, n) {
			return fmt.Errorf("invalid command name %q for /%s", n, cmd.Name())
		}
		names = append(names, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range names {
		if _, exists := c.byName[n]; exists {
			return fmt.Errorf("command already registered: %s", n)
		}
	}
	for _, n := range names {
		c.byName[n] = cmd
	}
	c.primary = append(c.primary, names[0])
	slices.Sort(c.primary)
	return nil
}

// Get returns the command registered under name or alias, or nil.
func (c *Commands) Get(name string) Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byName[strings.ToLower(name)]
}

// List returns each registered command once, sorted by name. Aliases are not
// listed.
func (c *Commands) List() []Command {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Command, len(c.primary))
	for i, n := range c.primary {
		out[i] = c.byName[n]
	}
	return out
}

// CommandHandler claims messages whose slash command is registered in its
// table and replies with the command output. When BotName is set, commands
// addressed to another bot ("/ping@otherbot") are left alone.
type CommandHandler struct {
	Commands *Commands
	BotName  string

	cmd  Command
	args string
}

func (h *CommandHandler) CanHandle(_ context.Context, u core.Update) (bool, error) {
	if u.Message == nil {
		return false, nil
	}
	inv, ok := parseCommand(u.Message.Text)
	if !ok {
		return false, nil
	}
	if inv.bot != "" && h.BotName != "" && !strings.EqualFold(inv.bot, h.BotName) {
		return false, nil
	}
	cmd := h.Commands.Get(inv.name)
	if cmd == nil {
		return false, nil
	}
	h.cmd, h.args = cmd, inv.args
	return true, nil
}

func (h *CommandHandler) Handle(ctx context.Context, u core.Update, client core.Client) error {
	result, err := h.cmd.Execute(ctx, h.args)
	if err != nil {
		result = fmt.Sprintf("Error running /%s: %s", h.cmd.Name(), err)
	}
	if _, err := client.SendMessage(ctx, u.Message.Chat.ID, result); err != nil {
		return fmt.Errorf("reply to /%s: %w", h.cmd.Name(), err)
	}
	return nil
}

// invocation is a parsed "/name@bot args" message.
type invocation struct {
	name string
	bot  string
	args string
}

// parseCommand splits a message into command, addressed bot and arguments.
// The command word ends at the first whitespace, newlines included.
func parseCommand(text string) (invocation, bool) {
	text = strings.TrimSpace(text)
	word, ok := strings.CutPrefix(text, "/")
	if !ok {
		return invocation{}, false
	}

	var inv invocation
	if i := strings.IndexFunc(word, unicode.IsSpace); i >= 0 {
		word, inv.args = word[:i], strings.TrimSpace(word[i:])
	}
	word, inv.bot, _ = strings.Cut(word, "@")
	inv.name = strings.ToLower(word)
	if inv.name == "" {
		return invocation{}, false
	}
	return inv, true
}

package handlers

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// PingCommand answers /ping.
type PingCommand struct{}

func (PingCommand) Name() string        { return "ping" }
func (PingCommand) Description() string { return "Check that the bot is alive" }

func (PingCommand) Execute(_ context.Context, _ string) (string, error) {
	return "pong", nil
}

// HelpCommand lists all registered commands.
type HelpCommand struct {
	Commands *Commands
}

func (h *HelpCommand) Name() string        { return "help" }
func (h *HelpCommand) Description() string { return "List available commands" }

func (h *HelpCommand) Execute(_ context.Context, _ string) (string, error) {
	all := h.Commands.List()
	if len(all) == 0 {
		return "No commands available.", nil
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, cmd := range all {
		fmt.Fprintf(&b, "  /%s - %s\n", cmd.Name(), cmd.Description())
	}
	return b.String(), nil
}

// StatusCommand reports uptime, the poll offset and the dispatch backlog.
type StatusCommand struct {
	Started time.Time
	Offset  func() int64
	Pending func() int
}

func (s *StatusCommand) Name() string        { return "status" }
func (s *StatusCommand) Description() string { return "Show bot status" }

func (s *StatusCommand) Execute(_ context.Context, _ string) (string, error) {
	uptime := time.Since(s.Started).Truncate(time.Second)
	var offset int64
	if s.Offset != nil {
		offset = s.Offset()
	}
	var pending int
	if s.Pending != nil {
		pending = s.Pending()
	}
	return fmt.Sprintf("Status: OK\nUptime: %s\nOffset: %d\nQueued: %d\nGoroutines: %d",
		uptime, offset, pending, runtime.NumGoroutine()), nil
}

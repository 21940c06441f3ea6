package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jdelaire/botpoll/core"
)

const (
	DefaultFreshness = 5 * time.Minute
	maxSeenIDs       = 10000
	pruneCount       = 1000
)

var (
	ErrUnauthorizedChat = errors.New("unauthorized chat")
	ErrStale            = errors.New("stale message")
	ErrDuplicate        = errors.New("duplicate update")
)

// Policy decides whether an update may reach the bot's handlers. It checks a
// chat allowlist, a freshness window for dated messages, and update_id
// deduplication.
type Policy struct {
	mu        sync.Mutex
	allowed   map[int64]bool
	freshness time.Duration
	seen      map[int64]bool
	seenOrder []int64
	now       func() time.Time
}

// New creates a Policy that admits only the given chat IDs. An empty list
// admits every chat.
func New(chatIDs []int64) *Policy {
	return &Policy{
		allowed:   chatSet(chatIDs),
		freshness: DefaultFreshness,
		seen:      make(map[int64]bool),
		now:       time.Now,
	}
}

// SetAllowed replaces the chat allowlist. It is safe to call while Check runs
// on other goroutines.
func (p *Policy) SetAllowed(chatIDs []int64) {
	allowed := chatSet(chatIDs)
	p.mu.Lock()
	p.allowed = allowed
	p.mu.Unlock()
}

func chatSet(chatIDs []int64) map[int64]bool {
	allowed := make(map[int64]bool, len(chatIDs))
	for _, id := range chatIDs {
		allowed[id] = true
	}
	return allowed
}

// WithFreshness overrides how old a message may be. Zero disables the check.
func (p *Policy) WithFreshness(d time.Duration) *Policy {
	p.freshness = d
	return p
}

// WithClock overrides the time source (for testing).
func (p *Policy) WithClock(now func() time.Time) *Policy {
	if now != nil {
		p.now = now
	}
	return p
}

// Check returns an error describing why u must not be handled, or nil.
// An admitted update id is remembered, so a second Check of the same id fails.
func (p *Policy) Check(u core.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.allowed) > 0 {
		// Chatless updates (inline queries, inline-message callbacks) are
		// checked by sender, whose private chat id equals the user id.
		id := u.ChatID()
		if id == 0 {
			id = u.SenderID()
		}
		if id == 0 || !p.allowed[id] {
			return fmt.Errorf("%w: %d", ErrUnauthorizedChat, id)
		}
	}

	if m := u.EffectiveMessage(); p.freshness > 0 && m != nil && m.Date != 0 {
		if age := p.now().Sub(m.Time()); age > p.freshness {
			return fmt.Errorf("%w: %v old", ErrStale, age.Truncate(time.Second))
		}
	}

	if p.seen[u.ID] {
		return fmt.Errorf("%w: %d", ErrDuplicate, u.ID)
	}

	// Prune oldest entries if at capacity.
	if len(p.seen) >= maxSeenIDs {
		n := min(pruneCount, len(p.seenOrder))
		for _, id := range p.seenOrder[:n] {
			delete(p.seen, id)
		}
		p.seenOrder = p.seenOrder[n:]
	}

	p.seen[u.ID] = true
	p.seenOrder = append(p.seenOrder, u.ID)

	return nil
}

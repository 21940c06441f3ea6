// Package ratelimit mutes chats that keep sending updates the bot rejects.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRejections = 5
	DefaultWindow        = 15 * time.Minute
	DefaultMute          = 15 * time.Minute
)

type record struct {
	rejections []time.Time
	mutedAt    time.Time
}

// Limiter counts rejections per chat ID. A chat that collects MaxRejections
// within Window is muted for Mute.
type Limiter struct {
	maxRejections int
	window        time.Duration
	mute          time.Duration

	mu        sync.Mutex
	records   map[int64]*record
	lastSweep time.Time
	now       func() time.Time
}

// New creates a limiter with the default thresholds.
func New() *Limiter {
	return &Limiter{
		maxRejections: DefaultMaxRejections,
		window:        DefaultWindow,
		mute:          DefaultMute,
		records:       make(map[int64]*record),
		now:           time.Now,
	}
}

// WithThresholds overrides the rejection count, counting window and mute
// duration. Non-positive values keep the current setting.
func (l *Limiter) WithThresholds(maxRejections int, window, mute time.Duration) *Limiter {
	if maxRejections > 0 {
		l.maxRejections = maxRejections
	}
	if window > 0 {
		l.window = window
	}
	if mute > 0 {
		l.mute = mute
	}
	return l
}

// WithClock overrides the time source (for testing).
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Muted reports whether chatID is currently muted. An expired mute is cleared.
func (l *Limiter) Muted(chatID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutedLocked(chatID)
}

func (l *Limiter) mutedLocked(chatID int64) bool {
	r := l.records[chatID]
	if r == nil || r.mutedAt.IsZero() {
		return false
	}
	if l.now().Sub(r.mutedAt) < l.mute {
		return true
	}
	delete(l.records, chatID)
	return false
}

// Reject records a rejection for chatID and reports whether this rejection
// moved the chat into the muted state.
func (l *Limiter) Reject(chatID int64) (mutedNow bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutedLocked(chatID) {
		return false
	}

	now := l.now()
	l.sweepLocked(now)

	r := l.records[chatID]
	if r == nil {
		r = &record{}
		l.records[chatID] = r
	}

	cutoff := now.Add(-l.window)
	fresh := r.rejections[:0]
	for _, t := range r.rejections {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	r.rejections = append(fresh, now)

	if len(r.rejections) >= l.maxRejections {
		r.mutedAt = now
		r.rejections = nil
		return true
	}
	return false
}

// sweepLocked drops records that are neither muted nor holding a rejection
// inside the window. It runs at most once per window.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	cutoff := now.Add(-l.window)
	for id, r := range l.records {
		if !r.mutedAt.IsZero() {
			if now.Sub(r.mutedAt) >= l.mute {
				delete(l.records, id)
			}
			continue
		}
		if n := len(r.rejections); n == 0 || !r.rejections[n-1].After(cutoff) {
			delete(l.records, id)
		}
	}
}

// Reset forgets everything about chatID.
func (l *Limiter) Reset(chatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, chatID)
}

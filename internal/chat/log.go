package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/skincare-picker/internal/domain"
)

// Log is the append-only bubble list of one session. It is never persisted.
type Log struct {
	writeMu sync.Mutex

	mu        sync.Mutex
	bubbles   []domain.Bubble
	observers []func([]domain.Bubble)
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Subscribe registers fn to receive a copy of the log after every change.
func (l *Log) Subscribe(fn func([]domain.Bubble)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Append adds a settled bubble.
func (l *Log) Append(role domain.Role, text string) domain.Bubble {
	b := domain.Bubble{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
	l.change(func() bool {
		l.bubbles = append(l.bubbles, b)
		return true
	})
	return b
}

// AppendPending adds a placeholder bubble carrying a fresh request token.
// Only a Resolve presenting that token can settle it.
func (l *Log) AppendPending(text string) domain.Bubble {
	b := domain.Bubble{
		ID:        uuid.NewString(),
		Role:      domain.RolePending,
		Text:      text,
		Token:     uuid.NewString(),
		CreatedAt: time.Now(),
	}
	l.change(func() bool {
		l.bubbles = append(l.bubbles, b)
		return true
	})
	return b
}

// Resolve replaces the pending bubble id with role and text if it still
// carries token. It reports whether the reply was applied.
func (l *Log) Resolve(id, token string, role domain.Role, text string) bool {
	applied := false
	l.change(func() bool {
		for i := range l.bubbles {
			b := &l.bubbles[i]
			if b.ID != id {
				continue
			}
			if token == "" || b.Token != token {
				return false
			}
			b.Role = role
			b.Text = text
			b.Token = ""
			applied = true
			return true
		}
		return false
	})
	return applied
}

// Reset drops every bubble, including pending ones.
func (l *Log) Reset() {
	l.change(func() bool {
		l.bubbles = nil
		return true
	})
}

// Bubbles returns a copy of the log in display order.
func (l *Log) Bubbles() []domain.Bubble {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Bubble(nil), l.bubbles...)
}

// Last returns the newest bubble.
func (l *Log) Last() (domain.Bubble, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.bubbles) == 0 {
		return domain.Bubble{}, false
	}
	return l.bubbles[len(l.bubbles)-1], true
}

func (l *Log) change(fn func() bool) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	if !fn() {
		l.mu.Unlock()
		return
	}
	snapshot := append([]domain.Bubble(nil), l.bubbles...)
	observers := append(([]func([]domain.Bubble))(nil), l.observers...)
	l.mu.Unlock()

	for _, o := range observers {
		o(append([]domain.Bubble(nil), snapshot...))
	}
}

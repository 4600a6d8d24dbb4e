// Package session keeps per-user conversation state in an expiring cache.
// A conversation that sees no activity for the configured TTL is forgotten.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
	"github.com/fucheng830/chatgpt-on-wechat/internal/expiring"
)

// Roles used in conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
	At      time.Time
}

// Session is a conversation with its system prompt and recent messages.
type Session struct {
	ID           string
	SystemPrompt string
	Messages     []Message
	Created      time.Time
	Updated      time.Time
}

// clone returns a copy that shares nothing with the cached session.
func (s *Session) clone() Session {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	return c
}

// Stats holds session manager counters.
type Stats struct {
	Live        int
	Created     int64
	Purged      int64
	CleanupRuns int64
	LastCleanup time.Time
}

// Manager owns the conversation cache. The underlying expiring map is not
// safe for concurrent use, so every access goes through mu.
type Manager struct {
	mu          sync.Mutex
	sessions    *expiring.Map[string, *Session]
	maxMessages int
	now         func() time.Time
	stats       Stats

	// Cleanup goroutine control
	cleanupStop   chan struct{}
	cleanupTicker *time.Ticker
	cleanupWg     sync.WaitGroup
	closeOnce     sync.Once
}

// NewManager creates a session manager. When cfg.CleanupInterval is positive
// a background sweep drops expired sessions; otherwise they are only
// evicted when read.
func NewManager(cfg config.SessionConfig, opts ...expiring.Option) *Manager {
	m := &Manager{
		sessions:    expiring.New[string, *Session](cfg.TTL, opts...),
		maxMessages: cfg.MaxMessages,
		now:         time.Now,
		cleanupStop: make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		m.startCleanupRoutine(cfg.CleanupInterval)
	}

	return m
}

// Session returns the conversation for id, creating it with systemPrompt if
// it does not exist. An existing conversation keeps its prompt.
func (m *Manager) Session(id, systemPrompt string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getOrCreate(id, systemPrompt).clone()
}

// Lookup returns the conversation for id if it is still live.
func (m *Manager) Lookup(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.Get(id)
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Append adds a message to the conversation for id, creating the
// conversation if needed, and trims it to the configured length.
func (m *Manager) Append(id, role, content string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreate(id, "")
	now := m.now()
	s.Messages = append(s.Messages, Message{Role: role, Content: content, At: now})
	if m.maxMessages > 0 && len(s.Messages) > m.maxMessages {
		s.Messages = slices.Clone(s.Messages[len(s.Messages)-m.maxMessages:])
	}
	s.Updated = now

	return s.clone()
}

// Clear forgets the conversation for id.
func (m *Manager) Clear(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions.Delete(id)
}

// ClearAll forgets every conversation.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.sessions.Keys() {
		m.sessions.Delete(id)
	}
}

// IDs returns the live conversation IDs. Listing counts as activity and
// extends each conversation's lifetime.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions.Keys()
}

// Purge drops expired conversations without extending live ones.
func (m *Manager) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.sessions.Purge()
	m.stats.Purged += int64(n)
	return n
}

// Stats returns manager statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.Live = m.sessions.Len()
	return stats
}

// Close stops the background sweep.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.cleanupStop)
		m.cleanupWg.Wait()
		if m.cleanupTicker != nil {
			m.cleanupTicker.Stop()
		}
	})
	return nil
}

// getOrCreate must be called with m.mu held.
func (m *Manager) getOrCreate(id, systemPrompt string) *Session {
	if s, ok := m.sessions.Get(id); ok {
		return s
	}

	now := m.now()
	s := &Session{
		ID:           id,
		SystemPrompt: systemPrompt,
		Created:      now,
		Updated:      now,
	}
	m.sessions.Set(id, s)
	m.stats.Created++
	log.Debug("session created", "id", id)
	return s
}

// restore inserts s with a fresh lifetime. Must be called with m.mu held.
func (m *Manager) restore(s Session) {
	m.sessions.Set(s.ID, &s)
}

// startCleanupRoutine starts the background cleanup goroutine.
func (m *Manager) startCleanupRoutine(interval time.Duration) {
	m.cleanupTicker = time.NewTicker(interval)
	m.cleanupWg.Add(1)

	go func() {
		defer m.cleanupWg.Done()

		for {
			select {
			case <-m.cleanupTicker.C:
				m.performCleanup()
			case <-m.cleanupStop:
				return
			}
		}
	}()
}

// performCleanup sweeps expired sessions.
func (m *Manager) performCleanup() {
	n := m.Purge()

	m.mu.Lock()
	m.stats.CleanupRuns++
	m.stats.LastCleanup = m.now()
	m.mu.Unlock()

	if n > 0 {
		log.Debug("expired sessions purged", "count", n)
	}
}

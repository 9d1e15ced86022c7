// Package presence holds ephemeral typing state. Nothing here is durable:
// entries expire after a short TTL and are lost on restart.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Typing stores per-(conversation, user) typing hints with an expiry.
type Typing interface {
	// Set marks the user as typing until expiresAt.
	Set(ctx context.Context, conversationID, userID int64, expiresAt time.Time) error

	// Clear removes the user's typing state.
	Clear(ctx context.Context, conversationID, userID int64) error

	// Active returns users whose typing state has not expired at now, ascending.
	Active(ctx context.Context, conversationID int64, now time.Time) ([]int64, error)

	// Forget drops all typing state of a conversation.
	Forget(ctx context.Context, conversationID int64) error
}

// MemoryTyping is an in-process Typing backed by an expiring map.
// Expired entries are filtered on read and removed by Sweep.
type MemoryTyping struct {
	mu      sync.Mutex
	entries map[int64]map[int64]time.Time
	now     func() time.Time
	log     *zerolog.Logger
}

// NewMemoryTyping creates an empty in-memory typing store.
func NewMemoryTyping(logger *zerolog.Logger) *MemoryTyping {
	return &MemoryTyping{
		entries: make(map[int64]map[int64]time.Time),
		now:     time.Now,
		log:     logger,
	}
}

// Set marks the user as typing until expiresAt.
func (m *MemoryTyping) Set(_ context.Context, conversationID, userID int64, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.entries[conversationID]
	if !ok {
		users = make(map[int64]time.Time)
		m.entries[conversationID] = users
	}
	users[userID] = expiresAt
	return nil
}

// Clear removes the user's typing state.
func (m *MemoryTyping) Clear(_ context.Context, conversationID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.entries[conversationID]
	if !ok {
		return nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.entries, conversationID)
	}
	return nil
}

// Active returns unexpired typing users of a conversation.
func (m *MemoryTyping) Active(_ context.Context, conversationID int64, now time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make([]int64, 0, len(m.entries[conversationID]))
	for userID, expiresAt := range m.entries[conversationID] {
		if expiresAt.After(now) {
			active = append(active, userID)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })
	return active, nil
}

// Forget drops all typing state of a conversation.
func (m *MemoryTyping) Forget(_ context.Context, conversationID int64) error {
	m.mu.Lock()
	delete(m.entries, conversationID)
	m.mu.Unlock()
	return nil
}

// Sweep removes entries expired at now and returns how many were dropped.
func (m *MemoryTyping) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for conversationID, users := range m.entries {
		for userID, expiresAt := range users {
			if !expiresAt.After(now) {
				delete(users, userID)
				removed++
			}
		}
		if len(users) == 0 {
			delete(m.entries, conversationID)
		}
	}
	return removed
}

// Run implements cron.Job.
func (m *MemoryTyping) Run() {
	if n := m.Sweep(m.now()); n > 0 && m.log != nil {
		m.log.Debug().Int("removed", n).Msg("typing sweep")
	}
}

// Sweeper runs MemoryTyping.Sweep on a cron schedule.
type Sweeper struct {
	engine *cron.Cron
}

// NewSweeper registers typing on the given cron spec, e.g. "@every 5s".
func NewSweeper(typing *MemoryTyping, spec string) (*Sweeper, error) {
	engine := cron.New()
	if _, err := engine.AddJob(spec, typing); err != nil {
		return nil, err
	}
	return &Sweeper{engine: engine}, nil
}

// Start begins running the sweep in the background.
func (s *Sweeper) Start() {
	s.engine.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.engine.Stop().Done()
}

var _ Typing = (*MemoryTyping)(nil)

package app

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	"learning-platform/internal/domain"
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// LeaderboardService ranks students by rating and pushes updates to live subscribers.
type LeaderboardService struct {
	users UserRepository
	size  int
	now   func() time.Time
	hub   *LeaderboardHub
}

func NewLeaderboardService(users UserRepository, size int) *LeaderboardService {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	return &LeaderboardService{
		users: users,
		size:  size,
		now:   time.Now,
		hub:   NewLeaderboardHub(),
	}
}

// Top returns up to limit students. Non-positive limits use the configured size.
func (s *LeaderboardService) Top(ctx context.Context, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = s.size
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	users, err := s.users.TopStudents(ctx, limit)
	if err != nil {
		return domain.Leaderboard{}, errors.Trace(err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, domain.LeaderboardEntry{UserID: u.ID, Name: u.Name, Rating: u.Rating})
	}
	return domain.Leaderboard{Entries: entries, UpdatedAt: s.now().UTC()}, nil
}

// Refresh recomputes the default-size board and publishes it.
func (s *LeaderboardService) Refresh(ctx context.Context) error {
	lb, err := s.Top(ctx, s.size)
	if err != nil {
		return errors.Trace(err)
	}
	s.hub.Publish(lb)
	return nil
}

// Subscribe returns a channel of leaderboard snapshots starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LeaderboardService) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	initial, err := s.Top(ctx, s.size)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	ch, cancel := s.hub.subscribe(initial)
	return ch, cancel, nil
}

// LeaderboardHub fans snapshots out to subscribers. Slow subscribers only
// ever see the latest snapshot.
type LeaderboardHub struct {
	mu          sync.Mutex
	subscribers map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{subscribers: make(map[chan domain.Leaderboard]struct{})}
}

// Publish delivers lb to every subscriber without blocking.
func (h *LeaderboardHub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// Subscribers is the number of live subscriptions.
func (h *LeaderboardHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *LeaderboardHub) subscribe(initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 1)
	ch <- initial

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

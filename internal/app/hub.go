package app

import (
	"sync"

	"smong-quiz-service/internal/domain"
)

// leaderboardHub fans leaderboard snapshots out to live subscribers per quiz type.
type leaderboardHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func newLeaderboardHub() *leaderboardHub {
	return &leaderboardHub{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

func (h *leaderboardHub) subscribe(quizType string, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[quizType]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[quizType] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[quizType]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, quizType)
		}
	}
	return ch, cancel
}

func (h *leaderboardHub) hasSubscribers(quizType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[quizType]) > 0
}

func (h *leaderboardHub) broadcast(quizType string, lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[quizType] {
		select {
		case ch <- lb:
		default:
			// Slow subscriber: drop the oldest snapshot so the newest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

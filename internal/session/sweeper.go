package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EvictIdleRooms destroys every room whose last activity is older than
// maxIdle and returns the number evicted. It takes the same store lock as
// mutations, so a sweep never races an operation on the room it deletes.
func (s *Store) EvictIdleRooms(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	evicted := 0
	for code, room := range s.rooms {
		if now.Sub(room.LastActivity) <= maxIdle {
			continue
		}
		for _, id := range room.order {
			s.releaseBindingsLocked(id)
			delete(s.participantRooms, id)
		}
		delete(s.rooms, code)
		evicted++
		s.logger.Info("idle room evicted",
			zap.String("room", code),
			zap.Time("lastActivity", room.LastActivity),
		)
	}
	return evicted
}

// RunSweeper evicts idle rooms on a fixed period until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdleRooms(maxIdle)
		}
	}
}

package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту команд от одного пользователя.
// На каждого пользователя свой token bucket: limit команд за window, с равномерным пополнением.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	every    rate.Limit
	burst    int
	idle     time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	rl := &RateLimiter{
		limiters: make(map[int64]*userLimiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// Close останавливает фоновую горутину очистки.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = time.Now()
	return ul.limiter.Allow()
}

// cleanup удаляет пользователей, которые молчат дольше окна: их bucket уже полон.
func (rl *RateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.idle)
			for userID, ul := range rl.limiters {
				if ul.lastSeen.Before(cutoff) {
					delete(rl.limiters, userID)
				}
			}
			rl.mu.Unlock()
		}
	}
}

package security

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter with a per-minute and a per-hour
// cap. Each identifier has its own lock; the map lock is held only for
// lookups.
type Limiter struct {
	perMinute int
	perHour   int
	now       func() time.Time

	mu      sync.RWMutex
	windows map[string]*window
}

type window struct {
	mu    sync.Mutex
	times []time.Time
	dead  bool // removed by Prune; callers must fetch a fresh window
}

// NewLimiter creates a limiter. A cap <= 0 disables that cap.
func NewLimiter(perMinute, perHour int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		now:       now,
		windows:   make(map[string]*window),
	}
}

func (l *Limiter) window(id string) *window {
	l.mu.RLock()
	w, ok := l.windows[id]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[id]; !ok {
		w = &window{}
		l.windows[id] = w
	}
	return w
}

// prune drops timestamps older than an hour. Caller holds w.mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	w.times = w.times[i:]
}

func (w *window) lastMinute(now time.Time) int {
	cutoff := now.Add(-time.Minute)
	n := 0
	for j := len(w.times) - 1; j >= 0 && w.times[j].After(cutoff); j-- {
		n++
	}
	return n
}

// Allow records an attempt for id if it is within both caps. A rejected
// attempt is not recorded.
func (l *Limiter) Allow(id string) (bool, string) {
	for {
		if ok, reason, retry := l.allow(id); !retry {
			return ok, reason
		}
	}
}

func (l *Limiter) allow(id string) (ok bool, reason string, retry bool) {
	w := l.window(id)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return false, "", true
	}

	w.prune(now)
	if l.perMinute > 0 && w.lastMinute(now) >= l.perMinute {
		return false, fmt.Sprintf("rate limit exceeded: %d requests per minute", l.perMinute), false
	}
	if l.perHour > 0 && len(w.times) >= l.perHour {
		return false, fmt.Sprintf("rate limit exceeded: %d requests per hour", l.perHour), false
	}
	w.times = append(w.times, now)
	return true, "", false
}

// Remaining reports the attempts left for id in each window.
func (l *Limiter) Remaining(id string) (perMinute, perHour int) {
	l.mu.RLock()
	w, ok := l.windows[id]
	l.mu.RUnlock()
	if !ok {
		return l.perMinute, l.perHour
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return l.perMinute - w.lastMinute(now), l.perHour - len(w.times)
}

// Prune forgets identifiers with no attempts in the last hour and returns
// how many were removed.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		w.prune(now)
		empty := len(w.times) == 0
		w.dead = empty
		w.mu.Unlock()
		if empty {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

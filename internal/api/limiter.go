package api

import "sync"

// searchLimiter caps concurrent searches per client IP and globally.
type searchLimiter struct {
	mu       sync.Mutex
	active   map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newSearchLimiter(maxPerIP, maxTotal int) *searchLimiter {
	if maxPerIP <= 0 {
		maxPerIP = 2
	}
	if maxTotal <= 0 {
		maxTotal = 64
	}
	return &searchLimiter{
		active:   make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire registers a search for ip, or reports false if a limit is reached.
func (l *searchLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.active[ip] >= l.maxPerIP {
		return false
	}
	l.active[ip]++
	l.total++
	return true
}

func (l *searchLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active[ip]--
	l.total--
	if l.active[ip] <= 0 {
		delete(l.active, ip)
	}
}

func (l *searchLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[ip]
}

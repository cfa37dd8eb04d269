package stream

import (
	"sync"
)

// Reasons returned by acquire when a stream is refused.
const (
	limitPerIP = "ip_limit"
	limitTotal = "total_limit"
)

// streamLimiter caps open trajectory streams per client IP and overall.
type streamLimiter struct {
	mu       sync.Mutex
	open     map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	return &streamLimiter{
		open:     make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire reserves a stream slot for ip. On refusal it returns false and the
// limit that was hit.
func (l *streamLimiter) acquire(ip string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false, limitTotal
	}
	if l.open[ip] >= l.maxPerIP {
		return false, limitPerIP
	}
	l.open[ip]++
	l.total++
	return true, ""
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open[ip] <= 1 {
		delete(l.open, ip)
	} else {
		l.open[ip]--
	}
	if l.total > 0 {
		l.total--
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip]
}

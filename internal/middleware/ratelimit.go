package middleware

import (
	"golang.org/x/time/rate"
)

// MessageLimiter bounds how fast a single WebSocket connection may submit
// chat messages. One limiter per connection; connections do not share budget.
type MessageLimiter struct {
	limiter *rate.Limiter
}

// NewMessageLimiter allows perMinute messages with a small burst so normal
// typing is never throttled.
func NewMessageLimiter(perMinute int) *MessageLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &MessageLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 5),
	}
}

// Allow reports whether another message may be processed now.
func (l *MessageLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Package ratelimit tracks the OpenAlex request budget and gates requests.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers (and the
// Retry-After header of 429 responses) so that a client stops sending
// requests before the service starts rejecting them.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "openalex:rate_limit:remaining"
	RedisKeyLimit          = "openalex:rate_limit:limit"
	RedisKeyResetTimestamp = "openalex:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "openalex:rate_limit:last_update"
)

// MaxStateAge is how long a recorded state is trusted. The budget is daily,
// so older state describes a window that has already reset.
const MaxStateAge = 24 * time.Hour

// Response headers carrying the request budget.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks all requests when the remaining budget falls below this value.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning applies throttling when the remaining budget falls below this value.
	RemainingThresholdWarning = 100

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 1000
)

// ThrottleDelay is the pause applied to each request in the warning range.
const ThrottleDelay = time.Second

// defaultRemaining is assumed until the service has reported a budget.
const defaultRemaining = 100000

// RateLimitState is the current OpenAlex request budget.
// With a Redis client it is shared across all client instances.
type RateLimitState struct {
	// Limit is the size of the budget window, from X-RateLimit-Limit (0 if unknown).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the budget window resets.
	// Calculated from the X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  defaultRemaining,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked until the window resets.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && s.Remaining >= RemainingThresholdCritical
}

// TimeUntilReset returns the duration until the budget resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}

package insights

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuotaExceeded = errors.New("text-generation quota exceeded")
	ErrRateLimited   = errors.New("too soon since the last text-generation call")
)

// QuotaMarkers persists the call history and cooldown between runs.
type QuotaMarkers interface {
	APICallHistory() ([]int64, error)
	SetAPICallHistory(calls []int64) error
	QuotaResetTime() (time.Time, error)
	SetQuotaResetTime(t time.Time) error
	LastAPICall() (time.Time, error)
	SetLastAPICall(t time.Time) error
}

// Limiter enforces the client-side quota: a rolling hourly budget, a minimum
// spacing between calls, and a cooldown after the budget or the server's
// quota is exhausted.
type Limiter struct {
	markers    QuotaMarkers
	now        func() time.Time
	MaxPerHour int
	MinSpacing time.Duration
	Cooldown   time.Duration
}

func NewLimiter(markers QuotaMarkers) *Limiter {
	return &Limiter{
		markers:    markers,
		now:        time.Now,
		MaxPerHour: 10,
		MinSpacing: 30 * time.Second,
		Cooldown:   30 * time.Minute,
	}
}

// Allow returns nil when a call may be made now.
func (l *Limiter) Allow() error {
	now := l.now()

	until, err := l.markers.QuotaResetTime()
	if err != nil {
		return err
	}
	if !until.IsZero() && now.Before(until) {
		return fmt.Errorf("%w: cooling down until %s", ErrQuotaExceeded, until.Format(time.Kitchen))
	}

	calls, err := l.recentCalls(now)
	if err != nil {
		return err
	}
	if len(calls) >= l.MaxPerHour {
		if err := l.TripCooldown(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d calls in the last hour", ErrQuotaExceeded, len(calls))
	}

	last, err := l.markers.LastAPICall()
	if err != nil {
		return err
	}
	if !last.IsZero() && now.Sub(last) < l.MinSpacing {
		return ErrRateLimited
	}
	return nil
}

// Record notes a successful call.
func (l *Limiter) Record() error {
	now := l.now()
	calls, err := l.recentCalls(now)
	if err != nil {
		return err
	}
	if err := l.markers.SetAPICallHistory(append(calls, now.UnixMilli())); err != nil {
		return err
	}
	return l.markers.SetLastAPICall(now)
}

// TripCooldown starts a cooldown from now.
func (l *Limiter) TripCooldown() error {
	return l.markers.SetQuotaResetTime(l.now().Add(l.Cooldown))
}

// ResetExpiredCooldown clears a cooldown whose end has passed and reports whether it did.
func (l *Limiter) ResetExpiredCooldown() (bool, error) {
	until, err := l.markers.QuotaResetTime()
	if err != nil || until.IsZero() || l.now().Before(until) {
		return false, err
	}
	return true, l.markers.SetQuotaResetTime(time.Time{})
}

// CooldownUntil returns the end of the active cooldown, zero if none.
func (l *Limiter) CooldownUntil() (time.Time, error) {
	until, err := l.markers.QuotaResetTime()
	if err != nil || until.IsZero() || !l.now().Before(until) {
		return time.Time{}, err
	}
	return until, nil
}

func (l *Limiter) recentCalls(now time.Time) ([]int64, error) {
	calls, err := l.markers.APICallHistory()
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-time.Hour).UnixMilli()
	var recent []int64
	for _, ms := range calls {
		if ms > cutoff {
			recent = append(recent, ms)
		}
	}
	return recent, nil
}

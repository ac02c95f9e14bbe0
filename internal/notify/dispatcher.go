// Package notify forwards relay events to the external push-notification
// collaborator for users who are offline. Push delivery is best-effort:
// failures are logged and never escalated to the triggering action.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultPushTimeout = 5 * time.Second

var (
	errMissingProvider = errors.New("notify: push provider required")
	errMissingPresence = errors.New("notify: presence checker required")
	errMissingLimiter  = errors.New("notify: rate limiter required")
)

// Provider performs the actual device delivery for one user.
type Provider interface {
	Send(ctx context.Context, targetUserID, title, body string, data map[string]string) error
}

// PresenceChecker reports whether a user has a live connection.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// Limiter bounds fan-out volume per user and event type.
type Limiter interface {
	Allow(userID, eventType string) bool
}

// DispatcherConfig describes dispatcher dependencies.
type DispatcherConfig struct {
	Provider    Provider
	Presence    PresenceChecker
	Limiter     Limiter
	Logger      *zap.Logger
	PushTimeout time.Duration
}

// Dispatcher decides, per event, whether a push call is warranted: online
// users already received the event on the live channel, and rate-limited
// events are dropped silently.
type Dispatcher struct {
	provider Provider
	presence PresenceChecker
	limiter  Limiter
	logger   *zap.Logger
	timeout  time.Duration
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Provider == nil {
		return nil, errMissingProvider
	}
	if cfg.Presence == nil {
		return nil, errMissingPresence
	}
	if cfg.Limiter == nil {
		return nil, errMissingLimiter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.PushTimeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &Dispatcher{
		provider: cfg.Provider,
		presence: cfg.Presence,
		limiter:  cfg.Limiter,
		logger:   logger,
		timeout:  timeout,
	}, nil
}

// Dispatch forwards the event to the push collaborator when the target is
// offline and the rate limiter permits. The payload's "title" and "body" keys
// become the notification text; remaining keys travel as data.
func (d *Dispatcher) Dispatch(ctx context.Context, targetUserID, eventType string, payload map[string]string) {
	if d.presence.IsOnline(targetUserID) {
		return
	}
	if !d.limiter.Allow(targetUserID, eventType) {
		d.logger.Debug("push suppressed by rate limit",
			zap.String("target_user_id", targetUserID),
			zap.String("event_type", eventType))
		return
	}

	title := payload["title"]
	body := payload["body"]
	data := make(map[string]string, len(payload))
	for key, value := range payload {
		if key == "title" || key == "body" {
			continue
		}
		data[key] = value
	}
	data["event_type"] = eventType

	pushCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.provider.Send(pushCtx, targetUserID, title, body, data); err != nil {
		d.logger.Warn("push delivery failed",
			zap.String("target_user_id", targetUserID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

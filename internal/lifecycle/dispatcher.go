package lifecycle

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/api"
	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
	"github.com/ovaphlow/pitchfork/client-core-go/pkg/utilities"
)

// Mailer sends one e-mail through the notification endpoint.
type Mailer interface {
	SendNotification(ctx context.Context, msg entity.Message) error
}

// Dispatcher delivers e-mails independently of each other, retrying each
// one with exponential backoff.
type Dispatcher struct {
	mailer     Mailer
	attempts   uint
	logger     *zap.SugaredLogger
	newKey     func() string
	newBackOff func() backoff.BackOff
}

func NewDispatcher(m Mailer, attempts uint, logger *zap.SugaredLogger) *Dispatcher {
	if attempts == 0 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		mailer:   m,
		attempts: attempts,
		logger:   logger,
		newKey:   utilities.NewSnowflakeID,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Deliver sends every message. A failed message does not prevent the others
// from being sent; the failures are returned combined, one
// *NotificationDeliveryError each.
func (d *Dispatcher) Deliver(ctx context.Context, msgs ...entity.Message) error {
	var errs error
	for _, msg := range msgs {
		if msg.IdempotencyKey == "" {
			msg.IdempotencyKey = d.newKey()
		}
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			err := d.mailer.SendNotification(ctx, msg)
			if err != nil && !retryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}, backoff.WithBackOff(d.newBackOff()), backoff.WithMaxTries(d.attempts))
		if err != nil {
			derr := &NotificationDeliveryError{To: msg.To, Subject: msg.Subject, Err: err}
			d.logger.Warnw("notification delivery failed", "to", msg.To, "subject", msg.Subject, "key", msg.IdempotencyKey, "err", err)
			errs = multierr.Append(errs, derr)
			continue
		}
		d.logger.Debugw("notification delivered", "to", msg.To, "key", msg.IdempotencyKey)
	}
	return errs
}

// retryable is false for client errors the server will keep rejecting.
func retryable(err error) bool {
	status := api.StatusOf(err)
	if status == 0 {
		return true
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeiCorl/mall-relay/internal/broker"
	"github.com/MeiCorl/mall-relay/internal/metrics"
	"github.com/MeiCorl/mall-relay/internal/models"
	"github.com/MeiCorl/mall-relay/internal/store"
)

// Listener is the singleton subscriber for merchant-bound traffic. Each
// notification pops one message off the work queue and routes it: online
// merchants get a direct socket push, everyone else gets an offline append.
// A fallback ticker drains the queue even when notifications are lost, so
// the pub/sub topic only has to be best-effort.
type Listener struct {
	registry     *Registry
	broker       *broker.Broker
	directory    store.Directory // optional; nil skips recipient checks
	logger       zerolog.Logger
	pollInterval time.Duration
}

// NewListener creates the bus listener. directory may be nil.
func NewListener(registry *Registry, b *broker.Broker, directory store.Directory, pollInterval time.Duration, logger zerolog.Logger) *Listener {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Listener{
		registry:     registry,
		broker:       b,
		directory:    directory,
		logger:       logger.With().Str("component", "bus-listener").Logger(),
		pollInterval: pollInterval,
	}
}

// Run subscribes and processes until ctx is cancelled. A failure on a
// single message never halts processing of subsequent messages.
func (l *Listener) Run(ctx context.Context) error {
	pubsub := l.broker.SubscribeMerchantNotify(ctx)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting started
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	notifications := pubsub.Channel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	l.logger.Info().Dur("poll_interval", l.pollInterval).Msg("bus listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("bus listener stopped")
			return ctx.Err()

		case _, ok := <-notifications:
			if !ok {
				return nil
			}
			// One notification, one pop. Popping nothing is fine: a
			// spurious wake, or an earlier tick already took it.
			l.processOne(ctx)

		case <-ticker.C:
			// Fallback poll: drain whatever notifications missed
			for l.processOne(ctx) {
			}
			l.flushOnline(ctx)
		}
	}
}

// processOne pops and routes a single merchant-bound message. Returns false
// when the queue was empty or the pop failed.
func (l *Listener) processOne(ctx context.Context) bool {
	raw, err := l.broker.PopMerchantBound(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Error().Err(err).Msg("work queue pop failed")
		}
		return false
	}
	if raw == nil {
		return false
	}

	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Malformed payloads are logged and dropped; the loop moves on.
		metrics.MessagesDropped.WithLabelValues("malformed").Inc()
		l.logger.Error().Err(err).Int("bytes", len(raw)).Msg("dropping malformed message")
		return true
	}

	l.route(ctx, &msg, raw)
	return true
}

// route resolves the recipient and delivers or queues the message. An
// unresolvable to_id is a delivery failure, never a crash.
func (l *Listener) route(ctx context.Context, msg *models.Message, raw []byte) {
	if l.directory != nil {
		exists, err := l.directory.MerchantExists(ctx, msg.ToID)
		if err != nil {
			// Directory trouble must not lose the message: queue it and
			// let the next drain decide.
			l.logger.Warn().Err(err).Int64("to_id", msg.ToID).Msg("directory lookup failed, queueing offline")
			l.queueOffline(ctx, msg, raw)
			return
		}
		if !exists {
			metrics.MessagesDropped.WithLabelValues("unknown_recipient").Inc()
			l.logger.Warn().Int64("to_id", msg.ToID).Str("msg_id", msg.ID).Msg("dropping message for unknown merchant")
			return
		}
	}

	sess, online := l.registry.Lookup(msg.ToID)
	if !online {
		l.queueOffline(ctx, msg, raw)
		return
	}

	if err := sess.Send(raw); err != nil {
		// Stale or orphaned channel (e.g. a replaced registration): a
		// delivery failure, redirected rather than dropped.
		l.logger.Warn().Err(err).Int64("to_id", msg.ToID).Str("msg_id", msg.ID).Msg("send failed, queueing offline")
		l.queueOffline(ctx, msg, raw)
		return
	}
	metrics.MessagesDelivered.Inc()
}

// flushOnline re-drains offline backlogs for merchants that are currently
// online. This covers the race where a message lands on the offline list
// just after the owning session's connect-time drain: it is delivered on
// the next tick instead of waiting for a reconnect.
func (l *Listener) flushOnline(ctx context.Context) {
	for _, id := range l.registry.OnlineIDs() {
		sess, ok := l.registry.Lookup(id)
		if !ok {
			continue
		}

		backlog, err := l.broker.DrainOffline(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Error().Err(err).Int64("merchant_id", id).Msg("offline drain failed")
			}
			continue
		}

		for i, raw := range backlog {
			if err := sess.Send(raw); err != nil {
				// Back at the head, still in order, for the next attempt.
				if qerr := l.broker.PrependOffline(ctx, id, backlog[i:]); qerr != nil {
					l.logger.Error().Err(qerr).Int64("merchant_id", id).Msg("requeue failed, messages lost")
				}
				break
			}
			metrics.OfflineBacklogFlushed.Inc()
			metrics.OfflineQueueDepth.Dec()
		}
	}
}

func (l *Listener) queueOffline(ctx context.Context, msg *models.Message, raw []byte) {
	if err := l.broker.AppendOffline(ctx, msg.ToID, raw); err != nil {
		l.logger.Error().Err(err).Int64("to_id", msg.ToID).Msg("offline append failed, message lost")
		return
	}
	metrics.MessagesQueuedOffline.Inc()
	metrics.OfflineQueueDepth.Inc()
}

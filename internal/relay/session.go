package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MeiCorl/mall-relay/internal/auth"
	"github.com/MeiCorl/mall-relay/internal/broker"
	"github.com/MeiCorl/mall-relay/internal/metrics"
)

// Hub accepts merchant socket connections and runs one session per
// connection: authenticate, register presence, flush the offline backlog,
// then pump inbound frames onto the consumer-bound queue.
type Hub struct {
	registry    *Registry
	broker      *broker.Broker
	verifier    auth.Verifier
	logger      zerolog.Logger
	cookieName  string
	sendTimeout time.Duration
	upgrader    websocket.Upgrader

	// base context for broker operations; a closing connection must not
	// cancel work already handed to the broker
	ctx context.Context
}

// NewHub creates a connection hub. ctx bounds broker operations for the
// life of the process.
func NewHub(ctx context.Context, registry *Registry, b *broker.Broker, verifier auth.Verifier, cookieName string, sendTimeout time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		registry:    registry,
		broker:      b,
		verifier:    verifier,
		logger:      logger.With().Str("component", "hub").Logger(),
		cookieName:  cookieName,
		sendTimeout: sendTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Merchant consoles connect from their own origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx: ctx,
	}
}

// Session is one live merchant connection. Writes are serialized under a
// mutex and bounded by a deadline so a stalled recipient cannot wedge the
// bus listener.
type Session struct {
	id          string
	merchantID  int64
	conn        *websocket.Conn
	writeMu     sync.Mutex
	sendTimeout time.Duration
}

// Send writes a single text frame to the merchant socket.
func (s *Session) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.sendTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.sendTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// ServeWS is the handler for the merchant socket endpoint.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	token := ""
	if c, err := r.Cookie(h.cookieName); err == nil {
		token = c.Value
	}

	merchantID, err := h.verifier.Verify(token)
	if err != nil {
		// Terminal: close with a policy violation, no registry mutation,
		// no retry. The client must reconnect with a fresh credential.
		metrics.AuthFailures.Inc()
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake rejected")
		h.closeWith(conn, websocket.ClosePolicyViolation, "unauthenticated")
		return
	}

	metrics.ConnectionsOpened.Inc()
	h.runSession(conn, merchantID)
}

// closeWith sends a close frame with the given code and closes the socket.
func (h *Hub) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.sendTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// runSession owns the connection from registration to cleanup.
func (h *Hub) runSession(conn *websocket.Conn, merchantID int64) {
	sess := &Session{
		id:          uuid.NewString(),
		merchantID:  merchantID,
		conn:        conn,
		sendTimeout: h.sendTimeout,
	}
	logger := h.logger.With().
		Str("session", sess.id).
		Int64("merchant_id", merchantID).
		Logger()

	if prev := h.registry.Register(merchantID, sess); prev != nil {
		logger.Info().Msg("replaced existing registration")
	}
	logger.Info().Msg("merchant online")

	// Cleanup runs no matter how the read loop exits. Unregister is
	// compare-and-delete: if a newer connection already replaced us it
	// stays registered.
	defer func() {
		h.registry.Unregister(merchantID, sess)
		_ = conn.Close()
		logger.Info().Msg("merchant offline")
	}()

	if err := h.flushBacklog(merchantID, sess, logger); err != nil {
		return
	}

	h.readLoop(sess, logger)
}

// flushBacklog drains the merchant's offline queue and delivers it in FIFO
// order before any new inbound traffic is accepted. The drain is a single
// atomic read+trim on the broker, so messages appended mid-drain are kept
// for the next drain or notification tick.
func (h *Hub) flushBacklog(merchantID int64, s Sender, logger zerolog.Logger) error {
	backlog, err := h.broker.DrainOffline(h.ctx, merchantID)
	if err != nil {
		logger.Error().Err(err).Msg("offline drain failed")
		return err
	}
	if len(backlog) == 0 {
		return nil
	}

	for i, raw := range backlog {
		if err := s.Send(raw); err != nil {
			// The unsent remainder goes back at the head of the list: the
			// bus listener may have redirected newer messages there already,
			// and these must stay in front of them.
			logger.Warn().Err(err).Int("remaining", len(backlog)-i).Msg("backlog flush interrupted, requeueing")
			if qerr := h.broker.PrependOffline(h.ctx, merchantID, backlog[i:]); qerr != nil {
				logger.Error().Err(qerr).Int("count", len(backlog)-i).Msg("requeue failed, messages lost")
			}
			return err
		}
		metrics.OfflineBacklogFlushed.Inc()
		metrics.OfflineQueueDepth.Dec()
	}

	logger.Info().Int("count", len(backlog)).Msg("offline backlog flushed")
	return nil
}

// readLoop forwards each inbound frame verbatim onto the consumer-bound
// queue, fire-and-forget. A socket error ends only this session.
func (h *Hub) readLoop(sess *Session, logger zerolog.Logger) {
	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("socket read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		if err := h.broker.PushConsumerBound(h.ctx, data); err != nil {
			logger.Error().Err(err).Msg("consumer-bound enqueue failed")
			continue
		}
		metrics.MessagesForwarded.WithLabelValues("consumer").Inc()
	}
}

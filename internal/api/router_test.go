package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MeiCorl/mall-relay/internal/auth"
	"github.com/MeiCorl/mall-relay/internal/broker"
	"github.com/MeiCorl/mall-relay/internal/models"
	"github.com/MeiCorl/mall-relay/internal/relay"
)

const testSecret = "router-test-secret"

type harness struct {
	broker   *broker.Broker
	registry *relay.Registry
	server   *httptest.Server
	wsURL    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.NewWithClient(client, broker.Options{
		MerchantNotifyTopic: "chat:notify:merchant",
		MerchantQueue:       "chat:queue:merchant",
		ConsumerNotifyTopic: "chat:notify:consumer",
		ConsumerQueue:       "chat:queue:consumer",
		OfflinePrefix:       "offline:",
	})
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := relay.NewRegistry()
	verifier := auth.NewJWTVerifier(testSecret)
	hub := relay.NewHub(ctx, registry, b, verifier, "x_token", 5*time.Second, zerolog.Nop())

	listener := relay.NewListener(registry, b, nil, 20*time.Millisecond, zerolog.Nop())
	go func() { _ = listener.Run(ctx) }()

	router := NewRouter(zerolog.Nop(), hub, registry, b, nil, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &harness{
		broker:   b,
		registry: registry,
		server:   srv,
		wsURL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Add("Cookie", "x_token="+token)
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func merchantToken(t *testing.T, id int64) string {
	t.Helper()
	token, err := auth.NewToken(testSecret, id, time.Hour)
	if err != nil {
		t.Fatalf("mint token failed: %v", err)
	}
	return token
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Scenario: merchant 7 is offline when the consumer sends; on connect the
// backlog is flushed as exactly one frame and the offline store is empty.
func TestOfflineMessageDeliveredOnConnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.broker.PushMerchantBound(ctx, &models.Message{
		Type:   models.MessageNormal,
		FromID: 1,
		ToID:   7,
		Body:   models.MessageBody{ContentType: models.ContentText, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}

	// The bus listener routes it to the offline queue
	waitFor(t, 2*time.Second, "offline append", func() bool {
		depth, _ := h.broker.OfflineLen(ctx, 7)
		return depth == 1
	})

	conn := h.dial(t, merchantToken(t, 7))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected backlog frame, got %v", err)
	}

	var msg models.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if msg.ToID != 7 || msg.Body.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	// Exactly one frame: the next read times out
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no further frames")
	}

	depth, _ := h.broker.OfflineLen(ctx, 7)
	if depth != 0 {
		t.Fatalf("expected empty offline store after flush, depth=%d", depth)
	}
}

// Scenario: merchant 7 is online; the message is pushed straight to the
// socket with no offline-store write.
func TestOnlineMessageDeliveredDirectly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conn := h.dial(t, merchantToken(t, 7))
	waitFor(t, 2*time.Second, "registration", func() bool {
		return h.registry.IsOnline(7)
	})

	err := h.broker.PushMerchantBound(ctx, &models.Message{
		Type:   models.MessageOrder,
		FromID: 2,
		ToID:   7,
		Body:   models.MessageBody{ContentType: models.ContentText, Content: "order update"},
	})
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected direct delivery, got %v", err)
	}

	var msg models.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if msg.Body.Content != "order update" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	depth, _ := h.broker.OfflineLen(ctx, 7)
	if depth != 0 {
		t.Fatalf("online delivery must not touch the offline store, depth=%d", depth)
	}
}

// Scenario: an expired credential closes the socket with a policy violation
// and never touches the presence registry.
func TestExpiredCredentialRejected(t *testing.T) {
	h := newHarness(t)

	expired, err := auth.NewToken(testSecret, 7, -time.Minute)
	if err != nil {
		t.Fatalf("mint token failed: %v", err)
	}

	conn := h.dial(t, expired)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected a close frame, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected close code %d, got %d", websocket.ClosePolicyViolation, closeErr.Code)
	}

	if h.registry.Count() != 0 {
		t.Fatal("failed handshake must not mutate the registry")
	}
}

func TestMissingCredentialRejected(t *testing.T) {
	h := newHarness(t)

	header := http.Header{} // no cookie at all
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

// Offline backlog is flushed in FIFO order and the store is empty after.
func TestBacklogFlushFIFO(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, content := range []string{"m1", "m2", "m3"} {
		raw, _ := json.Marshal(&models.Message{
			Type:      models.MessageNormal,
			ToID:      7,
			Body:      models.MessageBody{ContentType: models.ContentText, Content: content},
			Timestamp: time.Now().UnixMilli(),
		})
		if err := h.broker.AppendOffline(ctx, 7, raw); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	conn := h.dial(t, merchantToken(t, 7))

	for _, want := range []string{"m1", "m2", "m3"} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("expected backlog frame %q, got %v", want, err)
		}
		var msg models.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		if msg.Body.Content != want {
			t.Fatalf("out of order: expected %q, got %q", want, msg.Body.Content)
		}
	}

	depth, _ := h.broker.OfflineLen(ctx, 7)
	if depth != 0 {
		t.Fatalf("expected empty offline store after flush, depth=%d", depth)
	}
}

// Inbound frames are forwarded verbatim onto the consumer-bound queue.
func TestInboundFrameForwarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conn := h.dial(t, merchantToken(t, 7))
	waitFor(t, 2*time.Second, "registration", func() bool {
		return h.registry.IsOnline(7)
	})

	frame, _ := json.Marshal(&models.Message{
		Type:      models.MessageNormal,
		FromID:    7,
		ToID:      1001,
		Body:      models.MessageBody{ContentType: models.ContentText, Content: "your order shipped"},
		Timestamp: time.Now().UnixMilli(),
	})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var got []byte
	waitFor(t, 2*time.Second, "consumer-bound enqueue", func() bool {
		raw, err := h.broker.PopConsumerBound(ctx)
		if err != nil || raw == nil {
			return false
		}
		got = raw
		return true
	})

	if string(got) != string(frame) {
		t.Fatalf("frame was not forwarded verbatim:\n got %s\nwant %s", got, frame)
	}
}

// Presence registry holds an entry iff the merchant has a live connection.
func TestPresenceFollowsConnectionLifecycle(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t, merchantToken(t, 7))
	waitFor(t, 2*time.Second, "registration", func() bool {
		return h.registry.IsOnline(7)
	})

	resp, err := http.Get(h.server.URL + "/presence/7")
	if err != nil {
		t.Fatalf("presence request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var presence struct {
		MerchantID int64 `json:"merchant_id"`
		Online     bool  `json:"online"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&presence); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !presence.Online {
		t.Fatal("expected merchant 7 online")
	}

	_ = conn.Close()
	waitFor(t, 2*time.Second, "unregistration", func() bool {
		return !h.registry.IsOnline(7)
	})
}

// A second connection for the same merchant replaces the first; deliveries
// go to the newest socket.
func TestReconnectReplacesRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	token := merchantToken(t, 7)
	_ = h.dial(t, token)
	waitFor(t, 2*time.Second, "first registration", func() bool {
		return h.registry.IsOnline(7)
	})

	first, _ := h.registry.Lookup(7)

	conn2 := h.dial(t, token)
	// Both sockets are open; the entry must point at the newest session
	waitFor(t, 2*time.Second, "replacement", func() bool {
		cur, ok := h.registry.Lookup(7)
		return ok && cur != first
	})
	if h.registry.Count() != 1 {
		t.Fatalf("expected exactly one entry after reconnect, got %d", h.registry.Count())
	}

	err := h.broker.PushMerchantBound(ctx, &models.Message{
		ToID: 7,
		Body: models.MessageBody{ContentType: models.ContentText, Content: "after reconnect"},
	})
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}

	_ = conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn2.ReadMessage()
	if err != nil {
		t.Fatalf("expected delivery on the newest socket, got %v", err)
	}
	var msg models.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if msg.Body.Content != "after reconnect" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MeiCorl/mall-relay/internal/auth"
	"github.com/MeiCorl/mall-relay/internal/broker"
)

// flakySender delivers a fixed number of frames, then fails every send. The
// failure hook lets a test interleave broker writes at the exact moment the
// socket stalls.
type flakySender struct {
	delivered int
	capacity  int
	onFail    func()
}

func (f *flakySender) Send(data []byte) error {
	if f.delivered >= f.capacity {
		if f.onFail != nil {
			f.onFail()
			f.onFail = nil
		}
		return errors.New("stalled socket")
	}
	f.delivered++
	return nil
}

func newTestHub(t *testing.T) (*Hub, *broker.Broker) {
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

	hub := NewHub(context.Background(), NewRegistry(), b, auth.NewJWTVerifier("s"),
		"x_token", time.Second, zerolog.Nop())
	return hub, b
}

// A flush that fails partway must put the unsent remainder back at the head
// of the offline list, in front of anything the bus listener redirected
// there meanwhile, so the next flush still delivers in the original order.
func TestFlushFailureRequeuesAtHead(t *testing.T) {
	hub, b := newTestHub(t)
	ctx := context.Background()

	for _, payload := range []string{"m1", "m2"} {
		if err := b.AppendOffline(ctx, 7, []byte(payload)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	// m1 goes through; the send of m2 fails, and at that exact moment a
	// newer message is redirected onto the same list.
	sess := &flakySender{capacity: 1, onFail: func() {
		_ = b.AppendOffline(ctx, 7, []byte("m3"))
	}}

	if err := hub.flushBacklog(7, sess, zerolog.Nop()); err == nil {
		t.Fatal("expected the interrupted flush to report the send error")
	}

	got, err := b.DrainOffline(ctx, 7)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	want := []string{"m2", "m3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d queued entries, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// A flush with no failures leaves the offline list empty and reports nil.
func TestFlushDeliversWholeBacklog(t *testing.T) {
	hub, b := newTestHub(t)
	ctx := context.Background()

	for _, payload := range []string{"m1", "m2", "m3"} {
		if err := b.AppendOffline(ctx, 7, []byte(payload)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	sess := &fakeSender{}
	if err := hub.flushBacklog(7, sess, zerolog.Nop()); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if len(sess.Sent()) != 3 {
		t.Fatalf("expected 3 delivered frames, got %d", len(sess.Sent()))
	}
	depth, _ := b.OfflineLen(ctx, 7)
	if depth != 0 {
		t.Fatalf("expected empty offline list after flush, depth=%d", depth)
	}
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/domain"
)

const testPrefix = "test:events"

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Group:       "test-group",
		Consumer:    "consumer-1",
		MaxInFlight: 4,
		BlockTime:   50 * time.Millisecond,
	}
}

func seedEvent(t *testing.T, client *redis.Client, kind domain.EventKind, payload any) domain.Event {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	ev := domain.Event{
		Kind:       kind,
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Source:     "api",
		Payload:    data,
	}
	envelope, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	err = client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: StreamName(testPrefix, kind),
		Values: map[string]any{"kind": string(kind), "envelope": string(envelope)},
	}).Err()
	if err != nil {
		t.Fatalf("XAdd failed: %v", err)
	}
	return ev
}

// runConsumer starts the consumer and returns a stop function that
// cancels it and waits for Run to return.
func runConsumer(t *testing.T, c *Consumer) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Consumer did not stop")
		}
	}
}

func waitFor(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for delivery")
		return domain.Event{}
	}
}

func TestConsumer_AcknowledgesSuccessfulDelivery(t *testing.T) {
	_, client := newTestRedis(t)

	received := make(chan domain.Event, 1)
	c := NewConsumer(client, testPrefix, testWorkerConfig(), zap.NewNop())
	c.Handle(domain.VehicleCreated, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})

	stop := runConsumer(t, c)
	defer stop()

	want := seedEvent(t, client, domain.VehicleCreated, domain.Vehicle{ID: "veh-1", Placa: "ABC1D23"})
	got := waitFor(t, received)

	if got.EventID != want.EventID {
		t.Errorf("Expected event id %s, got %s", want.EventID, got.EventID)
	}

	stream := StreamName(testPrefix, domain.VehicleCreated)
	waitForAck(t, client, stream, "test-group")
}

func TestConsumer_DeadLettersFailedDelivery(t *testing.T) {
	_, client := newTestRedis(t)

	var mu sync.Mutex
	calls := 0

	c := NewConsumer(client, testPrefix, testWorkerConfig(), zap.NewNop())
	c.Handle(domain.VehicleUpdated, func(ctx context.Context, ev domain.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("downstream unavailable")
	})

	stop := runConsumer(t, c)

	seedEvent(t, client, domain.VehicleUpdated, domain.Vehicle{ID: "veh-1"})

	stream := StreamName(testPrefix, domain.VehicleUpdated)
	dead := DeadLetterStream(stream)

	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := client.XLen(context.Background(), dead).Result()
		if err == nil && n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Message never reached the dead-letter stream")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Let several more read cycles pass: a poison message must not loop.
	time.Sleep(300 * time.Millisecond)
	stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected exactly one handler invocation, got %d", calls)
	}

	waitForAck(t, client, stream, "test-group")

	entries, err := client.XRange(context.Background(), dead, "-", "+").Result()
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected one dead-letter entry, got %d (err=%v)", len(entries), err)
	}
	if entries[0].Values["error"] != "downstream unavailable" {
		t.Errorf("Expected failure cause on dead-letter entry, got %v", entries[0].Values["error"])
	}
}

func TestConsumer_DeadLettersUnhandledKind(t *testing.T) {
	_, client := newTestRedis(t)

	// Only created is handled; a deleted event has nowhere to go.
	c := NewConsumer(client, testPrefix, testWorkerConfig(), zap.NewNop())
	c.Handle(domain.VehicleCreated, func(ctx context.Context, ev domain.Event) error { return nil })

	stop := runConsumer(t, c)
	defer stop()

	seedEvent(t, client, domain.VehicleDeleted, domain.DeletedPayload{ID: "veh-1"})

	dead := DeadLetterStream(StreamName(testPrefix, domain.VehicleDeleted))
	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := client.XLen(context.Background(), dead).Result()
		if err == nil && n == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("Unhandled event never reached the dead-letter stream")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConsumer_RedeliversBacklogAfterCrash(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	cfg := testWorkerConfig()

	stream := StreamName(testPrefix, domain.VehicleCreated)
	if err := client.XGroupCreateMkStream(ctx, stream, cfg.Group, "0").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}

	want := seedEvent(t, client, domain.VehicleCreated, domain.Vehicle{ID: "veh-1"})

	// Simulate a crash: the entry is delivered to this consumer name
	// but never acknowledged.
	_, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    cfg.Group,
		Consumer: cfg.Consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
	}).Result()
	if err != nil {
		t.Fatalf("XReadGroup failed: %v", err)
	}

	received := make(chan domain.Event, 1)
	c := NewConsumer(client, testPrefix, cfg, zap.NewNop())
	c.Handle(domain.VehicleCreated, func(ctx context.Context, ev domain.Event) error {
		received <- ev
		return nil
	})

	stop := runConsumer(t, c)
	defer stop()

	got := waitFor(t, received)
	if got.EventID != want.EventID {
		t.Errorf("Expected redelivered event %s, got %s", want.EventID, got.EventID)
	}
}

func TestConsumer_BacklogEntryHandledOnce(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	cfg := testWorkerConfig()

	stream := StreamName(testPrefix, domain.VehicleCreated)
	if err := client.XGroupCreateMkStream(ctx, stream, cfg.Group, "0").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}

	seedEvent(t, client, domain.VehicleCreated, domain.Vehicle{ID: "veh-1"})

	// Deliver without acknowledging, as a crashed consumer would.
	_, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    cfg.Group,
		Consumer: cfg.Consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
	}).Result()
	if err != nil {
		t.Fatalf("XReadGroup failed: %v", err)
	}

	var mu sync.Mutex
	calls := 0
	c := NewConsumer(client, testPrefix, cfg, zap.NewNop())
	c.Handle(domain.VehicleCreated, func(ctx context.Context, ev domain.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		// Stay pending long enough for several backlog read cycles.
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	stop := runConsumer(t, c)
	waitForAck(t, client, stream, cfg.Group)
	stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected one handler invocation for the pending entry, got %d", calls)
	}
}

func TestConsumer_ReadCountTracksFreeSlots(t *testing.T) {
	c := NewConsumer(nil, testPrefix, testWorkerConfig(), zap.NewNop())

	if got := c.readCount(); got != 4 {
		t.Errorf("Expected read count 4 with all slots free, got %d", got)
	}

	c.sem <- struct{}{}
	c.sem <- struct{}{}
	if got := c.readCount(); got != 2 {
		t.Errorf("Expected read count 2 with two slots busy, got %d", got)
	}

	c.sem <- struct{}{}
	c.sem <- struct{}{}
	// Saturated: still ask for one so the blocking read can park.
	if got := c.readCount(); got != 1 {
		t.Errorf("Expected read count 1 with all slots busy, got %d", got)
	}
}

// waitForAck waits until the group has no pending entries on stream.
func waitForAck(t *testing.T, client *redis.Client, stream, group string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		pending, err := client.XPending(context.Background(), stream, group).Result()
		if err == nil && pending.Count == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Delivery never acknowledged (pending=%v, err=%v)", pending, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

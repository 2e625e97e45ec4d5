package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/events"
)

type fakeInvalidator struct {
	failFirst atomic.Bool
	calls     atomic.Int32
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls.Add(1)
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	return nil
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "place-changes" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(t *testing.T, source string) []byte {
	t.Helper()
	ev := events.NewEvent("update", source, model.Place{ID: 9, Category: model.CategoryRestaurant, Lat: 41.7, Lng: 44.8})
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func newConsumerForTest(inv Invalidator) *Consumer {
	cfg := events.Config{Brokers: []string{"x"}, Topic: "place-changes", GroupID: "g"}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), inv, "node-self")
}

func msg(off int64, v []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "place-changes", Partition: 0, Offset: off, Value: v}
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msg(10, eventBytes(t, "node-other"))
	ch <- msg(11, eventBytes(t, "node-other"))
	close(ch)

	if err := c.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if inv.calls.Load() != 2 {
		t.Fatalf("invalidations=%d want 2", inv.calls.Load())
	}
}

func TestOwnEventsAreSkipped(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	if err := c.ProcessOne(context.Background(), msg(1, eventBytes(t, "node-self"))); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if inv.calls.Load() != 0 {
		t.Fatal("own event triggered an invalidation")
	}
}

func TestRedeliveryIsDeduplicated(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	m := msg(3, eventBytes(t, "node-other"))

	for i := 0; i < 3; i++ {
		if err := c.ProcessOne(context.Background(), m); err != nil {
			t.Fatalf("ProcessOne: %v", err)
		}
	}
	if inv.calls.Load() != 1 {
		t.Fatalf("invalidations=%d want 1", inv.calls.Load())
	}
}

func TestPoisonMessagesAreSkippedAndMarked(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	s := &sess{ctx: t.Context()}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msg(1, []byte("{not json"))
	ch <- msg(2, []byte(`{"version":1,"op":"update"}`))
	close(ch)

	if err := c.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 {
		t.Fatalf("poison messages must be marked; marked=%v", s.marked)
	}
	if inv.calls.Load() != 0 {
		t.Fatal("invalid event triggered an invalidation")
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	inv := &fakeInvalidator{}
	inv.failFirst.Store(true)
	c := newConsumerForTest(inv)
	ctx := context.Background()

	m := msg(5, eventBytes(t, "node-other"))
	if err := c.ProcessOne(ctx, m); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- m
	close(ch)
	if err := c.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
	if inv.calls.Load() != 2 {
		t.Fatalf("failed event was not retried; calls=%d", inv.calls.Load())
	}
}

func TestFailureStopsClaimWithoutMarking(t *testing.T) {
	inv := &fakeInvalidator{}
	inv.failFirst.Store(true)
	c := newConsumerForTest(inv)
	s := &sess{ctx: t.Context()}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msg(1, eventBytes(t, "node-other"))
	ch <- msg(2, eventBytes(t, "node-other"))
	close(ch)

	err := c.ConsumeClaim(s, &claim{msgs: ch})
	if err == nil {
		t.Fatal("expected claim to stop on failure")
	}
	if !strings.Contains(err.Error(), "place-changes/0@1") {
		t.Fatalf("error lacks the event position: %v", err)
	}
	if len(s.marked) != 0 {
		t.Fatalf("failed message was marked: %v", s.marked)
	}
}

func TestMultiPartition_Parallel(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- msg(1, eventBytes(t, "a"))
	p0 <- msg(2, eventBytes(t, "a"))
	p1 <- &sarama.ConsumerMessage{Topic: "place-changes", Partition: 1, Offset: 1, Value: eventBytes(t, "b")}
	p1 <- &sarama.ConsumerMessage{Topic: "place-changes", Partition: 1, Offset: 2, Value: eventBytes(t, "b")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = c.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = c.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestStart_RequiresInvalidator(t *testing.T) {
	c := New(events.Config{}, nil, nil, "x")
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error without invalidator")
	}
}

func TestSetupLogsAssignment(t *testing.T) {
	c := newConsumerForTest(&fakeInvalidator{})
	if err := c.Setup(&sess{ctx: t.Context()}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := c.Cleanup(&sess{ctx: t.Context()}); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

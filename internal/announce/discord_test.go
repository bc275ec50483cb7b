package announce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/eventbus"
	"github.com/park285/cubetimer/internal/msgcat"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeSender) Send(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channelID != "chan-1" {
		return errors.New("wrong channel")
	}
	if f.fail {
		return errors.New("rate limited")
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestAnnouncesRecords(t *testing.T) {
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	sender := &fakeSender{}
	a := New(sender, "chan-1",
		WithMessages(msgs),
		WithInterval(time.Millisecond),
		WithDisplayName(func(id string) string { return "cuber:" + id }),
	)
	bus := eventbus.New[domain.RecordEvent]()
	unsub := a.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	bus.Publish(domain.RecordEvent{Kind: domain.RecordAo5, OwnerID: "42", ValueMs: 11230, FormattedValue: "11.23"})

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	got := sender.messages()
	if len(got) != 1 {
		t.Fatalf("expected one message, got %v", got)
	}
	want := "cuber:42 just set a new record. New best average of 5: 11.23"
	if got[0] != want {
		t.Fatalf("unexpected message %q", got[0])
	}

	unsub()
	bus.Publish(domain.RecordEvent{Kind: domain.RecordSingle, OwnerID: "42", FormattedValue: "9.00"})
	time.Sleep(20 * time.Millisecond)
	if n := len(sender.messages()); n != 1 {
		t.Fatalf("detached announcer must not post, got %d messages", n)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	a := New(&fakeSender{}, "chan-1")
	for i := 0; i < defaultQueue+10; i++ {
		a.Enqueue(domain.RecordEvent{Kind: domain.RecordSingle, OwnerID: "x", FormattedValue: "1.00"})
	}
	if len(a.queue) != defaultQueue {
		t.Fatalf("queue should cap at %d, got %d", defaultQueue, len(a.queue))
	}
}

func TestFallbackFormatWithoutCatalog(t *testing.T) {
	a := New(nil, "")
	got := a.format(domain.RecordEvent{Kind: domain.RecordAo12, OwnerID: "0123456789abcdef", FormattedValue: "13.37"})
	if got != "01234567: 13.37" {
		t.Fatalf("unexpected fallback %q", got)
	}
	a.send(got) // no sender: no panic
}

func TestNewDiscordValidates(t *testing.T) {
	if _, err := NewDiscord("", "chan"); err == nil {
		t.Fatalf("expected error without token")
	}
}

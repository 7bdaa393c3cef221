package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func receive[T any](t *testing.T, sub *Subscription[T], n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case v, ok := <-sub.C():
			if !ok {
				t.Fatalf("subscription closed after %d of %d events", len(out), n)
			}
			out = append(out, v)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestBroker_DeliversInOrderToEverySubscriber(t *testing.T) {
	b := NewBroker[int]()
	first := b.Subscribe()
	second := b.Subscribe()
	defer first.Close()
	defer second.Close()

	for i := 0; i < 100; i++ {
		b.Publish(i)
	}

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}

	if diff := cmp.Diff(want, receive(t, first, 100)); diff != "" {
		t.Errorf("first subscriber (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, receive(t, second, 100)); diff != "" {
		t.Errorf("second subscriber (-want +got):\n%s", diff)
	}
}

func TestBroker_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker[int]()
	slow := b.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that is not reading")
	}

	got := receive(t, slow, 10000)
	if got[0] != 0 || got[9999] != 9999 {
		t.Errorf("expected all events in order, got first=%d last=%d", got[0], got[9999])
	}
}

func TestBroker_CloseSubscription(t *testing.T) {
	b := NewBroker[string]()
	sub := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.Subscribers())
	}

	sub.Close()
	sub.Close()

	if b.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", b.Subscribers())
	}

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("channel was not closed")
	}

	b.Publish("ignored")
}

func TestBroker_CloseBroker(t *testing.T) {
	b := NewBroker[int]()
	sub := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("subscription was not closed with the broker")
	}

	late := b.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("expected subscription on a closed broker to be closed")
	}
}

func TestBroker_SubscribeRacingCloseIsClosed(t *testing.T) {
	for i := 0; i < 50; i++ {
		b := NewBroker[int]()
		subs := make(chan *Subscription[int], 8)

		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				subs <- b.Subscribe()
			}()
		}
		b.Close()
		wg.Wait()
		close(subs)

		for sub := range subs {
			select {
			case _, ok := <-sub.C():
				if ok {
					t.Fatal("expected closed channel")
				}
			case <-time.After(time.Second):
				t.Fatal("subscription outlived its broker")
			}
		}
		if n := b.Subscribers(); n != 0 {
			t.Fatalf("expected no subscribers after Close, got %d", n)
		}
	}
}

func TestConsume_StopsWithContext(t *testing.T) {
	b := NewBroker[int]()
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var seen []int
	finished := make(chan struct{})

	go func() {
		Consume(ctx, sub, func(v int) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		})
		close(finished)
	}()

	b.Publish(1)
	b.Publish(2)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 events, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after cancel")
	}

	if b.Subscribers() != 0 {
		t.Errorf("expected subscription to be released, got %d subscribers", b.Subscribers())
	}
}

package pgwire

import (
	"sync"
	"testing"
	"time"
)

func TestSubscriberDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int

	sub := newSubscriber(func(n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	defer sub.close()

	for i := 0; i < 5; i++ {
		sub.send(i)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 delivered events, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("expected in-order delivery, got %v", got)
		}
	}
}

func TestSubscriberDropsOnOverflowWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	sub := newSubscriber(func(int) { <-block })
	defer close(block)
	defer sub.close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventQueueSize*2; i++ {
			sub.send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked past the bounded queue instead of dropping")
	}
}

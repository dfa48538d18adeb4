package event

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 100; i++ {
		q.Enqueue(Event{Kind: Chat, Content: fmt.Sprintf("%d", i)})
	}
	for i := 0; i < 100; i++ {
		ev, ok := q.Dequeue()
		if !ok {
			t.Fatalf("queue closed after %d events", i)
		}
		if want := fmt.Sprintf("%d", i); ev.Content != want {
			t.Errorf("event #%d: expected content %q, got %q", i, want, ev.Content)
		}
	}
}

func TestQueuePerProducerOrder(t *testing.T) {
	q := NewQueue()
	const producers = 4
	const perProducer = 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Event{Sender: fmt.Sprintf("p%d", p), Amount: float64(i)})
			}
		}(p)
	}
	wg.Wait()
	q.Close()

	last := map[string]float64{}
	n := 0
	for {
		ev, ok := q.Dequeue()
		if !ok {
			break
		}
		n++
		if prev, seen := last[ev.Sender]; seen && ev.Amount <= prev {
			t.Fatalf("producer %s: event %v delivered after %v", ev.Sender, ev.Amount, prev)
		}
		last[ev.Sender] = ev.Amount
	}
	if n != producers*perProducer {
		t.Errorf("expected %d events, got %d", producers*perProducer, n)
	}
}

func TestQueueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	got := make(chan Event, 1)
	go func() {
		ev, _ := q.Dequeue()
		got <- ev
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(Event{Kind: Whisper, Sender: "alice"})

	select {
	case ev := <-got:
		if ev.Sender != "alice" {
			t.Errorf("expected sender alice, got %q", ev.Sender)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Event{Content: "left over"})
	q.Close()

	if ev, ok := q.Dequeue(); !ok || ev.Content != "left over" {
		t.Fatalf("expected remaining event after close, got %v %v", ev, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected closed queue to report ok=false")
	}

	// Enqueue after close is a no-op, not a panic.
	q.Enqueue(Event{})
	if _, ok := q.Dequeue(); ok {
		t.Fatal("event enqueued after close should be discarded")
	}
}

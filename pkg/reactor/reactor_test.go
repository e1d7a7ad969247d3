package reactor

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestReactor_SequentialExecution(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 10})
	reactor.Start()
	defer reactor.Stop(context.Background())

	var result []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		val := i
		reactor.Post(func() {
			result = append(result, val)
			wg.Done()
		})
	}

	wg.Wait()

	if len(result) != 5 {
		t.Fatalf("Expected result length 5, got %d", len(result))
	}

	for i, v := range result {
		if v != i {
			t.Errorf("Expected result[%d] to be %d, got %d", i, i, v)
		}
	}
}

func TestReactor_Backpressure(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 1})
	reactor.Start()
	defer reactor.Stop(context.Background())

	blocker := make(chan struct{})

	// Post a task that blocks
	err := reactor.Post(func() {
		<-blocker
	})
	if err != nil {
		t.Fatalf("Post should not have failed: %v", err)
	}

	// Post another task, which should fail with ErrBackpressure
	err = reactor.Post(func() {})
	if err != ErrBackpressure {
		t.Fatalf("Expected ErrBackpressure, got %v", err)
	}

	// Unblock the first task
	close(blocker)
}

func TestReactor_Stop(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 1})
	reactor.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := reactor.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	err := reactor.Post(func() {})
	if err != ErrStopped {
		t.Fatalf("Expected ErrStopped, got %v", err)
	}
}

func TestReactor_SetTimer(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 4})
	reactor.Start()
	defer reactor.Stop(context.Background())

	fired := make(chan struct{})
	reactor.SetTimer(10*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestReactor_SetTimer_CancelPreventsFire(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 4})
	reactor.Start()
	defer reactor.Stop(context.Background())

	fired := make(chan struct{})
	cancel := reactor.SetTimer(50*time.Millisecond, func() {
		close(fired)
	})
	cancel()

	select {
	case <-fired:
		t.Fatal("cancelled timer should not have fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReactor_SetPeriodic(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 16})
	reactor.Start()
	defer reactor.Stop(context.Background())

	var mu sync.Mutex
	count := 0
	cancel := reactor.SetPeriodic(10*time.Millisecond, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(55 * time.Millisecond)
	cancel()

	mu.Lock()
	got := count
	mu.Unlock()

	if got < 2 {
		t.Fatalf("expected periodic timer to fire at least twice, got %d", got)
	}
}

func TestReactor_PostTimeout_Backpressure(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 1})
	reactor.Start()
	defer reactor.Stop(context.Background())

	blocker := make(chan struct{})
	running := make(chan struct{})
	if err := reactor.Post(func() { close(running); <-blocker }); err != nil {
		t.Fatalf("Post should not have failed: %v", err)
	}
	<-running

	// The blocking closure has left the mailbox, so one more closure is
	// needed to fill the size-1 mailbox for the whole timeout.
	if err := reactor.Post(func() {}); err != nil {
		t.Fatalf("Post into the empty slot should not have failed: %v", err)
	}

	err := reactor.PostTimeout(20*time.Millisecond, func() {})
	if err != ErrBackpressure {
		t.Fatalf("Expected ErrBackpressure, got %v", err)
	}

	close(blocker)
}

func TestReactor_StopIsIdempotent(t *testing.T) {
	reactor := NewReactor(ReactorOptions{MailboxSize: 1})
	reactor.Start()

	ctx := context.Background()
	if err := reactor.Stop(ctx); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := reactor.Stop(ctx); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
}

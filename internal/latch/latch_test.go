package latch_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/latch"
)

func TestLatch_SetThenWaitReturnsImmediately(t *testing.T) {
	l := latch.New()
	l.Set()

	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
}

func TestLatch_WaitBlocksUntilSet(t *testing.T) {
	l := latch.New()
	done := make(chan struct{})

	go func() {
		l.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Set was called")
	case <-time.After(50 * time.Millisecond):
	}

	l.Set()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Set")
	}
}

func TestLatch_SetIsIdempotent(t *testing.T) {
	l := latch.New()
	l.Set()
	l.Set() // must not panic (double close)
	l.Wait()
}

func TestLatch_RearmRequiresAnotherSet(t *testing.T) {
	l := latch.New()
	l.Set()
	l.Wait()
	l.Rearm()

	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the rearmed latch was set")
	case <-time.After(50 * time.Millisecond):
	}

	l.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Set on rearmed latch")
	}
}

func TestLatch_ConcurrentSetIsSafe(t *testing.T) {
	l := latch.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Set()
		}()
	}
	wg.Wait()
	l.Wait()
}

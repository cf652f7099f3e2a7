package util

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	const workers = 32
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("op-1")
			counter++
			km.Unlock("op-1")
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	km.Lock("a")
	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()
	<-done // must not require "a" to be released
	km.Unlock("a")
}

func TestKeyedMutexCleansUpEntries(t *testing.T) {
	km := NewKeyedMutex()

	km.Lock("x")
	km.Unlock("x")
	km.Lock("y")
	km.Unlock("y")

	km.mu.Lock()
	remaining := len(km.entries)
	km.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("registry holds %d entries after release, want 0", remaining)
	}
}

func TestKeyedMutexReuseAfterCleanup(t *testing.T) {
	km := NewKeyedMutex()

	for i := 0; i < 3; i++ {
		km.Lock("k")
		km.Unlock("k")
	}
}

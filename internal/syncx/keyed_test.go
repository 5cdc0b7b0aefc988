package syncx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("order-1")
			defer km.Unlock("order-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("order-1")
	defer km.Unlock("order-1")

	done := make(chan struct{})
	go func() {
		km.Lock("order-2")
		km.Unlock("order-2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_EntriesEvictedAfterUse(t *testing.T) {
	km := NewKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%10))
			km.Lock(key)
			km.Unlock(key)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, km.Len())
}

func TestKeyedMutex_UnlockWithoutLockPanics(t *testing.T) {
	km := NewKeyedMutex()
	require.Panics(t, func() { km.Unlock("never-locked") })
}

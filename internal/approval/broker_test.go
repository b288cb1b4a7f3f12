package approval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessBrokerDeniesEverything(t *testing.T) {
	b := NewBroker(nil)

	approved, err := b.Confirm(context.Background(), Request{Title: "x", Message: "y"})
	assert.False(t, approved)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDenied))

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Contains(t, denied.Reason, "non-interactive")
}

func TestBrokerConfirmApproved(t *testing.T) {
	b := NewBroker(func(ctx context.Context, title, message string) (bool, error) {
		return true, nil
	})
	defer b.Close()

	approved, err := b.Confirm(context.Background(), Request{Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestBrokerConfirmTimeout(t *testing.T) {
	b := NewBroker(func(ctx context.Context, title, message string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	defer b.Close()

	approved, err := b.Confirm(context.Background(), Request{
		Title:   "t",
		Message: "m",
		Timeout: 20 * time.Millisecond,
	})
	assert.False(t, approved)
	assert.True(t, errors.Is(err, ErrTimedOut))
}

func TestBrokerSerializesPrompts(t *testing.T) {
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	b := NewBroker(func(ctx context.Context, title, message string) (bool, error) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return true, nil
	})
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			approved, err := b.Confirm(context.Background(), Request{Title: "t", Message: "m"})
			assert.NoError(t, err)
			assert.True(t, approved)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load(), "prompts must never overlap")
}

func TestBrokerRemembersApprovedPrefixes(t *testing.T) {
	b := NewBroker(nil)

	assert.False(t, b.IsRemembered("cargo build --release"))
	b.RememberApproved("cargo build")
	assert.True(t, b.IsRemembered("cargo build --release"))
	assert.False(t, b.IsRemembered("cargo test"))

	// Duplicates collapse.
	b.RememberApproved("cargo build")
	b.mu.Lock()
	assert.Len(t, b.approved, 1)
	b.mu.Unlock()
}

func TestBrokerCloseDeniesQueued(t *testing.T) {
	b := NewBroker(func(ctx context.Context, title, message string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})

	done := make(chan error, 1)
	go func() {
		_, err := b.Confirm(context.Background(), Request{Title: "t", Message: "m", Timeout: time.Minute})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrDenied))
	case <-time.After(time.Second):
		t.Fatal("Confirm did not unblock after Close")
	}
}

package isolation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProberCachesSuccess(t *testing.T) {
	var calls atomic.Int32
	p := NewProber([]string{"/bin/sh"})
	p.run = func(ctx context.Context, name string, args ...string) error {
		calls.Add(1)
		return nil
	}

	require.NoError(t, p.Check(context.Background()))
	require.NoError(t, p.Check(context.Background()))
	require.NoError(t, p.Check(context.Background()))
	assert.Equal(t, int32(1), calls.Load(), "probe must run once")
}

func TestProberCachesFailure(t *testing.T) {
	var calls atomic.Int32
	p := NewProber([]string{"/bin/sh"})
	p.run = func(ctx context.Context, name string, args ...string) error {
		calls.Add(1)
		return errors.New("exit status 127")
	}

	err1 := p.Check(context.Background())
	err2 := p.Check(context.Background())
	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.True(t, errors.Is(err1, ErrUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestProberMissingWrapper(t *testing.T) {
	p := NewProber([]string{"definitely-not-a-real-wrapper-binary"})

	err := p.Check(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Reason, "not found")
}

func TestProberUnconfigured(t *testing.T) {
	p := NewProber(nil)
	err := p.Check(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestProberPassesVersionFlag(t *testing.T) {
	var seenArgs []string
	p := NewProber([]string{"/bin/sh", "__shim"})
	p.run = func(ctx context.Context, name string, args ...string) error {
		seenArgs = args
		return nil
	}

	require.NoError(t, p.Check(context.Background()))
	assert.Equal(t, []string{"__shim", "--version"}, seenArgs)
}

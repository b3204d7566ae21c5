package emitter

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitInvokesInRegistrationOrder(t *testing.T) {
	t.Parallel()
	e := New()

	var order []int
	e.On("ping", func(args ...any) { order = append(order, 1) })
	e.On("ping", func(args ...any) { order = append(order, 2) })
	e.On("ping", func(args ...any) { order = append(order, 3) })

	require.True(t, e.Emit("ping"))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitPassesArguments(t *testing.T) {
	t.Parallel()
	e := New()

	var got []any
	e.On("status", func(args ...any) { got = args })

	e.Emit("status", "ready", 42)
	require.Len(t, got, 2)
	assert.Equal(t, "ready", got[0])
	assert.Equal(t, 42, got[1])
}

func TestEmitWithoutListeners(t *testing.T) {
	t.Parallel()
	e := New()
	assert.False(t, e.Emit("nobody-home"))
}

func TestOffRemovesByIdentity(t *testing.T) {
	t.Parallel()
	e := New()

	var removedRan, keptRan bool
	removed := func(args ...any) { removedRan = true }
	kept := func(args ...any) { keptRan = true }
	e.On("pay", removed)
	e.On("pay", kept)

	e.Off("pay", removed)
	e.Emit("pay")

	assert.False(t, removedRan, "removed handler must not run")
	assert.True(t, keptRan, "remaining handler must still run")
}

func TestOffWithDistinctClosureIsNoOp(t *testing.T) {
	t.Parallel()
	e := New()

	var calls int
	e.On("pay", func(args ...any) { calls++ })

	// A distinct closure that behaves identically does not match.
	e.Off("pay", func(args ...any) { calls++ })
	e.Emit("pay")

	assert.Equal(t, 1, calls)
}

func TestOffWithoutHandlerRemovesAll(t *testing.T) {
	t.Parallel()
	e := New()

	var calls int
	e.On("pay", func(args ...any) { calls++ })
	e.On("pay", func(args ...any) { calls++ })

	e.Off("pay")
	e.Emit("pay")

	assert.Zero(t, calls)
	assert.Zero(t, e.ListenerCount("pay"))
}

func TestOnceDoesNotReinvokeItself(t *testing.T) {
	t.Parallel()
	e := New()

	var calls int
	e.Once("retry", func(args ...any) {
		calls++
		// Re-triggering the same event during execution must not recurse:
		// the registration was removed before the handler ran.
		e.Emit("retry")
	})

	e.Emit("retry")
	assert.Equal(t, 1, calls)
	assert.Zero(t, e.ListenerCount("retry"))
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	t.Parallel()
	e := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var secondRan bool
	e.On("boom", func(args ...any) { panic("faulty UI callback") })
	e.On("boom", func(args ...any) { secondRan = true })

	require.NotPanics(t, func() {
		assert.True(t, e.Emit("boom"))
	})
	assert.True(t, secondRan, "handlers after the panicking one must still run")
}

func TestListenerCount(t *testing.T) {
	t.Parallel()
	e := New()

	fn := func(args ...any) {}
	assert.Zero(t, e.ListenerCount("x"))
	e.On("x", fn)
	e.On("x", fn)
	assert.Equal(t, 2, e.ListenerCount("x"))
	e.Off("x", fn)
	assert.Zero(t, e.ListenerCount("x"))
}

func TestRemoveAllListeners(t *testing.T) {
	t.Parallel()
	e := New()

	fn := func(args ...any) {}
	e.On("a", fn)
	e.On("b", fn)
	e.RemoveAllListeners("a")
	assert.Zero(t, e.ListenerCount("a"))
	assert.Equal(t, 1, e.ListenerCount("b"))

	e.RemoveAllListeners()
	assert.Zero(t, e.ListenerCount("b"))
}

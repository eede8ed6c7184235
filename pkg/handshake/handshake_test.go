package handshake_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/handshake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_SendAwaitsDrain(t *testing.T) {
	// Arrange
	ch := handshake.New[int]()
	ctx := context.Background()
	var recorded atomic.Int32
	sendDone := make(chan error, 1)

	// Act
	go func() { sendDone <- ch.Send(ctx, 1, true) }()

	// Assert: the sender stays blocked until the driver records the value.
	select {
	case <-sendDone:
		t.Fatal("Send returned before the value was recorded")
	case <-time.After(50 * time.Millisecond):
	}

	err := ch.Receive(ctx, time.Second, func(v int) {
		// The sender must still be blocked while we record.
		select {
		case <-sendDone:
			t.Error("sender released before record completed")
		default:
		}
		recorded.Add(int32(v))
	})
	require.NoError(t, err)

	select {
	case err := <-sendDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not return after the value was recorded")
	}
	assert.Equal(t, int32(1), recorded.Load())
}

func TestChannel_SendWithoutAwait(t *testing.T) {
	ch := handshake.New[int]()
	ctx := context.Background()

	// The first send fits in the single slot and returns immediately.
	require.NoError(t, ch.Send(ctx, 7, false))

	// A second send blocks until the slot is drained.
	second := make(chan error, 1)
	go func() { second <- ch.Send(ctx, 8, false) }()
	select {
	case <-second:
		t.Fatal("second Send should block while the slot is full")
	case <-time.After(50 * time.Millisecond):
	}

	var got []int
	require.NoError(t, ch.Receive(ctx, time.Second, func(v int) { got = append(got, v) }))
	require.NoError(t, <-second)
	require.NoError(t, ch.Receive(ctx, time.Second, func(v int) { got = append(got, v) }))
	assert.Equal(t, []int{7, 8}, got)
}

func TestChannel_ReceiveTimeout(t *testing.T) {
	ch := handshake.New[int]()
	start := time.Now()

	err := ch.Receive(context.Background(), 50*time.Millisecond, func(int) {
		t.Error("record must not be called on timeout")
	})

	assert.ErrorIs(t, err, handshake.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestChannel_ReceiveContextCancelled(t *testing.T) {
	ch := handshake.New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ch.Receive(ctx, 0, func(int) {})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannel_CloseDeliversBufferedValueFirst(t *testing.T) {
	ch := handshake.New[int]()
	ctx := context.Background()
	require.NoError(t, ch.Send(ctx, 3, false))
	ch.Close()
	ch.Close() // idempotent

	var got int
	require.NoError(t, ch.Receive(ctx, time.Second, func(v int) { got = v }))
	assert.Equal(t, 3, got)

	err := ch.Receive(ctx, time.Second, func(int) {})
	assert.ErrorIs(t, err, handshake.ErrClosed)
}

func TestChannel_SendAbandoned(t *testing.T) {
	t.Run("cancelled while awaiting drain", func(t *testing.T) {
		ch := handshake.New[int]()
		ctx, cancel := context.WithCancel(context.Background())
		sendDone := make(chan error, 1)
		go func() { sendDone <- ch.Send(ctx, 1, true) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-sendDone:
			assert.ErrorIs(t, err, handshake.ErrAbandoned)
		case <-time.After(time.Second):
			t.Fatal("Send did not return after cancellation")
		}

		// The abandoned value is discarded by the final drain.
		n := ch.DrainUnawaited(func(int) { t.Error("abandoned value must not be recorded") })
		assert.Equal(t, 0, n)
	})

	t.Run("already cancelled", func(t *testing.T) {
		ch := handshake.New[int]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, ch.Send(ctx, 1, false), handshake.ErrAbandoned)
		assert.Equal(t, 0, ch.DrainUnawaited(func(int) {}))
	})
}

func TestChannel_RecordedBeforeCancelIsNotAbandoned(t *testing.T) {
	// The driver records, then cancels; the sender must observe success.
	for i := 0; i < 50; i++ {
		ch := handshake.New[int]()
		ctx, cancel := context.WithCancel(context.Background())
		sendDone := make(chan error, 1)
		go func() { sendDone <- ch.Send(ctx, 1, true) }()

		require.NoError(t, ch.Receive(context.Background(), time.Second, func(int) {}))
		cancel()

		require.NoError(t, <-sendDone)
	}
}

func TestChannel_DrainUnawaited(t *testing.T) {
	ch := handshake.New[int]()
	require.NoError(t, ch.Send(context.Background(), 5, false))
	ch.Close()

	var got []int
	n := ch.DrainUnawaited(func(v int) { got = append(got, v) })

	assert.Equal(t, 1, n)
	assert.Equal(t, []int{5}, got)
}

package transport

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildFrame(body []byte) []byte {
	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(frame)))
	copy(frame[4:], body)
	return frame
}

func TestFramedConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := NewFramedConn(a)
	cb := NewFramedConn(b)

	frame := buildFrame([]byte("hello"))
	ca.QueueFrame(frame)

	done := make(chan struct{})
	go func() {
		require.NoError(t, ca.Send())
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := cb.Recv()
		return err == nil && cb.CanRead()
	}, time.Second, time.Millisecond)
	<-done

	require.Equal(t, 1, cb.FrameCount())
	body, ok := cb.PopFrame()
	require.True(t, ok)
	require.Equal(t, "hello", string(body))
	require.False(t, cb.CanRead())
}

func TestFramedConnStackedFrames(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := NewFramedConn(a)
	cb := NewFramedConn(b)

	ca.QueueFrame(buildFrame([]byte("one")))
	ca.QueueFrame(buildFrame([]byte("two")))

	go func() { _ = ca.Send() }()

	require.Eventually(t, func() bool {
		_, _ = cb.Recv()
		return cb.FrameCount() == 2
	}, time.Second, time.Millisecond)

	first, ok := cb.PopFrame()
	require.True(t, ok)
	require.Equal(t, "one", string(first))

	second, ok := cb.PopFrame()
	require.True(t, ok)
	require.Equal(t, "two", string(second))
}

func TestFramedConnClosedPeer(t *testing.T) {
	a, b := net.Pipe()
	cb := NewFramedConn(b)
	require.NoError(t, a.Close())

	require.Eventually(t, func() bool {
		_, err := cb.Recv()
		return err != nil
	}, time.Second, time.Millisecond)
}

func TestSelectorNonBlockingPass(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	cb := NewFramedConn(b)
	sel := NewSelector()

	rr, rw, re := sel.Select([]*FramedConn{cb}, nil, nil, false)
	require.Empty(t, rr)
	require.Empty(t, rw)
	require.Empty(t, re)
}

func TestSelectorBlocksUntilReadable(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := NewFramedConn(a)
	cb := NewFramedConn(b)
	sel := NewSelector()

	go func() {
		time.Sleep(20 * time.Millisecond)
		ca.QueueFrame(buildFrame([]byte("ping")))
		_ = ca.Send()
	}()

	rr, _, _ := sel.Select([]*FramedConn{cb}, nil, nil, true)
	require.Len(t, rr, 1)
	require.Same(t, cb, rr[0])
}

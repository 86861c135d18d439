package source

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

// fakeSocket serves queued datagrams, then times out until closed.
type fakeSocket struct {
	packets chan []byte
	closed  atomic.Bool
}

func newFakeSocket(payloads ...string) *fakeSocket {
	s := &fakeSocket{packets: make(chan []byte, len(payloads))}
	for _, p := range payloads {
		s.packets <- []byte(p)
	}
	return s
}

func (s *fakeSocket) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case p := <-s.packets:
		return copy(b, p), nil, nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil, timeoutError{}
	}
}

func (s *fakeSocket) SetReadDeadline(t time.Time) error { return nil }
func (s *fakeSocket) Close() error                      { s.closed.Store(true); return nil }

func TestListenerRun(t *testing.T) {
	t.Parallel()

	t.Run("dispatches datagrams and reports malformed ones", func(t *testing.T) {
		t.Parallel()
		sock := newFakeSocket(
			`{"type":"face_count","count":1}`,
			`this is not json`,
			`{"type":"detection","detected":true,"confidence":0.6}`,
		)
		sink := &fakeSink{}
		l := NewListener(ListenerConfig{
			Address:       ":0",
			SocketFactory: func(string, int) (UDPSocket, error) { return sock, nil },
		}, sink)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- l.Run(ctx) }()

		require.Eventually(t, func() bool {
			_, detections, counts, errs := sink.tally()
			return counts == 1 && detections == 1 && errs == 1
		}, time.Second, 5*time.Millisecond)

		cancel()
		require.NoError(t, <-done)
		assert.True(t, sock.closed.Load())

		assert.Equal(t, []int{1}, sink.counts)
		assert.True(t, sink.detections[0].Detected)
		assert.ErrorContains(t, sink.errs[0], "malformed detector message")
	})

	t.Run("socket factory failure surfaces", func(t *testing.T) {
		t.Parallel()
		l := NewListener(ListenerConfig{
			Address:       ":0",
			SocketFactory: func(string, int) (UDPSocket, error) { return nil, assert.AnError },
		}, &fakeSink{})
		assert.ErrorIs(t, l.Run(context.Background()), assert.AnError)
	})
}

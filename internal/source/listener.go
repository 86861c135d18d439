package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/overlay.studio/internal/facelog"
)

// UDPSocket abstracts the receive side of a UDP connection so tests can
// substitute an in-memory socket.
type UDPSocket interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// SocketFactory creates the listening socket. The default binds a real
// UDP socket with the requested receive buffer.
type SocketFactory func(address string, rcvBuf int) (UDPSocket, error)

func realSocketFactory(address string, rcvBuf int) (UDPSocket, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("source: resolve %q: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("source: listen %q: %w", address, err)
	}
	if rcvBuf > 0 {
		if err := conn.SetReadBuffer(rcvBuf); err != nil {
			facelog.Diagf("[Source] SetReadBuffer(%d) failed: %v", rcvBuf, err)
		}
	}
	return conn, nil
}

// ListenerConfig configures the detector feed listener.
type ListenerConfig struct {
	Address       string        // UDP bind address, e.g. ":7788"
	RcvBuf        int           // Socket receive buffer bytes, 0 = OS default
	LogInterval   time.Duration // Stats logging cadence, 0 = one minute
	SocketFactory SocketFactory // Optional, for tests
}

// Listener receives detector datagrams and dispatches them to a sink.
type Listener struct {
	cfg  ListenerConfig
	sink FrameSink

	connMu sync.Mutex
	conn   UDPSocket

	packets   uint64
	malformed uint64
}

// NewListener creates a listener; Run does the binding.
func NewListener(cfg ListenerConfig, sink FrameSink) *Listener {
	if cfg.LogInterval == 0 {
		cfg.LogInterval = time.Minute
	}
	if cfg.SocketFactory == nil {
		cfg.SocketFactory = realSocketFactory
	}
	return &Listener{cfg: cfg, sink: sink}
}

// Run binds the socket and receives until the context is cancelled.
// Malformed datagrams are counted and reported to the sink as detector
// failures; they never stop the listener.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := l.cfg.SocketFactory(l.cfg.Address, l.cfg.RcvBuf)
	if err != nil {
		return err
	}
	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	defer conn.Close()

	facelog.Opsf("[Source] Listening for detector frames on %s", l.cfg.Address)

	buf := make([]byte, 256*1024) // 468 points × 4 float fields fits comfortably
	lastLog := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Short read deadline keeps the loop responsive to cancellation.
		if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			return fmt.Errorf("source: set deadline: %w", err)
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("source: read: %w", err)
		}

		l.packets++
		m, err := Decode(buf[:n])
		if err != nil {
			l.malformed++
			l.sink.OnDetectorError(err)
			continue
		}
		Dispatch(l.sink, m)

		if time.Since(lastLog) >= l.cfg.LogInterval {
			facelog.Diagf("[Source] %d packets received, %d malformed", l.packets, l.malformed)
			lastLog = time.Now()
		}
	}
}

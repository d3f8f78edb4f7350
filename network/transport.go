package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/coder/websocket"
)

// ErrClosed is returned once a transport can no longer deliver datagrams.
var ErrClosed = errors.New("network: transport closed")

// Transport moves whole datagrams. Delivery is unreliable and unordered;
// duplicates are possible. Send is fire-and-forget.
type Transport interface {
	Send(p []byte) error
	// Receive blocks until one datagram arrives, ctx is done, or the
	// transport is closed.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

const (
	udpPollInterval = 250 * time.Millisecond
	wsWriteTimeout  = time.Second
)

// UDPTransport is a connected UDP socket.
type UDPTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// DialUDP connects a UDP socket to addr (host:port).
func DialUDP(addr string) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", addr, err)
	}
	return &UDPTransport{conn: conn, buf: make([]byte, netconfig.MaxDatagramSize*2)}, nil
}

func (t *UDPTransport) Send(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

// Receive polls with a short read deadline so ctx cancellation is noticed.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.conn.SetReadDeadline(time.Now().Add(udpPollInterval)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		n, err := t.conn.Read(t.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			// ICMP port unreachable and similar errors are transient on UDP.
			return nil, err
		}
		out := make([]byte, n)
		copy(out, t.buf[:n])
		return out, nil
	}
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// WebSocketTransport carries one datagram per binary WebSocket message.
type WebSocketTransport struct {
	conn *websocket.Conn
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", url, err)
	}
	return NewWebSocketTransport(conn), nil
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	conn.SetReadLimit(netconfig.MaxDatagramSize * 2)
	return &WebSocketTransport{conn: conn}
}

func (t *WebSocketTransport) Send(p []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageBinary, p)
}

func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A failed read leaves the connection unusable.
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if typ != websocket.MessageBinary {
			continue
		}
		return data, nil
	}
}

func (t *WebSocketTransport) Close() error {
	return t.conn.CloseNow()
}

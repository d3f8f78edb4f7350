package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/automoto/doomerang-netsync/shared/netconfig"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = time.Second

// peer is one remote endpoint. Send must be safe to call from the game loop.
type peer interface {
	Key() string
	Send(p []byte) error
}

// packet is one inbound datagram, or a notice that the peer went away.
type packet struct {
	from peer
	data []byte
	left bool
}

type udpPeer struct {
	conn *net.UDPConn
	addr *net.UDPAddr
	key  string
}

func (p *udpPeer) Key() string { return p.key }

func (p *udpPeer) Send(b []byte) error {
	_, err := p.conn.WriteToUDP(b, p.addr)
	return err
}

type wsPeer struct {
	conn *websocket.Conn
	key  string
}

func (p *wsPeer) Key() string { return p.key }

func (p *wsPeer) Send(b []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageBinary, b)
}

// enqueue hands a packet to the game loop, dropping it if the loop is behind.
func (s *Server) enqueue(pkt packet) {
	select {
	case s.inbound <- pkt:
	default:
		s.metrics.InboundDropped.Add(1)
	}
}

// leave reports a closed peer. Unlike datagrams it must not be dropped, so it
// waits for room in the queue unless the server has stopped.
func (s *Server) leave(p peer) {
	select {
	case s.inbound <- packet{from: p, left: true}:
	case <-s.stopped:
	}
}

// serveUDP reads datagrams until ctx is done.
func (s *Server) serveUDP(ctx context.Context, conn *net.UDPConn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := s.log.Named("udp")
	log.Info("listening", zap.Stringer("addr", conn.LocalAddr()))
	buf := make([]byte, netconfig.MaxDatagramSize*2)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Debug("read error", zap.Error(err))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.enqueue(packet{from: &udpPeer{conn: conn, addr: addr, key: "udp:" + addr.String()}, data: data})
	}
}

// handleWS carries one datagram per binary message for a single peer.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(netconfig.MaxDatagramSize * 2)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	p := &wsPeer{conn: conn, key: fmt.Sprintf("ws:%s#%d", r.RemoteAddr, s.wsSeq.Add(1))}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.leave(p)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		s.enqueue(packet{from: p, data: data})
	}
}

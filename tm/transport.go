package tm

import (
	"net"

	"github.com/spire-resilient-systems/spire-sub004/tmlog"
)

// Inbound is a decoded frame plus which socket it arrived on, handed from
// a reader goroutine to the event loop's dispatch channel.
type Inbound struct {
	Source string // "relay", "proxy", or "peer"
	Msg    Message
}

// UDPTransport implements Network over three real sockets: a Unix
// datagram socket to the local relay proxy, and two UDP sockets (external
// to the breaker proxy, internal to peer replicas), matching the three
// sockets §5/§6 specify. Every inbound frame is decoded by a dedicated
// reader goroutine and pushed onto Inbound so the event loop goroutine is
// the only one that ever touches replica state, preserving the
// single-threaded dispatch model of §5.
type UDPTransport struct {
	relay *net.UnixConn
	proxy *net.UDPConn
	peers *net.UDPConn

	proxyAddr *net.UDPAddr
	peerAddrs []*net.UDPAddr

	log tmlog.Logger
	out chan<- Inbound
}

// NewUDPTransport binds the three sockets and starts their reader
// goroutines, delivering decoded frames on out.
func NewUDPTransport(relayPath, externalAddr, internalAddr, proxyAddr string, peerAddrs []string, out chan<- Inbound, log tmlog.Logger) (*UDPTransport, error) {
	relayConn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: relayPath, Net: "unixgram"})
	if err != nil {
		return nil, err
	}
	extAddr, err := net.ResolveUDPAddr("udp", externalAddr)
	if err != nil {
		return nil, err
	}
	extConn, err := net.ListenUDP("udp", extAddr)
	if err != nil {
		return nil, err
	}
	intAddr, err := net.ResolveUDPAddr("udp", internalAddr)
	if err != nil {
		return nil, err
	}
	intConn, err := net.ListenUDP("udp", intAddr)
	if err != nil {
		return nil, err
	}
	pAddr, err := net.ResolveUDPAddr("udp", proxyAddr)
	if err != nil {
		return nil, err
	}

	peers := make([]*net.UDPAddr, 0, len(peerAddrs))
	for _, a := range peerAddrs {
		resolved, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			return nil, err
		}
		peers = append(peers, resolved)
	}

	t := &UDPTransport{
		relay:     relayConn,
		proxy:     extConn,
		peers:     intConn,
		proxyAddr: pAddr,
		peerAddrs: peers,
		log:       log,
		out:       out,
	}
	go t.readRelay()
	go t.readLoop(t.proxy, "proxy")
	go t.readLoop(t.peers, "peer")
	return t, nil
}

func (t *UDPTransport) readRelay() {
	buf := make([]byte, MaxFrameSize)
	for {
		n, _, err := t.relay.ReadFromUnix(buf)
		if err != nil {
			t.log.Warnf("relay socket read error: %v", err)
			return
		}
		t.decodeAndDeliver(buf[:n], "relay")
	}
}

func (t *UDPTransport) readLoop(conn *net.UDPConn, source string) {
	buf := make([]byte, MaxFrameSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.log.Warnf("%s socket read error: %v", source, err)
			return
		}
		t.decodeAndDeliver(buf[:n], source)
	}
}

func (t *UDPTransport) decodeAndDeliver(raw []byte, source string) {
	frame := make([]byte, len(raw))
	copy(frame, raw)
	msg, err := DecodeMessage(frame)
	if err != nil {
		t.log.Debugf("dropping malformed frame from %s: %v", source, err)
		return
	}
	t.out <- Inbound{Source: source, Msg: msg}
}

// SendAck forwards an ack category to the local relay proxy over the IPC
// socket.
func (t *UDPTransport) SendAck(state CBState) error {
	h := Header{Type: msgTypeForAck(state)}
	_, err := t.relay.Write(EncodeMessage(Message{Header: h}))
	return err
}

// SendToProxy unicasts m to the breaker proxy over the external overlay
// socket.
func (t *UDPTransport) SendToProxy(m Message) error {
	_, err := t.proxy.WriteToUDP(EncodeMessage(m), t.proxyAddr)
	return err
}

// Broadcast sends m to every configured peer over the internal overlay
// socket.
func (t *UDPTransport) Broadcast(m Message) error {
	buf := EncodeMessage(m)
	var firstErr error
	for _, addr := range t.peerAddrs {
		if _, err := t.peers.WriteToUDP(buf, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func msgTypeForAck(state CBState) MessageType {
	if state == CBTrip {
		return MsgSignedTripAck
	}
	return MsgSignedCloseAck
}

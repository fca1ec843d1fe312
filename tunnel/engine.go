package tunnel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/pion/stun/v2"
	"golang.org/x/sys/unix"

	"taplink/keys"
)

const (
	// Staging buffer size: a standard Ethernet frame plus nonce and box
	// overhead fits with room to spare.
	bufSize = 2048

	// Decrypted payloads shorter than a minimum Ethernet frame are control
	// traffic, not frames.
	minFrameLen = 64

	// First byte of a keepalive payload.
	keepaliveTag = 0xFE

	defaultKeepaliveInterval = 10 * time.Second

	etherTypeIPv4 = 0x0800
)

// largest Ethernet frame we can read such that nonce+box overhead still
// fits the ciphertext staging buffer
const maxFrameLen = bufSize - keys.NonceLen - keys.BoxOverhead

type datagram struct {
	data []byte // nonce ‖ ciphertext, as received
	src  netip.AddrPort
}

// Engine is the tunnel datapath between one TAP device and one UDP flow.
// All mutable state is owned by the Run loop: the feeder goroutines only
// read from the kernel and hand packets over channels, so there is no
// locking anywhere in the datapath.
type Engine struct {
	tap    Tap
	conn   *net.UDPConn
	secret keys.SharedSecret
	listen bool

	// peer is invalid until a listener accepts its first valid datagram;
	// a connector has it fixed from configuration.
	peer netip.AddrPort

	nOut Nonce // last nonce we used; advanced before every send
	nIn  Nonce // nonce of the last datagram we accepted

	biggestTried uint16 // largest datagram handed to the socket
	biggestSent  uint16 // largest the peer reports receiving from us
	biggestRcvd  uint16 // largest we received and decrypted

	keepaliveEvery time.Duration
	stunServer     *net.UDPAddr // nil unless the STUN diagnostic is enabled

	ptbuf []byte
	ctbuf []byte

	udpCh      chan datagram
	tapCh      chan []byte
	errCh      chan error
	tapStarted bool
}

type EngineOpts struct {
	Tap    Tap
	Conn   *net.UDPConn
	Listen bool
	// Peer is the configured remote for a connector. A listener leaves it
	// unset and learns its peer from the first valid datagram.
	Peer        netip.AddrPort
	SecretKey   keys.PrivateKey
	PeerKey     keys.PublicKey
	NoncePrefix uint32
	// StunServer enables the startup server-reflexive address diagnostic.
	StunServer string
}

func NewEngine(opts *EngineOpts) (*Engine, error) {
	if opts.NoncePrefix == 0 {
		return nil, errors.New("nonce prefix 0 is reserved")
	}
	if !opts.Listen && !opts.Peer.IsValid() {
		return nil, errors.New("a connector requires a peer address")
	}

	e := &Engine{
		tap:            opts.Tap,
		conn:           opts.Conn,
		secret:         keys.Precompute(opts.PeerKey, opts.SecretKey),
		listen:         opts.Listen,
		keepaliveEvery: defaultKeepaliveInterval,
		ptbuf:          make([]byte, 0, bufSize),
		ctbuf:          make([]byte, 0, bufSize),
		udpCh:          make(chan datagram, 64),
		errCh:          make(chan error, 2),
	}
	e.nOut.SetPrefix(opts.NoncePrefix)

	if !opts.Listen {
		e.peer = opts.Peer
	}

	if opts.StunServer != "" {
		addr, err := net.ResolveUDPAddr("udp4", opts.StunServer)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve stun server %s: %w", opts.StunServer, err)
		}
		e.stunServer = addr
	}

	return e, nil
}

// Run drives the tunnel until the context is cancelled or a fatal error
// occurs. It closes the TAP device and the UDP socket on the way out.
func (e *Engine) Run(ctx context.Context) error {
	defer e.conn.Close()
	defer e.tap.Close()
	defer e.logSummary()

	go e.udpReader(ctx)

	// A connector knows its peer from the start: announce ourselves so the
	// listener learns our address before any traffic needs to flow.
	if !e.listen {
		e.startTapReader(ctx)
		if err := e.sendKeepalive(0); err != nil {
			return err
		}
	}

	if e.stunServer != nil {
		e.sendStunRequest()
	}

	idle := time.NewTimer(e.keepaliveEvery)
	defer idle.Stop()

	for {
		// Drain inbound datagrams ahead of TAP traffic.
		select {
		case d := <-e.udpCh:
			if err := e.handleDatagram(ctx, d); err != nil {
				return err
			}
			e.resetIdle(idle)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case err := <-e.errCh:
			return err
		case d := <-e.udpCh:
			if err := e.handleDatagram(ctx, d); err != nil {
				return err
			}
			e.resetIdle(idle)
		case frame := <-e.tapCh:
			if err := e.handleFrame(frame); err != nil {
				return err
			}
			e.resetIdle(idle)
		case <-idle.C:
			if e.peer.IsValid() {
				if err := e.sendKeepalive(e.biggestRcvd); err != nil {
					return err
				}
			}
			idle.Reset(e.keepaliveEvery)
		}
	}
}

func (e *Engine) resetIdle(idle *time.Timer) {
	if !idle.Stop() {
		select {
		case <-idle.C:
		default:
		}
	}
	idle.Reset(e.keepaliveEvery)
}

func (e *Engine) udpReader(ctx context.Context) {
	buf := make([]byte, bufSize)
	for {
		n, src, err := e.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.fail(fmt.Errorf("udp read failed: %w", err))
			return
		}

		d := datagram{data: make([]byte, n), src: src}
		copy(d.data, buf[:n])

		select {
		case e.udpCh <- d:
		case <-ctx.Done():
			return
		}
	}
}

// startTapReader begins consuming Ethernet frames. It runs from the start
// for a connector, and only once the peer is known for a listener: until
// then there is nowhere to send a frame.
func (e *Engine) startTapReader(ctx context.Context) {
	if e.tapStarted {
		return
	}
	e.tapStarted = true
	e.tapCh = make(chan []byte, 64)

	go func() {
		buf := make([]byte, maxFrameLen)
		for {
			n, err := e.tap.Read(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
					return
				}
				e.fail(fmt.Errorf("tap read failed: %w", err))
				return
			}

			frame := make([]byte, n)
			copy(frame, buf[:n])

			select {
			case e.tapCh <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) fail(err error) {
	select {
	case e.errCh <- err:
	default:
	}
}

// handleDatagram authenticates one received datagram and either injects the
// carried frame into the TAP device or interprets it as control traffic.
// Anything that fails validation is dropped without touching any state.
func (e *Engine) handleDatagram(ctx context.Context, d datagram) error {
	if e.stunServer != nil && stun.IsMessage(d.data) {
		e.handleStun(d.data)
		return nil
	}

	if len(d.data) < keys.NonceLen {
		return nil
	}

	var nonce Nonce
	copy(nonce[:], d.data[:keys.NonceLen])

	// Replays and reordered packets never compare greater than the
	// watermark of the last accepted datagram.
	if nonce.Compare(&e.nIn) <= 0 {
		return nil
	}

	pt, ok := e.secret.Open(e.ptbuf[:0], d.data[keys.NonceLen:], nonce.raw())
	if !ok {
		return nil
	}

	e.nIn = nonce

	// A valid datagram also tells a listener where its peer currently is,
	// which silently follows IP or port changes.
	if e.listen && e.peer != d.src {
		if e.peer.IsValid() {
			log.Printf("peer moved from %s to %s", e.peer, d.src)
		} else {
			log.Printf("learned peer %s", d.src)
		}
		e.peer = d.src
		e.startTapReader(ctx)
	}

	if size := uint16(len(d.data)); size > e.biggestRcvd {
		e.biggestRcvd = size
	}

	if len(pt) >= minFrameLen {
		if _, err := e.tap.Write(pt); err != nil {
			return fmt.Errorf("tap write failed: %w", err)
		}
		return nil
	}

	if len(pt) == 3 && pt[0] == keepaliveTag {
		size := binary.BigEndian.Uint16(pt[1:3])
		if size > e.biggestSent {
			e.biggestSent = size
			log.Printf("peer reports largest datagram received: %d (largest tried: %d)", size, e.biggestTried)
		}
		return nil
	}

	// Other short payloads are ignored, leaving room for future control
	// messages.
	return nil
}

// handleFrame encrypts one Ethernet frame and transmits it to the peer.
func (e *Engine) handleFrame(frame []byte) error {
	e.nOut.Advance()

	dgram := append(e.ctbuf[:0], e.nOut[:]...)
	dgram = e.secret.Seal(dgram, frame, e.nOut.raw())

	if size := uint16(len(dgram)); size > e.biggestTried {
		e.biggestTried = size
	}

	if _, err := e.conn.WriteToUDPAddrPort(dgram, e.peer); err != nil {
		if isTransientSendErr(err) {
			e.logSendDrop(frame, err)
			return nil
		}
		return fmt.Errorf("udp send failed: %w", err)
	}
	return nil
}

// sendKeepalive emits the 3-byte control payload reporting the largest
// datagram we have received so far. Keepalives consume a nonce like any
// other datagram.
func (e *Engine) sendKeepalive(size uint16) error {
	e.nOut.Advance()

	pt := [3]byte{keepaliveTag, byte(size >> 8), byte(size)}
	dgram := append(e.ctbuf[:0], e.nOut[:]...)
	dgram = e.secret.Seal(dgram, pt[:], e.nOut.raw())

	if _, err := e.conn.WriteToUDPAddrPort(dgram, e.peer); err != nil {
		if isTransientSendErr(err) {
			log.Printf("dropping keepalive: %s", err)
			return nil
		}
		return fmt.Errorf("udp send failed: %w", err)
	}
	return nil
}

// isTransientSendErr reports whether a send failure only costs us this one
// packet. EMSGSIZE in particular is expected while the path MTU settles,
// since outgoing packets carry the don't-fragment bit.
func isTransientSendErr(err error) bool {
	return errors.Is(err, unix.EMSGSIZE) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.ENOBUFS)
}

func (e *Engine) logSummary() {
	log.Printf("tunnel stats: peer=%s tried=%d sent=%d rcvd=%d", e.peer, e.biggestTried, e.biggestSent, e.biggestRcvd)
}

// Stats is a snapshot of the engine's diagnostic counters. Only safe to
// read once Run has returned.
type Stats struct {
	Peer         netip.AddrPort
	BiggestTried uint16
	BiggestSent  uint16
	BiggestRcvd  uint16
	LastNonceOut Nonce
	LastNonceIn  Nonce
}

func (e *Engine) Stats() Stats {
	return Stats{
		Peer:         e.peer,
		BiggestTried: e.biggestTried,
		BiggestSent:  e.biggestSent,
		BiggestRcvd:  e.biggestRcvd,
		LastNonceOut: e.nOut,
		LastNonceIn:  e.nIn,
	}
}

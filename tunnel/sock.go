package tunnel

import (
	"fmt"
	"net"
	"net/netip"
)

// OpenSocket creates the tunnel's UDP socket. A listener binds the
// configured address; a connector binds the wildcard address of the same
// family and learns its local port from the kernel. Both roles use a single
// unconnected socket, since a listener must accept datagrams from a roaming
// source and reply to whatever address it last learned.
//
// Outgoing packets have the don't-fragment bit set, so a path-MTU problem
// surfaces as a send error instead of silent IP fragmentation.
func OpenSocket(listen bool, addr netip.AddrPort) (*net.UDPConn, error) {
	network := "udp6"
	if addr.Addr().Is4() {
		network = "udp4"
	}

	var laddr *net.UDPAddr
	if listen {
		laddr = net.UDPAddrFromAddrPort(addr)
	}

	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create udp socket: %w", err)
	}

	if err := setDontFragment(conn, addr.Addr().Is4()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set don't-fragment on udp socket: %w", err)
	}

	return conn, nil
}

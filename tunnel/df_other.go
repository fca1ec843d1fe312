//go:build !linux

package tunnel

import "net"

// Only Linux exposes per-socket path-MTU discovery control; elsewhere the
// datapath still works, just without DF on outgoing packets.
func setDontFragment(conn *net.UDPConn, v4 bool) error {
	return nil
}

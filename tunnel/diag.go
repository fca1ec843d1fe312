package tunnel

import (
	"encoding/binary"
	"log"

	"golang.org/x/net/ipv4"
)

const etherHeaderLen = 14

// logSendDrop names the flow inside a frame we had to drop, so oversize
// diagnostics point at the traffic that needs a smaller TAP MTU.
func (e *Engine) logSendDrop(frame []byte, err error) {
	if len(frame) >= etherHeaderLen+ipv4.HeaderLen &&
		binary.BigEndian.Uint16(frame[12:etherHeaderLen]) == etherTypeIPv4 {
		if h, perr := ipv4.ParseHeader(frame[etherHeaderLen:]); perr == nil {
			log.Printf("dropping %d-byte frame (%s -> %s): %s", len(frame), h.Src, h.Dst, err)
			return
		}
	}
	log.Printf("dropping %d-byte frame: %s", len(frame), err)
}

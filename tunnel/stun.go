package tunnel

import (
	"log"
	"net/netip"

	"github.com/pion/stun/v2"
)

// The STUN exchange is a startup diagnostic only: it logs the
// server-reflexive address of the tunnel socket so an operator can see what
// the outside world observes. It never feeds peer selection.

func (e *Engine) sendStunRequest() {
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	if _, err := e.conn.WriteTo(msg.Raw, e.stunServer); err != nil {
		log.Printf("error sending stun request: %s", err)
	}
}

func (e *Engine) handleStun(b []byte) {
	msg := &stun.Message{Raw: append([]byte{}, b...)}
	if err := msg.Decode(); err != nil {
		log.Printf("error decoding stun message: %v", err)
		return
	}

	if msg.Type != stun.BindingSuccess {
		log.Printf("invalid stun response type: %s", msg.Type.String())
		return
	}

	var xor stun.XORMappedAddress
	if err := xor.GetFrom(msg); err != nil {
		log.Printf("error getting xormappedaddr from msg: %v", err)
		return
	}

	mapped, err := netip.ParseAddrPort(xor.String())
	if err != nil {
		log.Printf("error parsing stun xor-mapped address: %v", err)
		return
	}

	log.Printf("stun: public address %s", mapped)
}

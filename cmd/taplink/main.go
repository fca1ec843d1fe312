//go:build linux

package main

import (
	"context"
	"fmt"
	"log"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"taplink/keys"
	"taplink/tunnel"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: taplink [-l] <tap-iface> </our/privkey> <address> <port> </their/pubkey> </our/noncefile>")
	os.Exit(1)
}

func main() {
	args := os.Args[1:]
	listen := false
	if len(args) > 0 && args[0] == "-l" {
		listen = true
		args = args[1:]
	}
	if len(args) != 6 {
		usage()
	}

	// The TAP interface must be created and configured beforehand; attaching
	// to it works as an ordinary user, and running unprivileged means we
	// cannot create it by mistake.
	if os.Geteuid() == 0 {
		log.Fatal("please run taplink as an ordinary user")
	}

	if err := run(listen, args); err != nil {
		log.Fatal(err)
	}
}

func run(listen bool, args []string) error {
	ifaceName, privPath, addrStr, portStr, pubPath, noncePath := args[0], args[1], args[2], args[3], args[4], args[5]

	// The address must be a literal IPv4 or IPv6 address, not a hostname.
	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addrStr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65534 {
		return fmt.Errorf("invalid port %q: expected 1..65534", portStr)
	}

	priv, err := keys.ReadPrivateKeyFile(privPath)
	if err != nil {
		return err
	}
	pub, err := keys.ReadPublicKeyFile(pubPath)
	if err != nil {
		return err
	}

	prefix, err := tunnel.NextNoncePrefix(noncePath)
	if err != nil {
		return err
	}

	tap, err := tunnel.AttachTap(ifaceName)
	if err != nil {
		return err
	}

	addrPort := netip.AddrPortFrom(addr, uint16(port))
	conn, err := tunnel.OpenSocket(listen, addrPort)
	if err != nil {
		tap.Close()
		return err
	}

	engine, err := tunnel.NewEngine(&tunnel.EngineOpts{
		Tap:         tap,
		Conn:        conn,
		Listen:      listen,
		Peer:        addrPort,
		SecretKey:   priv,
		PeerKey:     pub,
		NoncePrefix: prefix,
		StunServer:  os.Getenv("TAPLINK_STUN_SERVER"),
	})
	if err != nil {
		tap.Close()
		conn.Close()
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("tunnel up: tap=%s udp=%s listen=%v nonce-prefix=%d", tap.Name(), conn.LocalAddr(), listen, prefix)
	return engine.Run(ctx)
}

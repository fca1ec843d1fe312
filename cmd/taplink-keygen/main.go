package main

import (
	"fmt"
	"log"
	"os"

	"taplink/keys"
	"taplink/tunnel"
)

// taplink-keygen provisions one endpoint: a keypair in the key file format
// and a fresh nonce-prefix file. The secret key stays readable only by the
// owner; the public key file is what gets copied to the peer.

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: taplink-keygen <basename>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		log.Fatal(err)
	}
}

func run(base string) error {
	priv := keys.NewPrivateKey()
	pub := priv.PublicKey()

	if err := keys.WriteKeyFile(base+".sec", priv.Raw(), 0600); err != nil {
		return err
	}
	if err := keys.WriteKeyFile(base+".pub", pub.Raw(), 0644); err != nil {
		return err
	}
	if err := tunnel.InitNonceFile(base + ".nonce"); err != nil {
		return err
	}

	fmt.Printf("wrote %s.sec, %s.pub and %s.nonce\n", base, base, base)
	fmt.Printf("public key: %s\n", pub.EncodeToString())
	return nil
}

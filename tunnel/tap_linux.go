//go:build linux

package tunnel

import (
	"fmt"

	"github.com/songgao/water"
)

type linuxTap struct {
	ifce *water.Interface
}

// AttachTap opens an existing, preconfigured TAP interface by name. It does
// not create or configure interfaces: the device is expected to have been
// set up by an administrator, which also lets the tunnel run unprivileged.
func AttachTap(name string) (Tap, error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = name

	ifce, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to tap interface %s: %w", name, err)
	}

	return &linuxTap{ifce: ifce}, nil
}

func (t *linuxTap) Read(b []byte) (int, error) {
	return t.ifce.Read(b)
}

func (t *linuxTap) Write(b []byte) (int, error) {
	return t.ifce.Write(b)
}

func (t *linuxTap) Name() string {
	return t.ifce.Name()
}

func (t *linuxTap) Close() error {
	return t.ifce.Close()
}

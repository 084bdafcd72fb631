//go:build linux

package printer

import (
	"context"

	"posbridge/internal/connmgr"
)

// BluezDirectory lists and resolves devices through BlueZ.
type BluezDirectory struct {
	mgr connmgr.Mgr
}

// NewBluezDirectory wraps a connmgr instance.
func NewBluezDirectory(mgr connmgr.Mgr) *BluezDirectory {
	return &BluezDirectory{mgr: mgr}
}

func (d *BluezDirectory) BondedDevices(ctx context.Context) ([]Device, error) {
	devs, err := d.mgr.BondedDevices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(devs))
	for _, dev := range devs {
		out = append(out, Device{Name: dev.Name, Address: dev.MAC})
	}
	return out, nil
}

func (d *BluezDirectory) Resolve(ctx context.Context, address string) (Device, error) {
	dev, err := d.mgr.Resolve(ctx, address)
	if err != nil {
		return Device{}, err
	}
	return Device{Name: dev.Name, Address: dev.MAC}, nil
}

// ProfileDialer connects through a registered BlueZ SPP client profile;
// BlueZ performs the SDP lookup and hands over the RFCOMM FD.
type ProfileDialer struct {
	mgr connmgr.Mgr
}

// NewProfileDialer wraps a connmgr instance.
func NewProfileDialer(mgr connmgr.Mgr) *ProfileDialer {
	return &ProfileDialer{mgr: mgr}
}

func (d *ProfileDialer) Dial(ctx context.Context, dev Device) (Conn, error) {
	bdev, err := d.mgr.Resolve(ctx, dev.Address)
	if err != nil {
		return nil, err
	}
	fd, err := d.mgr.Connect(ctx, bdev)
	if err != nil {
		return nil, err
	}
	return newFDConn(fd, "rfcomm:"+bdev.MAC), nil
}

package connmgr

import (
	"sort"
	"strings"

	dbus "github.com/godbus/dbus/v5"
)

const (
	bluezService         = "org.bluez"
	profileInterfaceName = "org.bluez.Profile1"
	profileManagerIface  = "org.bluez.ProfileManager1"
	deviceIface          = "org.bluez.Device1"
	objManagerIface      = "org.freedesktop.DBus.ObjectManager"

	errAlreadyConnected = "org.bluez.Error.AlreadyConnected"
)

func deviceFromIfaces(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (Device, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return Device{}, false
	}
	var mac, name, alias string
	var paired, bonded bool
	if v, ok := props["Address"]; ok {
		mac, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		name, _ = v.Value().(string)
	}
	if v, ok := props["Alias"]; ok {
		alias, _ = v.Value().(string)
	}
	if v, ok := props["Paired"]; ok {
		paired, _ = v.Value().(bool)
	}
	// BlueZ >= 5.73 separates Bonded (link key stored) from Paired.
	if v, ok := props["Bonded"]; ok {
		bonded, _ = v.Value().(bool)
	}
	if mac == "" {
		mac = macFromPath(path)
	}
	if alias != "" {
		name = alias
	}
	return Device{
		Path:   string(path),
		MAC:    strings.ToUpper(mac),
		Name:   name,
		Paired: paired || bonded,
	}, true
}

func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	// Expect .../dev_XX_XX_XX_XX_XX_XX
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	mac := s[idx+5:]
	mac = strings.ReplaceAll(mac, "_", ":")
	return mac
}

// sortDevices orders by name, then address, so listings are stable.
func sortDevices(devs []Device) {
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Name != devs[j].Name {
			return devs[i].Name < devs[j].Name
		}
		return devs[i].MAC < devs[j].MAC
	})
}

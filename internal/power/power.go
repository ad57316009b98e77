// Package power probes the host's AC/battery state over D-Bus so the
// controller can clamp the encoder profile before initializing the
// encoder (component design §4.9.1).
package power

import "github.com/godbus/dbus/v5"

const (
	objectName    = "org.freedesktop.UPower"
	objectPath    = "/org/freedesktop/UPower"
	propertyIface = "org.freedesktop.UPower"
	propertyName  = "OnBattery"
)

// OnACPower reports true when the host is on mains power or the
// battery state cannot be determined — unknown is treated as AC per the
// component design ("On AC or unknown, pass the profile through
// unchanged").
func OnACPower() bool {
	onBattery, err := queryOnBattery()
	if err != nil {
		return true
	}
	return !onBattery
}

func queryOnBattery() (bool, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false, err
	}

	obj := conn.Object(objectName, dbus.ObjectPath(objectPath))
	call := obj.Call("org.freedesktop.DBus.Properties.Get", 0, propertyIface, propertyName)
	if call.Err != nil {
		return false, call.Err
	}

	var variant dbus.Variant
	if err := call.Store(&variant); err != nil {
		return false, err
	}

	onBattery, ok := variant.Value().(bool)
	if !ok {
		return false, nil
	}
	return onBattery, nil
}

// ClampFPS clamps the frame rate to 30 on battery power; unchanged on AC.
func ClampFPS(fps int, onAC bool) int {
	if onAC || fps <= 30 {
		return fps
	}
	return 30
}

// ClampBitrate clamps the target bitrate to 8Mb/s on battery power;
// unchanged on AC.
func ClampBitrate(bitrateBps int, onAC bool) int {
	const maxBatteryBitrate = 8_000_000
	if onAC || bitrateBps <= maxBatteryBitrate {
		return bitrateBps
	}
	return maxBatteryBitrate
}

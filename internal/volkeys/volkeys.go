// Package volkeys keeps the hardware volume keys away from the desktop while
// the alert volume lock is held.
package volkeys

// Linux input key codes.
const (
	KeyMute       = 113
	KeyVolumeDown = 114
	KeyVolumeUp   = 115
)

// IsVolumeKey reports whether code is one of the volume keys.
func IsVolumeKey(code uint16) bool {
	switch code {
	case KeyMute, KeyVolumeDown, KeyVolumeUp:
		return true
	}
	return false
}

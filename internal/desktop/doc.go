// Package desktop implements the alert backends for a Linux desktop session:
// notifications through org.freedesktop.Notifications, audio focus by
// pausing MPRIS players, and tone playback through an external player such
// as paplay.
package desktop

// Package alert raises critical order alerts: a looping alarm tone with
// exclusive audio focus, a persistent notification per order, and a volume
// lock that keeps the hardware volume keys from silencing the alarm.
//
// The platform pieces (audio engine, focus arbitration, notification
// server, tone catalog) are injected so the state machine stays the same on
// every backend.
package alert

import (
	"context"

	"posbridge/internal/alert/sound"
)

// FocusKind is the class of audio focus requested.
type FocusKind int

const (
	// FocusTransientExclusive silences every other player until released.
	FocusTransientExclusive FocusKind = iota
)

// Usage tags a playback so the sound server can route and prioritise it.
type Usage string

const (
	UsageAlarm Usage = "alarm"
)

// PlaybackOptions configures a playback handle at construction.
type PlaybackOptions struct {
	Loop   bool
	Volume float64 // 0..1
	Usage  Usage
}

// Playback is a prepared audio handle.
type Playback interface {
	Start() error
	Stop() error
	Release() error
}

// AudioEngine constructs playback handles. Construction fails when the
// source cannot be prepared; no audio is produced until Start.
type AudioEngine interface {
	NewPlayback(uri string, opts PlaybackOptions) (Playback, error)
}

// FocusGrant is held while audio focus is owned.
type FocusGrant interface {
	Release() error
}

// AudioFocus arbitrates the audio output between applications.
type AudioFocus interface {
	Acquire(ctx context.Context, kind FocusKind, usage Usage) (FocusGrant, error)
}

// Urgency of a notification channel.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Channel is the category a notification is posted under.
type Channel struct {
	ID          string
	Name        string
	Description string
	Urgency     Urgency
	BypassDND   bool
	Vibrate     bool
	// Silent suppresses the notification's own sound.
	Silent bool
}

// Notification is one posted alert.
type Notification struct {
	ChannelID  string
	Title      string
	Body       string
	Category   string
	Ongoing    bool // not dismissable by swipe
	FullScreen bool
	// Payload is handed back to the application when the notification is
	// activated.
	Payload map[string]string
}

// Notifier posts notifications. Notify with an id that is already showing
// replaces it in place; Cancel of an absent id is not an error.
type Notifier interface {
	CreateChannel(ch Channel) error
	Notify(id int32, n Notification) error
	Cancel(id int32) error
}

// SoundLibrary provides platform default tones and the selectable list.
type SoundLibrary interface {
	DefaultURI(kind sound.Kind) string
	Sounds() ([]sound.Sound, error)
}

package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"posbridge/internal/alert/sound"
	"posbridge/internal/cleanup"
)

// ErrNoEngine is returned when no audio engine is configured.
var ErrNoEngine = errors.New("alert: no audio engine")

// Options wires a Manager to its platform backends. Only Engine is required
// for the alarm; a nil Focus skips arbitration and a nil Notifier drops
// notifications.
type Options struct {
	Engine   AudioEngine
	Focus    AudioFocus
	Notifier Notifier
	Sounds   SoundLibrary
	Log      *slog.Logger

	// Channel overrides DefaultChannel.
	Channel *Channel
	// DefaultTitle is used when the order carries no customer name.
	DefaultTitle string
}

// Manager is the alert state machine: idle or alarm active.
type Manager struct {
	engine   AudioEngine
	focus    AudioFocus
	notifier Notifier
	sounds   SoundLibrary
	log      *slog.Logger
	channel  Channel
	title    string

	mu       sync.Mutex // guards playback and grant
	playback Playback
	grant    FocusGrant

	volumeLocked  atomic.Bool
	selectedSound atomic.Pointer[string]

	lockMu    sync.Mutex // orders flag changes with listener calls
	listenMu  sync.Mutex
	listeners []func(locked bool)

	channelMu    sync.Mutex
	channelReady bool

	previewMu sync.Mutex
	preview   Playback
}

// NewManager returns an idle manager.
func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	ch := DefaultChannel
	if opts.Channel != nil {
		ch = *opts.Channel
	}
	title := opts.DefaultTitle
	if title == "" {
		title = DefaultTitle
	}
	return &Manager{
		engine:   opts.Engine,
		focus:    opts.Focus,
		notifier: opts.Notifier,
		sounds:   opts.Sounds,
		log:      log.With("component", "alert"),
		channel:  ch,
		title:    title,
	}
}

// StartAlarm starts the looping alarm. It is a no-op while an alarm is
// already active. On any setup failure everything acquired so far is
// released, the manager stays idle and the error is returned.
func (m *Manager) StartAlarm(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playback != nil {
		return nil
	}
	if m.engine == nil {
		return ErrNoEngine
	}

	var grant FocusGrant
	if m.focus != nil {
		g, err := m.focus.Acquire(ctx, FocusTransientExclusive, UsageAlarm)
		if err != nil {
			return fmt.Errorf("alert: acquire audio focus: %w", err)
		}
		grant = g
	}

	uri := m.resolveAlarmURI()
	pb, err := m.engine.NewPlayback(uri, PlaybackOptions{Loop: true, Volume: 1.0, Usage: UsageAlarm})
	if err != nil {
		m.releaseAll(nil, grant)
		return fmt.Errorf("alert: prepare alarm %s: %w", uri, err)
	}
	if err := pb.Start(); err != nil {
		m.releaseAll(pb, grant)
		return fmt.Errorf("alert: start alarm %s: %w", uri, err)
	}

	m.playback = pb
	m.grant = grant
	m.SetVolumeLock(true)
	m.log.Info("alarm started", "uri", uri)
	return nil
}

// StopAlarm stops the alarm if one is active. Safe to call at any time.
func (m *Manager) StopAlarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	pb, grant := m.playback, m.grant
	m.playback, m.grant = nil, nil
	if pb != nil || grant != nil {
		m.releaseAll(pb, grant)
		m.log.Info("alarm stopped")
	}
	m.SetVolumeLock(false)
}

// AlarmActive reports whether the alarm is playing.
func (m *Manager) AlarmActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playback != nil
}

func (m *Manager) releaseAll(pb Playback, grant FocusGrant) {
	var steps []cleanup.Step
	if pb != nil {
		steps = append(steps,
			cleanup.Step{Name: "stop playback", Fn: pb.Stop},
			cleanup.Step{Name: "release playback", Fn: pb.Release},
		)
	}
	if grant != nil {
		steps = append(steps, cleanup.Step{Name: "abandon audio focus", Fn: grant.Release})
	}
	if err := cleanup.Run(steps...); err != nil {
		m.log.Debug("alarm teardown", "err", err)
	}
}

// resolveAlarmURI walks selected → alarm → notification → ringtone → fixed.
func (m *Manager) resolveAlarmURI() string {
	return sound.Resolve(
		func() string {
			if p := m.selectedSound.Load(); p != nil && sound.Valid(*p) {
				return *p
			}
			return ""
		},
		m.defaultTone(sound.KindAlarm),
		m.defaultTone(sound.KindNotification),
		m.defaultTone(sound.KindRingtone),
	)
}

func (m *Manager) defaultTone(kind sound.Kind) sound.Candidate {
	return func() string {
		if m.sounds == nil {
			return ""
		}
		return m.sounds.DefaultURI(kind)
	}
}

// SetVolumeLock sets the volume lock and tells listeners when it changes.
// Listeners see changes in the order they hit the flag.
func (m *Manager) SetVolumeLock(locked bool) {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if m.volumeLocked.Swap(locked) == locked {
		return
	}
	m.listenMu.Lock()
	ls := append([]func(bool){}, m.listeners...)
	m.listenMu.Unlock()
	for _, fn := range ls {
		fn(locked)
	}
}

// VolumeLocked reports whether hardware volume keys must be swallowed.
func (m *Manager) VolumeLocked() bool {
	return m.volumeLocked.Load()
}

// OnVolumeLock registers fn to be called on every lock change.
func (m *Manager) OnVolumeLock(fn func(locked bool)) {
	m.listenMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenMu.Unlock()
}

// SetAlarmSound selects the tone used by the next StartAlarm. An empty uri
// restores the platform default.
func (m *Manager) SetAlarmSound(uri string) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		m.selectedSound.Store(nil)
		return
	}
	m.selectedSound.Store(&uri)
}

// AlarmSound returns the selected tone, or "".
func (m *Manager) AlarmSound() string {
	if p := m.selectedSound.Load(); p != nil {
		return *p
	}
	return ""
}

// AvailableAlarmSounds lists "Default Alarm" followed by the catalog.
func (m *Manager) AvailableAlarmSounds() []sound.Sound {
	out := []sound.Sound{}
	if m.sounds == nil {
		return out
	}
	seen := make(map[string]bool)
	if uri := m.sounds.DefaultURI(sound.KindAlarm); uri != "" {
		out = append(out, sound.Sound{Title: "Default Alarm", URI: uri})
		seen[uri] = true
	}
	list, err := m.sounds.Sounds()
	if err != nil {
		m.log.Warn("list alarm sounds", "err", err)
	}
	for _, s := range list {
		if seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		out = append(out, s)
	}
	return out
}

// PreviewAlarmSound plays uri once, replacing any running preview.
func (m *Manager) PreviewAlarmSound(uri string) error {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()

	m.stopPreviewLocked()
	if m.engine == nil {
		return ErrNoEngine
	}
	if !sound.Valid(uri) {
		return fmt.Errorf("alert: invalid sound %q", uri)
	}
	pb, err := m.engine.NewPlayback(uri, PlaybackOptions{Volume: 1.0, Usage: UsageAlarm})
	if err != nil {
		return fmt.Errorf("alert: prepare preview %s: %w", uri, err)
	}
	if err := pb.Start(); err != nil {
		_ = pb.Release()
		return fmt.Errorf("alert: start preview %s: %w", uri, err)
	}
	m.preview = pb
	return nil
}

// StopPreview stops the running preview, if any.
func (m *Manager) StopPreview() {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()
	m.stopPreviewLocked()
}

func (m *Manager) stopPreviewLocked() {
	if m.preview == nil {
		return
	}
	pb := m.preview
	m.preview = nil
	if err := cleanup.Run(
		cleanup.Step{Name: "stop preview", Fn: pb.Stop},
		cleanup.Step{Name: "release preview", Fn: pb.Release},
	); err != nil {
		m.log.Debug("preview teardown", "err", err)
	}
}

// Close stops the alarm and any preview.
func (m *Manager) Close() {
	m.StopPreview()
	m.StopAlarm()
}

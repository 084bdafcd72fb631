package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"posbridge/internal/alert/sound"
)

type fakePlayback struct {
	mu       sync.Mutex
	uri      string
	opts     PlaybackOptions
	started  bool
	stopped  bool
	released bool
	startErr error
	stopErr  error
}

func (p *fakePlayback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	return nil
}

func (p *fakePlayback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return p.stopErr
}

func (p *fakePlayback) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	return nil
}

func (p *fakePlayback) live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.released
}

type fakeEngine struct {
	mu        sync.Mutex
	handles   []*fakePlayback
	prepErr   error
	startErr  error
	stopErr   error
	failedURI string
}

func (e *fakeEngine) NewPlayback(uri string, opts PlaybackOptions) (Playback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.prepErr != nil {
		e.failedURI = uri
		return nil, e.prepErr
	}
	pb := &fakePlayback{uri: uri, opts: opts, startErr: e.startErr, stopErr: e.stopErr}
	e.handles = append(e.handles, pb)
	return pb, nil
}

func (e *fakeEngine) live() []*fakePlayback {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*fakePlayback
	for _, h := range e.handles {
		if h.live() {
			out = append(out, h)
		}
	}
	return out
}

type fakeFocus struct {
	mu       sync.Mutex
	acquired int
	released int
	err      error
}

type fakeGrant struct{ f *fakeFocus }

func (g fakeGrant) Release() error {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	g.f.released++
	return nil
}

func (f *fakeFocus) Acquire(ctx context.Context, kind FocusKind, usage Usage) (FocusGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	return fakeGrant{f}, nil
}

func (f *fakeFocus) held() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired - f.released
}

type fakeSounds struct {
	defaults map[sound.Kind]string
	list     []sound.Sound
	err      error
}

func (s *fakeSounds) DefaultURI(kind sound.Kind) string { return s.defaults[kind] }

func (s *fakeSounds) Sounds() ([]sound.Sound, error) { return s.list, s.err }

type fixture struct {
	m      *Manager
	engine *fakeEngine
	focus  *fakeFocus
	notif  *fakeNotifier
	sounds *fakeSounds
}

func newFixture() *fixture {
	f := &fixture{
		engine: &fakeEngine{},
		focus:  &fakeFocus{},
		notif:  newFakeNotifier(),
		sounds: &fakeSounds{defaults: map[sound.Kind]string{
			sound.KindAlarm:        "file:///sounds/alarm.oga",
			sound.KindNotification: "file:///sounds/notification.oga",
			sound.KindRingtone:     "file:///sounds/ringtone.oga",
		}},
	}
	f.m = NewManager(Options{
		Engine:   f.engine,
		Focus:    f.focus,
		Notifier: f.notif,
		Sounds:   f.sounds,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func TestStartStopAlarm(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.m.StartAlarm(ctx); err != nil {
		t.Fatalf("StartAlarm: %v", err)
	}
	if !f.m.AlarmActive() || !f.m.VolumeLocked() {
		t.Fatal("alarm should be active with volume locked")
	}
	pb := f.engine.handles[0]
	if !pb.opts.Loop || pb.opts.Volume != 1.0 || pb.opts.Usage != UsageAlarm {
		t.Errorf("playback options = %+v", pb.opts)
	}
	if pb.uri != "file:///sounds/alarm.oga" {
		t.Errorf("playback uri = %s", pb.uri)
	}

	f.m.StopAlarm()
	if f.m.AlarmActive() || f.m.VolumeLocked() {
		t.Fatal("alarm should be idle with volume unlocked")
	}
	if !pb.stopped || !pb.released {
		t.Error("playback not stopped and released")
	}
	if f.focus.held() != 0 {
		t.Errorf("focus grants held = %d", f.focus.held())
	}
}

func TestDoubleStartIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := f.m.StartAlarm(ctx); err != nil {
			t.Fatalf("StartAlarm #%d: %v", i, err)
		}
	}
	if n := len(f.engine.handles); n != 1 {
		t.Fatalf("playback handles = %d, want 1", n)
	}
	if f.focus.acquired != 1 {
		t.Fatalf("focus grants = %d, want 1", f.focus.acquired)
	}
}

func TestStopAlarmIdempotent(t *testing.T) {
	f := newFixture()
	f.m.StopAlarm()
	f.m.StopAlarm()
	if f.m.VolumeLocked() {
		t.Fatal("volume locked after stop")
	}

	f.engine.stopErr = errors.New("illegal state")
	if err := f.m.StartAlarm(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.m.StopAlarm()
	if !f.engine.handles[0].released {
		t.Fatal("release must run even when stop fails")
	}
	if f.focus.held() != 0 {
		t.Fatal("focus must be abandoned even when stop fails")
	}
}

func TestStartAlarmFailureLeavesIdle(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"focus", func(f *fixture) { f.focus.err = errors.New("focus denied") }},
		{"prepare", func(f *fixture) { f.engine.prepErr = errors.New("no such file") }},
		{"start", func(f *fixture) { f.engine.startErr = errors.New("device busy") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.setup(f)
			if err := f.m.StartAlarm(context.Background()); err == nil {
				t.Fatal("StartAlarm succeeded")
			}
			if f.m.AlarmActive() || f.m.VolumeLocked() {
				t.Fatal("failed start must not enter the active state")
			}
			if f.focus.held() != 0 {
				t.Fatalf("focus grants leaked: %d", f.focus.held())
			}
			if len(f.engine.live()) != 0 {
				t.Fatal("playback leaked")
			}

			// Recovery: the next start works once the fault clears.
			f.focus.err, f.engine.prepErr, f.engine.startErr = nil, nil, nil
			if err := f.m.StartAlarm(context.Background()); err != nil {
				t.Fatalf("StartAlarm after recovery: %v", err)
			}
			if !f.m.VolumeLocked() {
				t.Fatal("volume not locked after recovery")
			}
		})
	}
}

func TestStartAlarmWithoutEngine(t *testing.T) {
	m := NewManager(Options{})
	if err := m.StartAlarm(context.Background()); !errors.Is(err, ErrNoEngine) {
		t.Fatalf("StartAlarm() = %v, want ErrNoEngine", err)
	}
	if m.VolumeLocked() {
		t.Fatal("volume locked")
	}
}

func TestVolumeLockCouplingUnderConcurrency(t *testing.T) {
	f := newFixture()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = f.m.StartAlarm(context.Background())
			} else {
				f.m.StopAlarm()
			}
		}(i)
	}
	wg.Wait()

	active := f.m.AlarmActive()
	if active != f.m.VolumeLocked() {
		t.Fatalf("active = %v but locked = %v", active, f.m.VolumeLocked())
	}
	live := len(f.engine.live())
	if (active && live != 1) || (!active && live != 0) {
		t.Fatalf("active = %v with %d live playbacks", active, live)
	}
	if (active && f.focus.held() != 1) || (!active && f.focus.held() != 0) {
		t.Fatalf("active = %v with %d focus grants", active, f.focus.held())
	}
}

func TestVolumeLockListeners(t *testing.T) {
	f := newFixture()
	var got []bool
	f.m.OnVolumeLock(func(locked bool) { got = append(got, locked) })

	f.m.SetVolumeLock(true)
	f.m.SetVolumeLock(true)
	f.m.SetVolumeLock(false)
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("listener calls = %v, want [true false]", got)
	}
}

func TestVolumeLockListenerOrderMatchesFlag(t *testing.T) {
	for run := 0; run < 200; run++ {
		f := newFixture()
		var (
			mu   sync.Mutex
			last bool
		)
		f.m.OnVolumeLock(func(locked bool) {
			if locked {
				time.Sleep(50 * time.Microsecond)
			}
			mu.Lock()
			last = locked
			mu.Unlock()
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.m.SetVolumeLock(true)
		}()
		go func() {
			defer wg.Done()
			time.Sleep(10 * time.Microsecond)
			f.m.SetVolumeLock(false)
		}()
		wg.Wait()

		mu.Lock()
		got := last
		mu.Unlock()
		if got != f.m.VolumeLocked() {
			t.Fatalf("run %d: listener saw %v, flag is %v", run, got, f.m.VolumeLocked())
		}
	}
}

func TestAlarmSoundFallbackChain(t *testing.T) {
	tests := []struct {
		name     string
		selected string
		defaults map[sound.Kind]string
		want     string
	}{
		{"selected", "file:///custom.oga", map[sound.Kind]string{sound.KindAlarm: "file:///a.oga"}, "file:///custom.oga"},
		{"invalid selection", "relative.oga", map[sound.Kind]string{sound.KindAlarm: "file:///a.oga"}, "file:///a.oga"},
		{"notification", "", map[sound.Kind]string{sound.KindNotification: "file:///n.oga", sound.KindRingtone: "file:///r.oga"}, "file:///n.oga"},
		{"ringtone", "", map[sound.Kind]string{sound.KindRingtone: "file:///r.oga"}, "file:///r.oga"},
		{"fixed", "", nil, sound.Fallback},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.sounds.defaults = tc.defaults
			f.m.SetAlarmSound(tc.selected)
			if err := f.m.StartAlarm(context.Background()); err != nil {
				t.Fatal(err)
			}
			if got := f.engine.handles[0].uri; got != tc.want {
				t.Errorf("alarm uri = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSetAlarmSoundReset(t *testing.T) {
	f := newFixture()
	f.m.SetAlarmSound(" file:///x.oga ")
	if got := f.m.AlarmSound(); got != "file:///x.oga" {
		t.Fatalf("AlarmSound() = %q", got)
	}
	f.m.SetAlarmSound("")
	if got := f.m.AlarmSound(); got != "" {
		t.Fatalf("AlarmSound() after reset = %q", got)
	}
}

func TestAvailableAlarmSounds(t *testing.T) {
	f := newFixture()
	f.sounds.list = []sound.Sound{
		{Title: "Alarm", URI: "file:///sounds/alarm.oga"},
		{Title: "Bell", URI: "file:///sounds/bell.oga"},
	}
	got := f.m.AvailableAlarmSounds()
	if len(got) != 2 || got[0].Title != "Default Alarm" || got[1].Title != "Bell" {
		t.Fatalf("AvailableAlarmSounds() = %+v", got)
	}

	empty := NewManager(Options{})
	if got := empty.AvailableAlarmSounds(); got == nil || len(got) != 0 {
		t.Fatalf("AvailableAlarmSounds() without library = %#v", got)
	}
}

func TestPreviewReplacesPrevious(t *testing.T) {
	f := newFixture()
	if err := f.m.PreviewAlarmSound("file:///sounds/a.oga"); err != nil {
		t.Fatal(err)
	}
	if err := f.m.PreviewAlarmSound("file:///sounds/b.oga"); err != nil {
		t.Fatal(err)
	}
	live := f.engine.live()
	if len(live) != 1 || live[0].uri != "file:///sounds/b.oga" {
		t.Fatalf("live previews = %d", len(live))
	}
	if live[0].opts.Loop {
		t.Error("preview must not loop")
	}
	if f.m.AlarmActive() || f.m.VolumeLocked() {
		t.Error("preview must not touch the alarm state")
	}

	f.m.StopPreview()
	f.m.StopPreview()
	if len(f.engine.live()) != 0 {
		t.Fatal("preview still playing after StopPreview")
	}
	if err := f.m.PreviewAlarmSound(""); err == nil {
		t.Fatal("PreviewAlarmSound(\"\") succeeded")
	}
}

func TestPreviewIndependentOfAlarm(t *testing.T) {
	f := newFixture()
	if err := f.m.StartAlarm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.m.PreviewAlarmSound("file:///sounds/b.oga"); err != nil {
		t.Fatal(err)
	}
	f.m.StopPreview()
	if !f.m.AlarmActive() {
		t.Fatal("StopPreview stopped the alarm")
	}
	f.m.Close()
	if len(f.engine.live()) != 0 || f.m.VolumeLocked() {
		t.Fatal("Close left audio running")
	}
}

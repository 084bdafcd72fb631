package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"posbridge/internal/alert/sound"
	"posbridge/internal/printer"
)

type fakePrinter struct {
	mu        sync.Mutex
	address   string
	connected bool
	written   [][]byte
	failWrite bool
}

func (p *fakePrinter) BondedDevices(ctx context.Context) []printer.Device {
	return []printer.Device{{Name: "Receipt", Address: "00:11:22:33:44:55"}}
}

func (p *fakePrinter) Connect(ctx context.Context, address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if address == "" {
		return false
	}
	p.address, p.connected = address, true
	return true
}

func (p *fakePrinter) Write(b []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected || p.failWrite {
		return false
	}
	p.written = append(p.written, b)
	return true
}

func (p *fakePrinter) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.address, p.connected = "", false
}

func (p *fakePrinter) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePrinter) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

type fakeAlerts struct {
	mu       sync.Mutex
	calls    []string
	active   bool
	locked   bool
	sound    string
	shown    []map[string]string
	canceled []string
	startErr error
}

func (a *fakeAlerts) record(c string) {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	a.mu.Unlock()
}

func (a *fakeAlerts) StartAlarm(ctx context.Context) error {
	a.record("start")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return a.startErr
	}
	a.active, a.locked = true, true
	return nil
}

func (a *fakeAlerts) StopAlarm() {
	a.record("stop")
	a.mu.Lock()
	a.active, a.locked = false, false
	a.mu.Unlock()
}

func (a *fakeAlerts) AlarmActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *fakeAlerts) ShowNotification(data map[string]string) error {
	a.record("show")
	a.mu.Lock()
	a.shown = append(a.shown, data)
	a.mu.Unlock()
	return nil
}

func (a *fakeAlerts) CancelNotification(id string) error {
	a.record("cancel")
	a.mu.Lock()
	a.canceled = append(a.canceled, id)
	a.mu.Unlock()
	return nil
}

func (a *fakeAlerts) SetVolumeLock(locked bool) {
	a.mu.Lock()
	a.locked = locked
	a.mu.Unlock()
}

func (a *fakeAlerts) VolumeLocked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

func (a *fakeAlerts) SetAlarmSound(uri string) {
	a.mu.Lock()
	a.sound = uri
	a.mu.Unlock()
}

func (a *fakeAlerts) AlarmSound() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sound
}

func (a *fakeAlerts) AvailableAlarmSounds() []sound.Sound {
	return []sound.Sound{{Title: "Default Alarm", URI: sound.Fallback}}
}

func (a *fakeAlerts) PreviewAlarmSound(uri string) error {
	if uri == "" {
		return errors.New("no sound")
	}
	a.record("preview")
	return nil
}

func (a *fakeAlerts) StopPreview() { a.record("stopPreview") }

func newTestService() (*Service, *fakePrinter, *fakeAlerts) {
	p, a := &fakePrinter{}, &fakeAlerts{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(p, a, nil, log), p, a
}

func call(t *testing.T, s *Service, method, args string) Response {
	t.Helper()
	req := Request{Method: method}
	if args != "" {
		req.Args = json.RawMessage(args)
	}
	return s.Dispatch(context.Background(), req)
}

func TestPrinterMethods(t *testing.T) {
	s, p, _ := newTestService()

	if r := call(t, s, "write", `{"data":"aGk="}`); r.Result != false {
		t.Fatalf("write before connect = %v", r.Result)
	}
	if r := call(t, s, "connect", `{"address":"00:11:22:33:44:55"}`); r.Result != true {
		t.Fatalf("connect = %v", r.Result)
	}
	if r := call(t, s, "write", `{"data":"aGk="}`); r.Result != true {
		t.Fatalf("write = %v", r.Result)
	}
	if string(p.written[0]) != "hi" {
		t.Fatalf("written = %q", p.written[0])
	}
	if r := call(t, s, "write", `{}`); r.Result != false {
		t.Fatalf("write without data = %v", r.Result)
	}
	if r := call(t, s, "write", `{"data":""}`); r.Result != true {
		t.Fatalf("empty write = %v", r.Result)
	}
	if r := call(t, s, "isConnected", ""); r.Result != true {
		t.Fatalf("isConnected = %v", r.Result)
	}
	st := call(t, s, "status", "").Result.(Status)
	if !st.Connected || st.Address != "00:11:22:33:44:55" {
		t.Fatalf("status = %+v", st)
	}
	if r := call(t, s, "disconnect", ""); r.Result != nil || r.Error != "" {
		t.Fatalf("disconnect = %+v", r)
	}
	if r := call(t, s, "isConnected", ""); r.Result != false {
		t.Fatalf("isConnected after disconnect = %v", r.Result)
	}
	devs := call(t, s, "getBondedDevices", "").Result.([]printer.Device)
	if len(devs) != 1 || devs[0].Address != "00:11:22:33:44:55" {
		t.Fatalf("devices = %v", devs)
	}
}

func TestMalformedArgumentsAreFailures(t *testing.T) {
	s, p, _ := newTestService()
	if r := call(t, s, "connect", `{"address":42}`); r.Result != false || r.Error != "" {
		t.Fatalf("connect = %+v", r)
	}
	if r := call(t, s, "write", `{"data":"%%%"}`); r.Result != false {
		t.Fatalf("write = %+v", r)
	}
	if p.IsConnected() {
		t.Fatal("connected on malformed request")
	}
}

func TestUnknownMethod(t *testing.T) {
	s, _, _ := newTestService()
	if r := call(t, s, "reboot", ""); r.Error != ErrNotImplemented {
		t.Fatalf("Error = %q", r.Error)
	}
}

func TestAlertMethods(t *testing.T) {
	s, _, a := newTestService()

	if r := call(t, s, "startAlarm", ""); r.Result != true {
		t.Fatalf("startAlarm = %v", r.Result)
	}
	if r := call(t, s, "isVolumeLocked", ""); r.Result != true {
		t.Fatalf("isVolumeLocked = %v", r.Result)
	}
	call(t, s, "showNotification", `{"data":{"invoice_id":"SINV-1","grand_total":12.5}}`)
	if got := a.shown[0]; got["invoice_id"] != "SINV-1" || got["grand_total"] != "12.5" {
		t.Fatalf("shown = %v", got)
	}
	call(t, s, "cancelNotification", `{"invoiceId":"SINV-1"}`)
	call(t, s, "cancelNotification", "")
	if !reflect.DeepEqual(a.canceled, []string{"SINV-1", ""}) {
		t.Fatalf("canceled = %q", a.canceled)
	}
	call(t, s, "stopAlarm", "")
	if a.AlarmActive() || a.VolumeLocked() {
		t.Fatal("alarm still active after stopAlarm")
	}

	call(t, s, "setVolumeLock", `{"locked":true}`)
	if !a.VolumeLocked() {
		t.Fatal("setVolumeLock ignored")
	}
	call(t, s, "setAlarmSound", `{"uri":"file:///tmp/a.oga"}`)
	if a.AlarmSound() != "file:///tmp/a.oga" {
		t.Fatalf("sound = %q", a.AlarmSound())
	}
	call(t, s, "setAlarmSound", `{"uri":null}`)
	if a.AlarmSound() != "" {
		t.Fatalf("sound not reset: %q", a.AlarmSound())
	}
	if r := call(t, s, "previewAlarmSound", `{"uri":""}`); r.Result != false {
		t.Fatalf("preview of nothing = %v", r.Result)
	}
	if r := call(t, s, "previewAlarmSound", `{"uri":"file:///tmp/a.oga"}`); r.Result != true {
		t.Fatalf("preview = %v", r.Result)
	}
	call(t, s, "stopPreview", "")
	if sounds := call(t, s, "getAvailableAlarmSounds", "").Result.([]sound.Sound); len(sounds) != 1 {
		t.Fatalf("sounds = %v", sounds)
	}
}

func TestStartAlarmFailureIsValue(t *testing.T) {
	s, _, a := newTestService()
	a.startErr = errors.New("focus denied")
	r := call(t, s, "startAlarm", "")
	if r.Result != false || r.Error != "" {
		t.Fatalf("startAlarm = %+v", r)
	}
}

func TestPushMapping(t *testing.T) {
	s, _, a := newTestService()

	ok := s.HandlePush(context.Background(), Push{Data: map[string]any{
		"type":          "new_invoice",
		"invoice_id":    "SINV-9",
		"customer_name": "Mona",
	}})
	if !ok {
		t.Fatal("new_invoice not handled")
	}
	if !reflect.DeepEqual(a.calls, []string{"start", "show"}) {
		t.Fatalf("calls = %v", a.calls)
	}
	if a.shown[0]["customer_name"] != "Mona" {
		t.Fatalf("shown = %v", a.shown[0])
	}

	a.calls = nil
	call(t, s, "push", `{"type":"invoice_accepted","data":{"invoice_id":"SINV-9"}}`)
	if !reflect.DeepEqual(a.calls, []string{"stop", "cancel"}) || a.canceled[0] != "SINV-9" {
		t.Fatalf("calls = %v canceled = %v", a.calls, a.canceled)
	}

	a.calls = nil
	if s.HandlePush(context.Background(), Push{Type: "invoice_paid"}) {
		t.Fatal("unknown push handled")
	}
	if len(a.calls) != 0 {
		t.Fatalf("unknown push touched alerts: %v", a.calls)
	}
}

func TestPushStartFailureStillShowsNotification(t *testing.T) {
	s, _, a := newTestService()
	a.startErr = errors.New("no engine")
	s.HandlePush(context.Background(), Push{Type: PushNewInvoice, Data: map[string]any{"invoice_id": "1"}})
	if len(a.shown) != 1 {
		t.Fatal("notification not shown after alarm failure")
	}
}

func TestConsumeLaunchPayload(t *testing.T) {
	s, _, _ := newTestService()
	if r := call(t, s, "consumeLaunchPayload", ""); r.Result != nil {
		t.Fatalf("empty store = %v", r.Result)
	}
	s.Launch().StoreStrings(map[string]string{"invoice_id": "SINV-3"})
	r := call(t, s, "consumeLaunchPayload", "")
	if got := r.Result.(map[string]string); got["invoice_id"] != "SINV-3" {
		t.Fatalf("payload = %v", got)
	}
	if r := call(t, s, "consumeLaunchPayload", ""); r.Result != nil {
		t.Fatalf("second consume = %v", r.Result)
	}
}

// Package bridge exposes the printer and alert managers to the POS
// application as named methods, and maps push events onto them.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"posbridge/internal/alert/sound"
	"posbridge/internal/printer"
)

// Printer is the printer manager surface the bridge drives.
type Printer interface {
	BondedDevices(ctx context.Context) []printer.Device
	Connect(ctx context.Context, address string) bool
	Write(p []byte) bool
	Disconnect()
	IsConnected() bool
	Address() string
}

// Alerts is the alert manager surface the bridge drives.
type Alerts interface {
	StartAlarm(ctx context.Context) error
	StopAlarm()
	AlarmActive() bool
	ShowNotification(data map[string]string) error
	CancelNotification(invoiceID string) error
	SetVolumeLock(locked bool)
	VolumeLocked() bool
	SetAlarmSound(uri string)
	AlarmSound() string
	AvailableAlarmSounds() []sound.Sound
	PreviewAlarmSound(uri string) error
	StopPreview()
}

// Request is one method call.
type Request struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Response carries the method result. Error is only set for requests the
// bridge could not route; operation failures are reported in Result.
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrNotImplemented is the Error of a response to an unknown method.
const ErrNotImplemented = "not implemented"

// Status is the result of the status method.
type Status struct {
	Connected    bool   `json:"connected"`
	Address      string `json:"address,omitempty"`
	AlarmActive  bool   `json:"alarmActive"`
	VolumeLocked bool   `json:"volumeLocked"`
	AlarmSound   string `json:"alarmSound,omitempty"`
}

// Push is an inbound push message. Type may also be carried in Data.
type Push struct {
	Type string         `json:"type,omitempty"`
	Data map[string]any `json:"data"`
}

// Push event types.
const (
	PushNewInvoice      = "new_invoice"
	PushInvoiceAccepted = "invoice_accepted"
)

// Service routes requests to the managers it was built with.
type Service struct {
	printer Printer
	alerts  Alerts
	launch  *LaunchStore
	log     *slog.Logger
}

func NewService(p Printer, a Alerts, launch *LaunchStore, log *slog.Logger) *Service {
	if launch == nil {
		launch = &LaunchStore{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{printer: p, alerts: a, launch: launch, log: log.With("component", "bridge")}
}

// Launch returns the store notification activations are recorded in.
func (s *Service) Launch() *LaunchStore { return s.launch }

type addressArgs struct {
	Address string `json:"address"`
}

type writeArgs struct {
	Data *[]byte `json:"data"`
}

type invoiceArgs struct {
	InvoiceID string `json:"invoiceId"`
}

type dataArgs struct {
	Data map[string]any `json:"data"`
}

type lockArgs struct {
	Locked bool `json:"locked"`
}

type uriArgs struct {
	URI string `json:"uri"`
}

// Dispatch runs one request. It never fails: malformed arguments are
// reported the same way as a failed operation.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	log := s.log.With("method", req.Method)
	switch req.Method {
	case "getBondedDevices":
		return Response{Result: s.printer.BondedDevices(ctx)}

	case "connect":
		var a addressArgs
		if !s.decode(log, req.Args, &a) {
			return Response{Result: false}
		}
		return Response{Result: s.printer.Connect(ctx, a.Address)}

	case "disconnect":
		s.printer.Disconnect()
		return Response{}

	case "write":
		var a writeArgs
		if !s.decode(log, req.Args, &a) || a.Data == nil {
			return Response{Result: false}
		}
		return Response{Result: s.printer.Write(*a.Data)}

	case "isConnected":
		return Response{Result: s.printer.IsConnected()}

	case "status":
		return Response{Result: s.status()}

	case "startAlarm":
		if err := s.alerts.StartAlarm(ctx); err != nil {
			log.Error("alarm not started", "err", err)
			return Response{Result: false}
		}
		return Response{Result: true}

	case "stopAlarm":
		s.alerts.StopAlarm()
		return Response{}

	case "cancelNotification":
		var a invoiceArgs
		s.decode(log, req.Args, &a)
		if err := s.alerts.CancelNotification(a.InvoiceID); err != nil {
			log.Warn("cancel notification", "err", err)
		}
		return Response{}

	case "showNotification":
		var a dataArgs
		s.decode(log, req.Args, &a)
		if err := s.alerts.ShowNotification(Flatten(a.Data)); err != nil {
			log.Warn("show notification", "err", err)
		}
		return Response{}

	case "consumeLaunchPayload":
		if p := s.launch.Consume(); p != nil {
			return Response{Result: p}
		}
		return Response{}

	case "setVolumeLock":
		var a lockArgs
		if !s.decode(log, req.Args, &a) {
			return Response{}
		}
		s.alerts.SetVolumeLock(a.Locked)
		return Response{}

	case "isVolumeLocked":
		return Response{Result: s.alerts.VolumeLocked()}

	case "setAlarmSound":
		var a uriArgs
		s.decode(log, req.Args, &a)
		s.alerts.SetAlarmSound(a.URI)
		return Response{}

	case "getAvailableAlarmSounds":
		return Response{Result: s.alerts.AvailableAlarmSounds()}

	case "previewAlarmSound":
		var a uriArgs
		if !s.decode(log, req.Args, &a) {
			return Response{Result: false}
		}
		if err := s.alerts.PreviewAlarmSound(a.URI); err != nil {
			log.Warn("preview", "uri", a.URI, "err", err)
			return Response{Result: false}
		}
		return Response{Result: true}

	case "stopPreview":
		s.alerts.StopPreview()
		return Response{}

	case "push":
		var p Push
		if !s.decode(log, req.Args, &p) {
			return Response{Result: false}
		}
		return Response{Result: s.HandlePush(ctx, p)}
	}
	return Response{Error: ErrNotImplemented}
}

// HandlePush applies a push event and reports whether its type was known.
func (s *Service) HandlePush(ctx context.Context, p Push) bool {
	data := Flatten(p.Data)
	typ := p.Type
	if typ == "" {
		typ = data["type"]
	}
	log := s.log.With("push", typ)
	switch typ {
	case PushNewInvoice:
		if err := s.alerts.StartAlarm(ctx); err != nil {
			log.Error("alarm not started", "err", err)
		}
		if err := s.alerts.ShowNotification(data); err != nil {
			log.Warn("show notification", "err", err)
		}
		return true
	case PushInvoiceAccepted:
		s.alerts.StopAlarm()
		if err := s.alerts.CancelNotification(data["invoice_id"]); err != nil {
			log.Warn("cancel notification", "err", err)
		}
		return true
	}
	log.Debug("push ignored")
	return false
}

func (s *Service) status() Status {
	st := Status{
		Connected:    s.printer.IsConnected(),
		AlarmActive:  s.alerts.AlarmActive(),
		VolumeLocked: s.alerts.VolumeLocked(),
		AlarmSound:   s.alerts.AlarmSound(),
	}
	if st.Connected {
		st.Address = s.printer.Address()
	}
	return st
}

func (s *Service) decode(log *slog.Logger, raw json.RawMessage, v any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn("bad arguments", "err", err)
		return false
	}
	return true
}

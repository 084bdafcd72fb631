//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"posbridge/internal/alert"
	"posbridge/internal/alert/sound"
	"posbridge/internal/bridge"
	"posbridge/internal/cleanup"
	"posbridge/internal/config"
	"posbridge/internal/connmgr"
	"posbridge/internal/desktop"
	"posbridge/internal/logger"
	"posbridge/internal/printer"
	"posbridge/internal/volkeys"
)

// loadConfig reads the config file and applies flag overrides over it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("socket") {
		cfg.Socket = socketPath
	}
	if flags.Changed("push-listen") {
		cfg.PushListen = pushListen
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, logger.ParseLevel(cfg.Log.Level), cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var teardown cleanup.Stack
	defer teardown.Unwind()

	bt := connmgr.New()
	teardown.Push(func() {
		if err := bt.Close(); err != nil {
			log.Warn("close bluez", "err", err)
		}
	})
	dialer, err := newDialer(cfg.Printer, bt)
	if err != nil {
		return err
	}
	printers := printer.NewManager(printer.NewBluezDirectory(bt), dialer, log)
	teardown.Push(printers.Disconnect)

	launch := &bridge.LaunchStore{}
	alerts := newAlerts(cfg.Alert, launch, log, &teardown)
	teardown.Push(alerts.Close)

	svc := bridge.NewService(printers, alerts, launch, log)
	ln, err := bridge.Listen(cfg.Socket)
	if err != nil {
		return err
	}

	if cfg.PushListen != "" {
		srv := &http.Server{
			Addr:              cfg.PushListen,
			Handler:           svc.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("push webhook listening", "addr", cfg.PushListen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("push webhook", "err", err)
			}
		}()
		teardown.Push(func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
	}

	err = svc.Serve(ctx, ln)
	log.Info("shutting down")
	return err
}

func newDialer(cfg config.Printer, bt connmgr.Mgr) (printer.Dialer, error) {
	switch cfg.Dialer {
	case config.DialerProfile:
		return printer.NewProfileDialer(bt), nil
	case config.DialerSocket:
		return printer.SocketDialer{Channel: cfg.Channel}, nil
	case config.DialerTTY:
		return printer.TTYDialer{Path: cfg.TTY, BaudRate: cfg.BaudRate}, nil
	}
	return nil, fmt.Errorf("unknown printer dialer %q", cfg.Dialer)
}

// newAlerts wires the alert manager to the desktop session. Without a
// session bus the alarm still sounds, but there is no notification and no
// focus arbitration.
func newAlerts(cfg config.Alert, launch *bridge.LaunchStore, log *slog.Logger, teardown *cleanup.Stack) *alert.Manager {
	opts := alert.Options{
		Engine: desktop.NewPlayer(cfg.Player, cfg.PlayerArgs, log),
		Sounds: sound.NewCatalog(cfg.SoundDirs...),
		Log:    log,
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		log.Warn("no session bus, notifications disabled", "err", err)
	} else {
		teardown.Push(func() { session.Close() })
		opts.Focus = desktop.NewMPRISFocus(session, log)
		notifier, err := desktop.NewNotifier(session, desktop.NotifierOptions{
			AppName:    cfg.AppName,
			Icon:       "dialog-warning",
			OnActivate: launch.StoreStrings,
			Log:        log,
		})
		if err != nil {
			log.Warn("notifications disabled", "err", err)
		} else {
			teardown.Push(notifier.Close)
			opts.Notifier = notifier
		}
	}

	m := alert.NewManager(opts)
	guard := volkeys.NewGuard(cfg.VolumeKeys, log)
	m.OnVolumeLock(func(locked bool) {
		if err := guard.SetLocked(locked); err != nil {
			log.Warn("volume keys", "locked", locked, "err", err)
		}
	})
	teardown.Push(func() { _ = guard.SetLocked(false) })
	return m
}

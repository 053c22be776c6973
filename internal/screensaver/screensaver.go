// Package screensaver keeps the kiosk display awake while a slideshow is
// playing, using the freedesktop ScreenSaver D-Bus interface.
package screensaver

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/brianhealey/slidepi/internal/models"
	"github.com/brianhealey/slidepi/internal/slideshow"
)

const (
	busName    = "org.freedesktop.ScreenSaver"
	objectPath = "/org/freedesktop/ScreenSaver"
	iface      = "org.freedesktop.ScreenSaver"

	appName = "slidepi"
	reason  = "slideshow playing"
)

// Service is the subset of the ScreenSaver interface the inhibitor calls.
type Service interface {
	Inhibit(app, reason string) (uint32, error)
	UnInhibit(cookie uint32) error
}

// dbusService calls the ScreenSaver object on the session bus.
type dbusService struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Connect opens the session bus and returns the ScreenSaver service.
func Connect() (Service, func() error, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, nil, fmt.Errorf("screensaver: connect session bus: %w", err)
	}
	s := &dbusService{conn: conn, obj: conn.Object(busName, objectPath)}
	return s, conn.Close, nil
}

func (s *dbusService) Inhibit(app, why string) (uint32, error) {
	var cookie uint32
	if err := s.obj.Call(iface+".Inhibit", 0, app, why).Store(&cookie); err != nil {
		return 0, err
	}
	return cookie, nil
}

func (s *dbusService) UnInhibit(cookie uint32) error {
	return s.obj.Call(iface+".UnInhibit", 0, cookie).Err
}

// Inhibitor holds a screensaver inhibition while the engine is Playing.
type Inhibitor struct {
	mu        sync.Mutex
	svc       Service
	cookie    uint32
	inhibited bool
}

// New returns an Inhibitor over svc.
func New(svc Service) *Inhibitor {
	return &Inhibitor{svc: svc}
}

// Hook is registered as an engine transition hook.
func (i *Inhibitor) Hook(tr slideshow.Transition) {
	if tr.To == models.PlaybackPlaying {
		i.inhibit()
	} else {
		i.release()
	}
}

// Inhibited reports whether an inhibition is held.
func (i *Inhibitor) Inhibited() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inhibited
}

// Close releases any held inhibition.
func (i *Inhibitor) Close() {
	i.release()
}

func (i *Inhibitor) inhibit() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.inhibited {
		return
	}
	cookie, err := i.svc.Inhibit(appName, reason)
	if err != nil {
		slog.Warn("screensaver: inhibit failed", "err", err)
		return
	}
	i.cookie = cookie
	i.inhibited = true
	slog.Debug("screensaver: inhibited", "cookie", cookie)
}

func (i *Inhibitor) release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.inhibited {
		return
	}
	if err := i.svc.UnInhibit(i.cookie); err != nil {
		slog.Warn("screensaver: uninhibit failed", "cookie", i.cookie, "err", err)
	}
	i.inhibited = false
	slog.Debug("screensaver: released", "cookie", i.cookie)
}

// Command slidepi-display is the SlidePi front-panel display driver.
// It follows the daemon's event stream and renders the current slide, its
// caption and playback status on the TFT, or to the log when no panel is
// attached.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/brianhealey/slidepi/internal/client"
	"github.com/brianhealey/slidepi/internal/models"
)

// Config holds the display driver configuration.
type Config struct {
	Addr    string        // daemon address
	Refresh time.Duration // minimum interval between redraws
	Retry   time.Duration // wait between event stream reconnects
	Panel   string        // "tft", "log" or "auto"
}

// Status is what the panel shows.
type Status struct {
	Hostname  string
	IP        string
	Connected bool
	Index     int // -1 when there is nothing to show
	Count     int
	Title     string
	Paused    bool
	Locked    bool
	Pending   string
	Percent   float64
	Thumb     image.Image
}

// Panel draws a Status somewhere.
type Panel interface {
	Render(*Status) error
}

func main() {
	var (
		addr     = flag.String("addr", "localhost:8080", "SlidePi daemon address")
		refresh  = flag.Duration("refresh", 500*time.Millisecond, "minimum interval between redraws")
		retry    = flag.Duration("retry", 5*time.Second, "wait between reconnect attempts")
		panel    = flag.String("panel", "auto", "output: tft, log or auto")
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Configure logging
	level := slog.LevelInfo
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := Config{Addr: *addr, Refresh: *refresh, Retry: *retry, Panel: *panel}
	slog.Info("slidepi-display starting", "addr", cfg.Addr, "panel", cfg.Panel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := openPanel(cfg.Panel)
	if err != nil {
		slog.Error("cannot open panel", "err", err)
		os.Exit(1)
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}

	if err := run(ctx, cfg, p); err != nil {
		slog.Error("display driver failed", "err", err)
		os.Exit(1)
	}
	slog.Info("slidepi-display stopped")
}

// openPanel picks the output. "auto" falls back to the log when the TFT
// cannot be initialised.
func openPanel(kind string) (Panel, error) {
	switch kind {
	case "log":
		return &logPanel{}, nil
	case "tft", "auto":
		tft, err := NewTFT()
		if err == nil {
			return tft, nil
		}
		if kind == "tft" {
			return nil, err
		}
		slog.Warn("TFT init failed, falling back to log-only mode", "err", err)
		return &logPanel{}, nil
	default:
		return nil, fmt.Errorf("unknown panel type: %s", kind)
	}
}

// run follows the event stream and redraws at most once per Refresh.
func run(ctx context.Context, cfg Config, p Panel) error {
	c := client.New(cfg.Addr)
	t := newTracker(ctx, c)

	go c.SubscribeForever(ctx, cfg.Retry, t.handle, func(err error) {
		slog.Warn("event stream lost", "err", err)
		t.disconnected()
	})

	ticker := time.NewTicker(cfg.Refresh)
	defer ticker.Stop()

	// Draw the disconnected screen right away.
	if err := p.Render(t.snapshot()); err != nil {
		slog.Warn("initial render failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st, ok := t.takeDirty()
			if !ok {
				continue
			}
			if err := p.Render(st); err != nil {
				slog.Warn("render failed", "err", err)
			}
		}
	}
}

type thumbFetcher interface {
	Fetch(ctx context.Context, p string) ([]byte, error)
}

// tracker folds events into a Status.
type tracker struct {
	ctx    context.Context
	client thumbFetcher

	mu     sync.Mutex
	status Status
	images []models.Image
	thumbs map[int]image.Image
	dirty  bool
}

func newTracker(ctx context.Context, c thumbFetcher) *tracker {
	hostname, _ := os.Hostname()
	return &tracker{
		ctx:    ctx,
		client: c,
		status: Status{Hostname: hostname, IP: getLocalIP(), Index: -1},
		thumbs: make(map[int]image.Image),
		dirty:  true,
	}
}

func (t *tracker) handle(ev models.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Connected = true
	t.dirty = true

	switch ev.Type {
	case models.EventState:
		if ev.State == nil {
			return
		}
		st := ev.State
		t.images = st.Images
		t.status.Count = len(st.Images)
		t.status.Paused = st.Playback.Paused
		t.status.Percent = st.Playback.ProgressPercent
		t.status.Locked = st.Lock.Locked
		t.status.Pending = st.Lock.Pending
		idx := -1
		if st.Playback.CurrentIndex != nil {
			idx = *st.Playback.CurrentIndex
		}
		t.setSlideLocked(idx)
	case models.EventSlide:
		if ev.Index != nil {
			t.status.Percent = 0
			t.setSlideLocked(*ev.Index)
		}
	case models.EventProgress:
		if ev.Percent != nil {
			t.status.Percent = *ev.Percent
		}
	case models.EventPause:
		if ev.Paused != nil {
			t.status.Paused = *ev.Paused
		}
	case models.EventCredential:
		t.status.Pending = ev.Action
	default:
		t.dirty = false
	}
}

// setSlideLocked points the status at slide idx. Callers hold t.mu.
func (t *tracker) setSlideLocked(idx int) {
	if idx < 0 || idx >= len(t.images) {
		t.status.Index, t.status.Title, t.status.Thumb = -1, "", nil
		return
	}
	img := t.images[idx]
	t.status.Index = idx
	t.status.Title = img.Title
	t.status.Thumb = t.thumbLocked(img)
}

func (t *tracker) thumbLocked(img models.Image) image.Image {
	if th, ok := t.thumbs[img.ID]; ok {
		return th
	}
	src := img.Thumb
	if src == "" {
		src = img.Src
	}
	ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()
	data, err := t.client.Fetch(ctx, src)
	if err != nil {
		slog.Debug("thumbnail fetch failed", "src", src, "err", err)
		return nil
	}
	th, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Debug("thumbnail decode failed", "src", src, "err", err)
		return nil
	}
	t.thumbs[img.ID] = th
	return th
}

func (t *tracker) disconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Connected {
		t.status.Connected = false
		t.dirty = true
	}
}

func (t *tracker) snapshot() *Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.status
	return &st
}

func (t *tracker) takeDirty() (*Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil, false
	}
	t.dirty = false
	st := t.status
	return &st, true
}

// logPanel logs the status (for when no hardware is present). Progress-only
// changes are not logged.
type logPanel struct {
	last string
}

func (l *logPanel) Render(st *Status) error {
	line := fmt.Sprintf("%t %s %q %t %t %s", st.Connected, slideLabel(st), st.Title, st.Paused, st.Locked, st.Pending)
	if line == l.last {
		return nil
	}
	l.last = line
	if !st.Connected {
		slog.Info("display status", "connected", false, "ip", st.IP)
		return nil
	}
	slog.Info("display status",
		"slide", slideLabel(st),
		"title", st.Title,
		"paused", st.Paused,
		"locked", st.Locked,
		"pending", st.Pending,
	)
	return nil
}

func slideLabel(st *Status) string {
	if st.Index < 0 {
		return fmt.Sprintf("-/%d", st.Count)
	}
	return fmt.Sprintf("%d/%d", st.Index+1, st.Count)
}

// getLocalIP returns the local IP address (best effort).
func getLocalIP() string {
	// Dialing UDP resolves the route without sending anything.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

package controller_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brianhealey/slidepi/internal/config"
	"github.com/brianhealey/slidepi/internal/controller"
	"github.com/brianhealey/slidepi/internal/events"
	"github.com/brianhealey/slidepi/internal/lock"
	"github.com/brianhealey/slidepi/internal/models"
	"github.com/brianhealey/slidepi/internal/slideshow"
)

// fakeLibrary stores nothing on disk and records removals.
type fakeLibrary struct {
	mu      sync.Mutex
	n       int
	removed []string
	fail    error
}

func (f *fakeLibrary) Store(r io.Reader, fileName string) (models.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return models.Image{}, f.fail
	}
	if _, err := io.ReadAll(r); err != nil {
		return models.Image{}, err
	}
	f.n++
	stored := fmt.Sprintf("file-%d.jpg", f.n)
	return models.Image{
		Src:      "/media/" + stored,
		Title:    models.TitleFromFileName(fileName),
		FileName: fileName,
		Stored:   stored,
	}, nil
}

func (f *fakeLibrary) Remove(img models.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, img.Stored)
	return nil
}

type fixture struct {
	ctrl  *controller.Controller
	store *config.MemStore
	bus   *events.Bus
	lib   *fakeLibrary
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()
	f := &fixture{
		store: config.NewMemStore(),
		bus:   events.NewBus(),
		lib:   &fakeLibrary{},
	}
	f.ctrl = f.open(t, password)
	return f
}

func (f *fixture) open(t *testing.T, password string) *controller.Controller {
	t.Helper()
	ctrl, err := controller.New(controller.Options{
		Store:        f.store,
		Bus:          f.bus,
		Library:      f.lib,
		Lock:         lock.Options{Cost: bcrypt.MinCost},
		LockPassword: password,
		Info:         models.Info{Version: "test"},
	})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })
	return ctrl
}

func (f *fixture) addImages(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := f.ctrl.AddImage(strings.NewReader("data"), name); err != nil {
			t.Fatalf("AddImage(%q): %v", name, err)
		}
	}
}

func currentIndex(t *testing.T, st models.State) int {
	t.Helper()
	if st.Playback.CurrentIndex == nil {
		t.Fatal("CurrentIndex is nil")
	}
	return *st.Playback.CurrentIndex
}

func requireAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want AppError %s", err, code)
	}
	if appErr.Code != code {
		t.Fatalf("error code = %s, want %s", appErr.Code, code)
	}
}

func TestNew_EmptyCollectionIsIdle(t *testing.T) {
	f := newFixture(t, "")
	st := f.ctrl.State()

	if st.Playback.State != models.PlaybackIdle {
		t.Errorf("state = %s, want idle", st.Playback.State)
	}
	if st.Playback.CurrentIndex != nil {
		t.Errorf("CurrentIndex = %d, want nil", *st.Playback.CurrentIndex)
	}
	if st.Info.Version != "test" || st.Info.Store != ":memory:" {
		t.Errorf("Info = %+v", st.Info)
	}
	if st.Lock.Locked || st.Lock.HasCredential {
		t.Errorf("Lock = %+v, want open gate without credential", st.Lock)
	}
}

func TestAddImage_StartsPlayback(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "beach.jpg", "forest.jpg", "city.jpg")

	st := f.ctrl.State()
	if st.Playback.State != models.PlaybackPlaying {
		t.Errorf("state = %s, want playing", st.Playback.State)
	}
	if got := currentIndex(t, st); got != 0 {
		t.Errorf("CurrentIndex = %d, want 0", got)
	}
	if st.Playback.Count != 3 {
		t.Errorf("Count = %d, want 3", st.Playback.Count)
	}
	for i, img := range st.Images {
		if img.ID != i+1 {
			t.Errorf("Images[%d].ID = %d, want %d", i, img.ID, i+1)
		}
	}
	if st.Images[1].Title != "forest" {
		t.Errorf("Images[1].Title = %q, want forest", st.Images[1].Title)
	}

	reloaded, _ := f.store.Load()
	if len(reloaded.Images) != 3 {
		t.Errorf("persisted images = %d, want 3", len(reloaded.Images))
	}
}

func TestAddImage_LibraryError(t *testing.T) {
	f := newFixture(t, "")
	f.lib.fail = models.ErrUnsupportedMedia("notes.txt is not a supported image")

	_, err := f.ctrl.AddImage(strings.NewReader("x"), "notes.txt")
	requireAppError(t, err, "UNSUPPORTED_MEDIA")
	if n := len(f.ctrl.Images()); n != 0 {
		t.Errorf("images = %d, want 0", n)
	}
}

func TestAddImage_IDsNeverReused(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg", "c.jpg")
	if err := f.ctrl.DeleteImage(2); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	f.addImages(t, "d.jpg")

	imgs := f.ctrl.Images()
	if last := imgs[len(imgs)-1]; last.ID != 4 {
		t.Errorf("new image ID = %d, want 4", last.ID)
	}
}

func TestUpdateSettings_RestartsAtStartSlide(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg", "c.jpg")

	dur := 2.5
	start := 2
	s, err := f.ctrl.UpdateSettings(models.SettingsUpdate{SlideDuration: &dur, StartSlide: &start})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if s.SlideDuration != 2.5 || s.StartSlide != 2 {
		t.Errorf("settings = %+v", s)
	}

	st := f.ctrl.State()
	if st.Playback.SlideDurationMs != 2500 {
		t.Errorf("SlideDurationMs = %d, want 2500", st.Playback.SlideDurationMs)
	}
	if got := currentIndex(t, st); got != 2 {
		t.Errorf("CurrentIndex = %d, want start slide 2", got)
	}
	reloaded, _ := f.store.Load()
	if reloaded.Settings.SlideDuration != 2.5 {
		t.Errorf("persisted SlideDuration = %v", reloaded.Settings.SlideDuration)
	}
}

func TestUpdateSettings_Invalid(t *testing.T) {
	f := newFixture(t, "")
	bad := 0.2
	_, err := f.ctrl.UpdateSettings(models.SettingsUpdate{SlideDuration: &bad})
	requireAppError(t, err, "BAD_REQUEST")
	if f.ctrl.Settings().SlideDuration != 5 {
		t.Error("invalid update must not change settings")
	}
}

func TestResetSettings(t *testing.T) {
	f := newFixture(t, "")
	size := 60
	if _, err := f.ctrl.UpdateSettings(models.SettingsUpdate{FontSize: &size}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	s, err := f.ctrl.ResetSettings()
	if err != nil {
		t.Fatalf("ResetSettings: %v", err)
	}
	if s != models.DefaultSettings() {
		t.Errorf("ResetSettings() = %+v, want defaults", s)
	}
}

func TestGoTo(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg")

	st, err := f.ctrl.GoTo(1)
	if err != nil {
		t.Fatalf("GoTo(1): %v", err)
	}
	if currentIndex(t, st) != 1 {
		t.Errorf("CurrentIndex = %d, want 1", currentIndex(t, st))
	}

	_, err = f.ctrl.GoTo(5)
	requireAppError(t, err, "INDEX_OUT_OF_RANGE")
	if currentIndex(t, f.ctrl.State()) != 1 {
		t.Error("out-of-range GoTo changed the index")
	}
}

func TestAttempt_Unlocked(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg", "c.jpg")

	res, err := f.ctrl.Attempt("next")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !res.Executed || res.Pending != "" {
		t.Errorf("result = %+v, want executed", res)
	}
	if currentIndex(t, *res.State) != 1 {
		t.Errorf("CurrentIndex = %d, want 1", currentIndex(t, *res.State))
	}

	if _, err := f.ctrl.Attempt("prev"); err != nil {
		t.Fatalf("Attempt(prev): %v", err)
	}
	if _, err := f.ctrl.Attempt("prev"); err != nil {
		t.Fatalf("Attempt(prev): %v", err)
	}
	if got := currentIndex(t, f.ctrl.State()); got != 2 {
		t.Errorf("CurrentIndex after wraparound = %d, want 2", got)
	}

	_, err = f.ctrl.Attempt("shutdown")
	requireAppError(t, err, "BAD_REQUEST")
}

func TestAttempt_Fullscreen(t *testing.T) {
	f := newFixture(t, "")
	ch := f.bus.Subscribe("t")
	defer f.bus.Unsubscribe("t")

	if _, err := f.ctrl.Attempt("fullscreen"); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if !f.ctrl.State().Fullscreen {
		t.Error("Fullscreen = false after toggle")
	}
	waitForEvent(t, ch, func(ev models.Event) bool { return ev.Type == models.EventFullscreen })
}

func TestLockedScenario(t *testing.T) {
	f := newFixture(t, "admin123")
	f.addImages(t, "a.jpg", "b.jpg", "c.jpg")
	if _, err := f.ctrl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ch := f.bus.Subscribe("t")
	defer f.bus.Unsubscribe("t")

	res, err := f.ctrl.Attempt("next")
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if res.Executed || res.Pending != "next" {
		t.Errorf("locked Attempt result = %+v, want pending next", res)
	}
	waitForEvent(t, ch, func(ev models.Event) bool {
		return ev.Type == models.EventCredential && ev.Action == "next"
	})
	if got := currentIndex(t, f.ctrl.State()); got != 0 {
		t.Fatalf("index moved while locked: %d", got)
	}

	// Writes are refused outright while locked.
	dur := 3.0
	_, err = f.ctrl.UpdateSettings(models.SettingsUpdate{SlideDuration: &dur})
	requireAppError(t, err, "LOCKED")
	_, err = f.ctrl.AddImage(strings.NewReader("x"), "d.jpg")
	requireAppError(t, err, "LOCKED")
	requireAppError(t, f.ctrl.DeleteImage(1), "LOCKED")
	_, err = f.ctrl.GoTo(2)
	requireAppError(t, err, "LOCKED")

	st, err := f.ctrl.Unlock("wrong")
	if !errors.Is(err, models.ErrInvalidCredential) {
		t.Fatalf("Unlock(wrong) error = %v, want invalid credential", err)
	}
	if currentIndex(t, st) != 0 || st.Lock.Pending != "" || !st.Lock.Locked {
		t.Errorf("after wrong password: index=%d lock=%+v", currentIndex(t, st), st.Lock)
	}

	if _, err := f.ctrl.Attempt("next"); err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	st, err = f.ctrl.Unlock("admin123")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if currentIndex(t, st) != 1 {
		t.Errorf("pending next did not run: index = %d", currentIndex(t, st))
	}
	if st.Lock.Locked {
		t.Error("gate still locked after correct password")
	}
}

func TestPlayPause(t *testing.T) {
	f := newFixture(t, "admin123")
	f.addImages(t, "a.jpg")

	res, err := f.ctrl.Pause()
	if err != nil || !res.Executed {
		t.Fatalf("Pause() = %+v, %v", res, err)
	}
	if f.ctrl.State().Playback.State != models.PlaybackPaused {
		t.Error("not paused")
	}
	// Pausing again is a no-op rather than a toggle.
	if _, err := f.ctrl.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !f.ctrl.State().Playback.Paused {
		t.Error("second Pause resumed playback")
	}

	if _, err := f.ctrl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	res, err = f.ctrl.Play()
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if res.Pending != "pause" {
		t.Errorf("locked Play result = %+v, want pending pause", res)
	}
	if _, err := f.ctrl.Unlock("admin123"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if f.ctrl.State().Playback.State != models.PlaybackPlaying {
		t.Error("deferred play did not run")
	}
}

func TestSetHidden(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg")

	st := f.ctrl.SetHidden(true)
	if !st.Playback.Hidden || st.Playback.Running || st.Playback.Paused {
		t.Errorf("hidden playback = %+v", st.Playback)
	}
	st = f.ctrl.SetHidden(false)
	if !st.Playback.Running {
		t.Error("not running after becoming visible")
	}
}

func TestSetVisibility_AnyVisibleViewerKeepsPlaying(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg")
	f.ctrl.ViewerConnected("kiosk")
	f.ctrl.ViewerConnected("phone")

	st := f.ctrl.SetVisibility("phone", true)
	if st.Playback.Hidden || !st.Playback.Running {
		t.Errorf("one hidden viewer stopped the show: %+v", st.Playback)
	}

	st = f.ctrl.SetVisibility("kiosk", true)
	if !st.Playback.Hidden || st.Playback.Running {
		t.Errorf("all viewers hidden but show running: %+v", st.Playback)
	}

	// A closed stream no longer counts, and a hidden viewer that leaves
	// lets the rest decide.
	f.ctrl.SetVisibility("kiosk", false)
	f.ctrl.ViewerGone("kiosk")
	if st := f.ctrl.State(); !st.Playback.Hidden {
		t.Errorf("only the hidden phone is left, playback = %+v", st.Playback)
	}
	f.ctrl.ViewerGone("phone")
	if st := f.ctrl.State(); st.Playback.Hidden || !st.Playback.Running {
		t.Errorf("no viewers left, playback = %+v", st.Playback)
	}
}

func TestNew_InvalidStoredDurationFallsBack(t *testing.T) {
	store := config.NewMemStore()
	snap := models.DefaultSnapshot()
	snap.Settings.SlideDuration = 0
	if err := store.Save(&snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctrl, err := controller.New(controller.Options{
		Store: store,
		Bus:   events.NewBus(),
		Lock:  lock.Options{Cost: bcrypt.MinCost},
	})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	defer ctrl.Close()

	if got, want := ctrl.Settings().SlideDuration, models.DefaultSettings().SlideDuration; got != want {
		t.Errorf("SlideDuration = %v, want default %v", got, want)
	}
}

func TestNew_HooksSeeStartup(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg")
	f.ctrl.Close()

	var mu sync.Mutex
	var seen []slideshow.Transition
	ctrl, err := controller.New(controller.Options{
		Store: f.store,
		Bus:   f.bus,
		Lock:  lock.Options{Cost: bcrypt.MinCost},
		Hooks: []func(slideshow.Transition){func(tr slideshow.Transition) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, tr)
		}},
	})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	defer ctrl.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("hook missed the startup transition")
	}
	if seen[0].From != models.PlaybackIdle || seen[0].To != models.PlaybackPlaying {
		t.Errorf("first transition = %+v, want idle -> playing", seen[0])
	}
}

func TestDeleteImage_ClampsAndGoesIdle(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg", "c.jpg")
	if _, err := f.ctrl.GoTo(2); err != nil {
		t.Fatalf("GoTo: %v", err)
	}

	if err := f.ctrl.DeleteImage(3); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if got := currentIndex(t, f.ctrl.State()); got != 1 {
		t.Errorf("CurrentIndex = %d, want clamped 1", got)
	}

	requireAppError(t, f.ctrl.DeleteImage(42), "NOT_FOUND")

	for _, id := range []int{1, 2} {
		if err := f.ctrl.DeleteImage(id); err != nil {
			t.Fatalf("DeleteImage(%d): %v", id, err)
		}
	}
	st := f.ctrl.State()
	if st.Playback.State != models.PlaybackIdle || st.Playback.CurrentIndex != nil {
		t.Errorf("playback = %+v, want idle", st.Playback)
	}
	if len(f.lib.removed) != 3 {
		t.Errorf("removed files = %v, want 3", f.lib.removed)
	}

	f.addImages(t, "again.jpg")
	st = f.ctrl.State()
	if st.Playback.State != models.PlaybackPlaying || currentIndex(t, st) != 0 {
		t.Errorf("playback after re-adding = %+v", st.Playback)
	}
}

func TestMoveAndRenameImage(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg", "c.jpg")

	imgs, err := f.ctrl.MoveImage(3, models.MoveRequest{To: 0})
	if err != nil {
		t.Fatalf("MoveImage: %v", err)
	}
	got := []int{imgs[0].ID, imgs[1].ID, imgs[2].ID}
	if got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Errorf("order = %v, want [3 1 2]", got)
	}

	_, err = f.ctrl.MoveImage(1, models.MoveRequest{To: 3})
	requireAppError(t, err, "INDEX_OUT_OF_RANGE")
	_, err = f.ctrl.MoveImage(9, models.MoveRequest{To: 0})
	requireAppError(t, err, "NOT_FOUND")

	img, err := f.ctrl.RenameImage(2, models.ImageUpdate{Title: "Harbour"})
	if err != nil {
		t.Fatalf("RenameImage: %v", err)
	}
	if img.Title != "Harbour" || f.ctrl.Images()[2].Title != "Harbour" {
		t.Errorf("rename not applied: %+v", f.ctrl.Images())
	}
	_, err = f.ctrl.RenameImage(2, models.ImageUpdate{Title: strings.Repeat("x", 201)})
	requireAppError(t, err, "BAD_REQUEST")
}

func TestPersistFailureReportedButKeptInMemory(t *testing.T) {
	f := newFixture(t, "")
	ch := f.bus.Subscribe("t")
	defer f.bus.Unsubscribe("t")

	f.store.FailSaves(errors.New("no space left on device"))
	f.addImages(t, "a.jpg")

	if n := len(f.ctrl.Images()); n != 1 {
		t.Errorf("in-memory images = %d, want 1", n)
	}
	waitForEvent(t, ch, func(ev models.Event) bool {
		return ev.Type == models.EventError && strings.Contains(ev.Message, "storage full")
	})
}

func TestSnapshotSurvivesRestart(t *testing.T) {
	f := newFixture(t, "")
	f.addImages(t, "a.jpg", "b.jpg")
	start := 1
	if _, err := f.ctrl.UpdateSettings(models.SettingsUpdate{StartSlide: &start}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	f.ctrl.Close()

	restarted := f.open(t, "")
	st := restarted.State()
	if len(st.Images) != 2 {
		t.Fatalf("images after restart = %d, want 2", len(st.Images))
	}
	if currentIndex(t, st) != 1 {
		t.Errorf("CurrentIndex after restart = %d, want start slide 1", currentIndex(t, st))
	}
}

func TestSetCredential(t *testing.T) {
	f := newFixture(t, "")
	err := f.ctrl.SetCredential(models.CredentialUpdate{Next: "abc"})
	requireAppError(t, err, "BAD_REQUEST")

	if err := f.ctrl.SetCredential(models.CredentialUpdate{Next: "admin123"}); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	if !f.ctrl.LockStatus().HasCredential {
		t.Error("HasCredential = false after SetCredential")
	}
	err = f.ctrl.SetCredential(models.CredentialUpdate{Current: "nope", Next: "other1"})
	if !errors.Is(err, models.ErrInvalidCredential) {
		t.Errorf("SetCredential with wrong current = %v", err)
	}
}

func waitForEvent(t *testing.T, ch <-chan models.Event, match func(models.Event) bool) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event stream evicted")
			}
			if match(ev) {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

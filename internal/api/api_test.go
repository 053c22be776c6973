package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brianhealey/slidepi/internal/api"
	"github.com/brianhealey/slidepi/internal/config"
	"github.com/brianhealey/slidepi/internal/controller"
	"github.com/brianhealey/slidepi/internal/events"
	"github.com/brianhealey/slidepi/internal/lock"
	"github.com/brianhealey/slidepi/internal/maintenance"
	"github.com/brianhealey/slidepi/internal/media"
	"github.com/brianhealey/slidepi/internal/models"
)

type testServer struct {
	*httptest.Server
	ctrl *controller.Controller
}

// newTestServer spins up a full router over an in-memory store, a temp media
// directory and a temp backup directory.
func newTestServer(t *testing.T, password string) *testServer {
	t.Helper()

	store := config.NewMemStore()
	bus := events.NewBus()

	lib, err := media.New(media.Options{
		Dir:       t.TempDir(),
		FreeSpace: func(string) (uint64, error) { return 1 << 40, nil },
	})
	if err != nil {
		t.Fatalf("media.New: %v", err)
	}

	ctrl, err := controller.New(controller.Options{
		Store:        store,
		Bus:          bus,
		Library:      lib,
		Lock:         lock.Options{Cost: bcrypt.MinCost},
		LockPassword: password,
	})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}

	backups := maintenance.New(maintenance.Options{
		ConfigDir: t.TempDir(),
		MediaDir:  lib.Dir(),
		BackupDir: t.TempDir(),
		Keep:      3,
	})

	router := api.NewRouter(ctrl, bus, api.Options{
		Media:   lib.Handler(),
		Backups: backups,
		UI:      fstest.MapFS{"index.html": {Data: []byte("<html>slidepi</html>")}},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		ctrl.Close()
	})
	return &testServer{Server: srv, ctrl: ctrl}
}

// do is a convenience helper for making requests to the test server.
func do(t *testing.T, srv *testServer, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do %s %s: %v", method, path, err)
	}
	return resp
}

// decodeJSON reads and decodes a JSON response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireStatus fails the test if the response status doesn't match.
func requireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, expected, body)
	}
}

func requireErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	requireStatus(t, resp, status)
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["error"] != code {
		t.Errorf("error = %v, want %s", body["error"], code)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// upload posts files as multipart "file" parts.
func upload(t *testing.T, srv *testServer, files map[string][]byte, order ...string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range order {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(files[name])
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/images", &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func seedImages(t *testing.T, srv *testServer, n int) {
	t.Helper()
	data := pngBytes(t)
	files := map[string][]byte{}
	var order []string
	for i := 0; i < n; i++ {
		name := string(rune('a'+i)) + ".png"
		files[name] = data
		order = append(order, name)
	}
	resp := upload(t, srv, files, order...)
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

// --- Tests ---

func TestGetState(t *testing.T) {
	srv := newTestServer(t, "")

	for _, path := range []string{"/api", "/api/"} {
		resp := do(t, srv, "GET", path, "")
		requireStatus(t, resp, http.StatusOK)

		var state models.State
		decodeJSON(t, resp, &state)
		if state.Playback.State != models.PlaybackIdle {
			t.Errorf("GET %s: playback state = %s, want idle", path, state.Playback.State)
		}
		if state.Images == nil {
			t.Errorf("GET %s: images is nil", path)
		}
		if state.Settings.SlideDuration != 5 {
			t.Errorf("GET %s: slideDuration = %v, want 5", path, state.Settings.SlideDuration)
		}
	}
}

func TestGetInfo(t *testing.T) {
	srv := newTestServer(t, "")
	resp := do(t, srv, "GET", "/api/info", "")
	requireStatus(t, resp, http.StatusOK)
	var info models.Info
	decodeJSON(t, resp, &info)
	if info.Store != ":memory:" {
		t.Errorf("info.store = %q", info.Store)
	}
}

func TestUploadImages(t *testing.T) {
	srv := newTestServer(t, "")
	data := pngBytes(t)

	resp := upload(t, srv, map[string][]byte{
		"beach.png": data,
		"notes.txt": []byte("not an image"),
		"city.png":  data,
	}, "beach.png", "notes.txt", "city.png")
	requireStatus(t, resp, http.StatusCreated)

	var body struct {
		Images []models.Image     `json:"images"`
		Errors []models.AppError `json:"errors"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(body.Images))
	}
	if body.Images[0].Title != "beach" || body.Images[1].ID != 2 {
		t.Errorf("images = %+v", body.Images)
	}
	if len(body.Errors) != 1 || body.Errors[0].Code != "UNSUPPORTED_MEDIA" {
		t.Errorf("errors = %+v", body.Errors)
	}

	// The stored file is served under /media.
	media := do(t, srv, "GET", body.Images[0].Src, "")
	requireStatus(t, media, http.StatusOK)
	media.Body.Close()

	state := srv.ctrl.State()
	if state.Playback.State != models.PlaybackPlaying || state.Playback.Count != 2 {
		t.Errorf("playback = %+v", state.Playback)
	}
}

func TestUploadImages_AllRejected(t *testing.T) {
	srv := newTestServer(t, "")
	resp := upload(t, srv, map[string][]byte{"notes.txt": []byte("text")}, "notes.txt")
	requireErrorCode(t, resp, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA")
}

func TestUploadImages_MissingField(t *testing.T) {
	srv := newTestServer(t, "")
	resp := upload(t, srv, nil)
	requireErrorCode(t, resp, http.StatusBadRequest, "BAD_REQUEST")
}

func TestActions(t *testing.T) {
	srv := newTestServer(t, "")
	seedImages(t, srv, 3)

	resp := do(t, srv, "POST", "/api/actions/next", "")
	requireStatus(t, resp, http.StatusOK)
	var res models.ActionResult
	decodeJSON(t, resp, &res)
	if !res.Executed || *res.State.Playback.CurrentIndex != 1 {
		t.Errorf("next result = %+v", res)
	}

	resp = do(t, srv, "POST", "/api/actions/prev", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, srv, "POST", "/api/actions/explode", "")
	requireErrorCode(t, resp, http.StatusBadRequest, "BAD_REQUEST")
}

func TestGoTo(t *testing.T) {
	srv := newTestServer(t, "")
	seedImages(t, srv, 2)

	resp := do(t, srv, "POST", "/api/goto/1", "")
	requireStatus(t, resp, http.StatusOK)
	var state models.State
	decodeJSON(t, resp, &state)
	if *state.Playback.CurrentIndex != 1 {
		t.Errorf("currentIndex = %d, want 1", *state.Playback.CurrentIndex)
	}

	resp = do(t, srv, "POST", "/api/goto/7", "")
	requireErrorCode(t, resp, http.StatusBadRequest, "INDEX_OUT_OF_RANGE")

	resp = do(t, srv, "POST", "/api/goto/abc", "")
	requireErrorCode(t, resp, http.StatusBadRequest, "BAD_REQUEST")
}

func TestPlayPauseVisibility(t *testing.T) {
	srv := newTestServer(t, "")
	seedImages(t, srv, 1)

	resp := do(t, srv, "POST", "/api/pause", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if srv.ctrl.State().Playback.State != models.PlaybackPaused {
		t.Error("POST /api/pause did not pause")
	}

	resp = do(t, srv, "POST", "/api/play", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, srv, "POST", "/api/visibility", `{"hidden":true}`)
	requireStatus(t, resp, http.StatusOK)
	var state models.State
	decodeJSON(t, resp, &state)
	if !state.Playback.Hidden || state.Playback.Running {
		t.Errorf("playback after hide = %+v", state.Playback)
	}

	resp = do(t, srv, "POST", "/api/visibility", `{hidden}`)
	requireErrorCode(t, resp, http.StatusBadRequest, "BAD_REQUEST")
}

func TestVisibility_PerViewer(t *testing.T) {
	srv := newTestServer(t, "")
	seedImages(t, srv, 2)

	// open subscribes as viewer and waits for the initial state.
	open := func(viewer string) context.CancelFunc {
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/subscribe?client="+viewer, nil)
		resp, err := srv.Client().Do(req)
		if err != nil {
			cancel()
			t.Fatalf("subscribe %s: %v", viewer, err)
		}
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() && !strings.HasPrefix(sc.Text(), "data: ") {
		}
		go func() {
			<-ctx.Done()
			resp.Body.Close()
		}()
		return cancel
	}
	closeKiosk := open("kiosk")
	defer closeKiosk()
	closePhone := open("phone")
	defer closePhone()

	resp := do(t, srv, "POST", "/api/visibility", `{"client":"phone","hidden":true}`)
	var state models.State
	decodeJSON(t, resp, &state)
	if state.Playback.Hidden || !state.Playback.Running {
		t.Fatalf("hidden phone stopped the kiosk: %+v", state.Playback)
	}

	// Once the kiosk stream ends only the hidden phone remains.
	closeKiosk()
	deadline := time.Now().Add(3 * time.Second)
	for !srv.ctrl.State().Playback.Hidden {
		if time.Now().After(deadline) {
			t.Fatal("viewer not dropped after its stream closed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSettings(t *testing.T) {
	srv := newTestServer(t, "")

	resp := do(t, srv, "PATCH", "/api/settings", `{"slideDuration":8,"captionPosition":"top"}`)
	requireStatus(t, resp, http.StatusOK)
	var s models.Settings
	decodeJSON(t, resp, &s)
	if s.SlideDuration != 8 || s.CaptionPosition != "top" {
		t.Errorf("settings = %+v", s)
	}

	resp = do(t, srv, "PATCH", "/api/settings", `{"imageFit":"stretch"}`)
	requireStatus(t, resp, http.StatusBadRequest)
	var errBody models.AppError
	decodeJSON(t, resp, &errBody)
	if errBody.Field != "imageFit" {
		t.Errorf("field = %q, want imageFit", errBody.Field)
	}

	resp = do(t, srv, "GET", "/api/settings", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &s)
	if s.SlideDuration != 8 {
		t.Errorf("GET settings slideDuration = %v, want 8", s.SlideDuration)
	}

	resp = do(t, srv, "POST", "/api/settings/reset", "")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &s)
	if s != models.DefaultSettings() {
		t.Errorf("reset settings = %+v", s)
	}
}

func TestImageEndpoints(t *testing.T) {
	srv := newTestServer(t, "")
	seedImages(t, srv, 3)

	resp := do(t, srv, "PATCH", "/api/images/2", `{"title":"Harbour"}`)
	requireStatus(t, resp, http.StatusOK)
	var img models.Image
	decodeJSON(t, resp, &img)
	if img.Title != "Harbour" {
		t.Errorf("title = %q", img.Title)
	}

	resp = do(t, srv, "POST", "/api/images/3/move", `{"to":0}`)
	requireStatus(t, resp, http.StatusOK)
	var moved struct {
		Images []models.Image `json:"images"`
	}
	decodeJSON(t, resp, &moved)
	if moved.Images[0].ID != 3 {
		t.Errorf("first image = %d, want 3", moved.Images[0].ID)
	}

	resp = do(t, srv, "DELETE", "/api/images/1", "")
	requireStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = do(t, srv, "DELETE", "/api/images/1", "")
	requireErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")

	resp = do(t, srv, "GET", "/api/images", "")
	requireStatus(t, resp, http.StatusOK)
	var list struct {
		Images []models.Image `json:"images"`
	}
	decodeJSON(t, resp, &list)
	if len(list.Images) != 2 {
		t.Errorf("images = %d, want 2", len(list.Images))
	}
}

func TestLockFlow(t *testing.T) {
	srv := newTestServer(t, "admin123")
	seedImages(t, srv, 3)

	resp := do(t, srv, "POST", "/api/lock", "")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, srv, "POST", "/api/actions/next", "")
	requireStatus(t, resp, http.StatusAccepted)
	var res models.ActionResult
	decodeJSON(t, resp, &res)
	if res.Pending != "next" {
		t.Errorf("pending = %q, want next", res.Pending)
	}

	resp = do(t, srv, "PATCH", "/api/settings", `{"fontSize":40}`)
	requireErrorCode(t, resp, http.StatusLocked, "LOCKED")

	resp = do(t, srv, "POST", "/api/unlock", `{"password":"nope"}`)
	requireErrorCode(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIAL")

	resp = do(t, srv, "GET", "/api/lock", "")
	requireStatus(t, resp, http.StatusOK)
	var status models.LockStatus
	decodeJSON(t, resp, &status)
	if !status.Locked || status.Pending != "" {
		t.Errorf("lock status after wrong password = %+v", status)
	}

	resp = do(t, srv, "POST", "/api/actions/next", "")
	requireStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()

	resp = do(t, srv, "POST", "/api/unlock", `{"password":"admin123"}`)
	requireStatus(t, resp, http.StatusOK)
	var state models.State
	decodeJSON(t, resp, &state)
	if state.Lock.Locked || *state.Playback.CurrentIndex != 1 {
		t.Errorf("after unlock: lock=%+v index=%d", state.Lock, *state.Playback.CurrentIndex)
	}
}

func TestSetCredential(t *testing.T) {
	srv := newTestServer(t, "")

	resp := do(t, srv, "POST", "/api/lock", "")
	requireErrorCode(t, resp, http.StatusConflict, "CONFLICT")

	resp = do(t, srv, "PUT", "/api/lock/credential", `{"next":"secret1"}`)
	requireStatus(t, resp, http.StatusOK)
	var status models.LockStatus
	decodeJSON(t, resp, &status)
	if !status.HasCredential {
		t.Error("has_credential = false after PUT")
	}

	resp = do(t, srv, "PUT", "/api/lock/credential", `{"current":"wrong","next":"secret2"}`)
	requireErrorCode(t, resp, http.StatusUnauthorized, "INVALID_CREDENTIAL")
}

func TestBackups(t *testing.T) {
	srv := newTestServer(t, "")
	seedImages(t, srv, 1)

	resp := do(t, srv, "POST", "/api/backup", "")
	requireStatus(t, resp, http.StatusCreated)
	var b maintenance.Backup
	decodeJSON(t, resp, &b)
	if !strings.HasSuffix(b.Name, ".tar.gz") {
		t.Errorf("backup name = %q", b.Name)
	}

	resp = do(t, srv, "GET", "/api/backups", "")
	requireStatus(t, resp, http.StatusOK)
	var list struct {
		Backups []maintenance.Backup `json:"backups"`
	}
	decodeJSON(t, resp, &list)
	if len(list.Backups) != 1 {
		t.Errorf("backups = %d, want 1", len(list.Backups))
	}
}

func TestRestore_RejectsWrongExtension(t *testing.T) {
	srv := newTestServer(t, "")
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("backup", "backup.zip")
	part.Write([]byte("zip"))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/restore", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	requireErrorCode(t, resp, http.StatusBadRequest, "BAD_REQUEST")
}

func TestStaticUI(t *testing.T) {
	srv := newTestServer(t, "")
	resp := do(t, srv, "GET", "/", "")
	requireStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "slidepi") {
		t.Errorf("GET / body = %q", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, "")
	resp := do(t, srv, "OPTIONS", "/api/settings", "")
	requireStatus(t, resp, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestSSE(t *testing.T) {
	srv := newTestServer(t, "")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/subscribe", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := make(chan models.Event, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev models.Event
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				events <- ev
			}
		}
		close(events)
	}()

	first := nextEvent(t, events)
	if first.Type != models.EventState || first.State == nil {
		t.Fatalf("first event = %+v, want full state", first)
	}

	seedImages(t, srv, 2)
	for {
		ev := nextEvent(t, events)
		if ev.Type == models.EventSlide && ev.Index != nil && *ev.Index == 0 {
			return
		}
	}
}

func nextEvent(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for SSE event")
	}
	return models.Event{}
}

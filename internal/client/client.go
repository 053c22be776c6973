// Package client is a typed HTTP client for the SlidePi API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brianhealey/slidepi/internal/maintenance"
	"github.com/brianhealey/slidepi/internal/models"
)

// Client talks to one SlidePi daemon.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client for the daemon at base, e.g. "http://slidepi.local:8080".
// A bare host:port gets an http:// scheme.
func New(base string) *Client {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{},
	}
}

// URL resolves a path such as an image src against the daemon address.
func (c *Client) URL(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return c.base + "/" + strings.TrimPrefix(p, "/")
}

// State returns the full system state.
func (c *Client) State(ctx context.Context) (models.State, error) {
	var st models.State
	err := c.do(ctx, http.MethodGet, "/api", nil, &st)
	return st, err
}

// Info returns the daemon identity.
func (c *Client) Info(ctx context.Context) (models.Info, error) {
	var info models.Info
	err := c.do(ctx, http.MethodGet, "/api/info", nil, &info)
	return info, err
}

// Action runs a gated action. Result.Pending is set when the lock deferred it.
func (c *Client) Action(ctx context.Context, action string) (models.ActionResult, error) {
	var res models.ActionResult
	err := c.do(ctx, http.MethodPost, "/api/actions/"+url.PathEscape(action), nil, &res)
	return res, err
}

// Play resumes auto-advance.
func (c *Client) Play(ctx context.Context) (models.ActionResult, error) {
	var res models.ActionResult
	err := c.do(ctx, http.MethodPost, "/api/play", nil, &res)
	return res, err
}

// Pause stops auto-advance.
func (c *Client) Pause(ctx context.Context) (models.ActionResult, error) {
	var res models.ActionResult
	err := c.do(ctx, http.MethodPost, "/api/pause", nil, &res)
	return res, err
}

// GoTo jumps to slide index.
func (c *Client) GoTo(ctx context.Context, index int) (models.State, error) {
	var st models.State
	err := c.do(ctx, http.MethodPost, "/api/goto/"+strconv.Itoa(index), nil, &st)
	return st, err
}

// Settings returns the current settings.
func (c *Client) Settings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &s)
	return s, err
}

// UpdateSettings patches the settings.
func (c *Client) UpdateSettings(ctx context.Context, u models.SettingsUpdate) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodPatch, "/api/settings", u, &s)
	return s, err
}

// ResetSettings restores the factory settings.
func (c *Client) ResetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodPost, "/api/settings/reset", nil, &s)
	return s, err
}

// Images lists the image collection.
func (c *Client) Images(ctx context.Context) ([]models.Image, error) {
	var body struct {
		Images []models.Image `json:"images"`
	}
	err := c.do(ctx, http.MethodGet, "/api/images", nil, &body)
	return body.Images, err
}

// UploadResult is the response of Upload.
type UploadResult struct {
	Images []models.Image     `json:"images"`
	Errors []*models.AppError `json:"errors,omitempty"`
}

// Upload sends the files at paths in one multipart request.
func (c *Client) Upload(ctx context.Context, paths ...string) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return UploadResult{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/images", &buf)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var res UploadResult
	err = c.send(req, &res)
	return res, err
}

func addFile(mw *multipart.Writer, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("file", filepath.Base(p))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Rename sets the title of image id.
func (c *Client) Rename(ctx context.Context, id int, title string) (models.Image, error) {
	var img models.Image
	err := c.do(ctx, http.MethodPatch, "/api/images/"+strconv.Itoa(id), models.ImageUpdate{Title: title}, &img)
	return img, err
}

// Move moves image id to position to.
func (c *Client) Move(ctx context.Context, id, to int) ([]models.Image, error) {
	var body struct {
		Images []models.Image `json:"images"`
	}
	err := c.do(ctx, http.MethodPost, "/api/images/"+strconv.Itoa(id)+"/move", models.MoveRequest{To: to}, &body)
	return body.Images, err
}

// Delete removes image id.
func (c *Client) Delete(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/api/images/"+strconv.Itoa(id), nil, nil)
}

// LockStatus returns the gate state.
func (c *Client) LockStatus(ctx context.Context) (models.LockStatus, error) {
	var s models.LockStatus
	err := c.do(ctx, http.MethodGet, "/api/lock", nil, &s)
	return s, err
}

// Lock re-arms the gate.
func (c *Client) Lock(ctx context.Context) (models.State, error) {
	var st models.State
	err := c.do(ctx, http.MethodPost, "/api/lock", nil, &st)
	return st, err
}

// Unlock opens the gate.
func (c *Client) Unlock(ctx context.Context, password string) (models.State, error) {
	var st models.State
	err := c.do(ctx, http.MethodPost, "/api/unlock", models.UnlockRequest{Password: password}, &st)
	return st, err
}

// SetCredential changes the lock password.
func (c *Client) SetCredential(ctx context.Context, current, next string) (models.LockStatus, error) {
	var s models.LockStatus
	err := c.do(ctx, http.MethodPut, "/api/lock/credential", models.CredentialUpdate{Current: current, Next: next}, &s)
	return s, err
}

// Backup creates a backup archive on the daemon.
func (c *Client) Backup(ctx context.Context) (maintenance.Backup, error) {
	var b maintenance.Backup
	err := c.do(ctx, http.MethodPost, "/api/backup", nil, &b)
	return b, err
}

// Backups lists the backup archives on the daemon.
func (c *Client) Backups(ctx context.Context) ([]maintenance.Backup, error) {
	var body struct {
		Backups []maintenance.Backup `json:"backups"`
	}
	err := c.do(ctx, http.MethodGet, "/api/backups", nil, &body)
	return body.Backups, err
}

// Fetch downloads a file served by the daemon, such as a thumbnail.
func (c *Client) Fetch(ctx context.Context, p string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(p), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: GET %s: %s", p, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

// Subscribe streams events to fn until ctx is done or the stream ends. The
// first event is always a full state.
func (c *Client) Subscribe(ctx context.Context, fn func(models.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/subscribe", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		fn(ev)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// SubscribeForever calls Subscribe again after each disconnect, waiting retry
// between attempts, until ctx is done.
func (c *Client) SubscribeForever(ctx context.Context, retry time.Duration, fn func(models.Event), onErr func(error)) {
	for {
		err := c.Subscribe(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		if onErr != nil {
			onErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func (c *Client) do(ctx context.Context, method, p string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+p, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// decodeError turns an error response into an *models.AppError.
func decodeError(resp *http.Response) error {
	var appErr models.AppError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &appErr); err != nil || appErr.Code == "" {
		return &models.AppError{
			Code:    "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message: strings.TrimSpace(resp.Status + " " + string(data)),
			Status:  resp.StatusCode,
		}
	}
	appErr.Status = resp.StatusCode
	return &appErr
}

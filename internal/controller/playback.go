package controller

import (
	"errors"

	"github.com/brianhealey/slidepi/internal/lock"
	"github.com/brianhealey/slidepi/internal/models"
)

// Attempt runs a gated action (pause, next, prev, fullscreen, settings). While
// the gate is locked the action is deferred and the result reports it as
// pending.
func (c *Controller) Attempt(action string) (models.ActionResult, error) {
	a, err := lock.ParseAction(action)
	if err != nil {
		return models.ActionResult{}, models.ErrBadRequest(err.Error())
	}
	ran, err := c.gate.Attempt(a)
	if err != nil {
		return models.ActionResult{}, err
	}
	st := c.State()
	if !ran {
		c.presenter.PublishState(st)
		return models.ActionResult{Pending: action, State: &st}, nil
	}
	return models.ActionResult{Executed: true, State: &st}, nil
}

// Play resumes auto-advance. It goes through the gate as the pause action
// and does nothing when already playing.
func (c *Controller) Play() (models.ActionResult, error) {
	return c.setPaused(false)
}

// Pause stops auto-advance through the gate. It does nothing when already
// paused.
func (c *Controller) Pause() (models.ActionResult, error) {
	return c.setPaused(true)
}

func (c *Controller) setPaused(paused bool) (models.ActionResult, error) {
	if c.engine.State().Paused == paused {
		st := c.State()
		return models.ActionResult{Executed: true, State: &st}, nil
	}
	return c.Attempt(string(lock.ActionPause))
}

// GoTo jumps to slide index. Direct jumps are not a gated gesture, so they
// are refused outright while locked.
func (c *Controller) GoTo(index int) (models.State, error) {
	if err := c.requireUnlocked(); err != nil {
		return models.State{}, err
	}
	if !c.engine.GoTo(index) {
		return models.State{}, models.ErrIndexOutOfRange(index, c.engine.State().Count)
	}
	return c.State(), nil
}

// SetHidden reports visibility for a client without a stream id. It is
// tracked like any other viewer.
func (c *Controller) SetHidden(hidden bool) models.State {
	return c.SetVisibility("", hidden)
}

// SetVisibility records whether the page of viewer client is hidden. The
// show counts as hidden only while every known viewer is hidden, so a
// backgrounded phone does not freeze the kiosk.
func (c *Controller) SetVisibility(client string, hidden bool) models.State {
	c.viewMu.Lock()
	c.viewers[client] = hidden
	c.syncHiddenLocked()
	c.viewMu.Unlock()
	return c.State()
}

// ViewerConnected registers a visible viewer when its event stream opens.
func (c *Controller) ViewerConnected(client string) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if _, ok := c.viewers[client]; !ok {
		c.viewers[client] = false
	}
	c.syncHiddenLocked()
}

// ViewerGone forgets a viewer when its event stream ends.
func (c *Controller) ViewerGone(client string) {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	delete(c.viewers, client)
	c.syncHiddenLocked()
}

// syncHiddenLocked pushes the combined visibility to the engine. Callers
// hold c.viewMu.
func (c *Controller) syncHiddenLocked() {
	hidden := len(c.viewers) > 0
	for _, h := range c.viewers {
		if !h {
			hidden = false
			break
		}
	}
	c.engine.SetHidden(hidden)
}

// Unlock opens the gate and runs the pending action on success.
func (c *Controller) Unlock(password string) (models.State, error) {
	err := c.gate.Unlock(password)
	st := c.State()
	c.presenter.PublishState(st)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredential) {
			c.engine.NotifyError("wrong password")
		}
		return st, err
	}
	return st, nil
}

// Lock re-arms the gate.
func (c *Controller) Lock() (models.State, error) {
	if err := c.gate.Lock(); err != nil {
		return models.State{}, err
	}
	st := c.State()
	c.presenter.PublishState(st)
	return st, nil
}

// LockStatus returns the gate state.
func (c *Controller) LockStatus() models.LockStatus {
	return c.gate.Status()
}

// SetCredential changes the lock password.
func (c *Controller) SetCredential(req models.CredentialUpdate) error {
	if appErr := models.Validate(req); appErr != nil {
		return appErr
	}
	if err := c.gate.SetCredential(req.Current, req.Next); err != nil {
		return err
	}
	c.presenter.PublishState(c.State())
	return nil
}

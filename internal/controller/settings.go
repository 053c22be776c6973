package controller

import "github.com/brianhealey/slidepi/internal/models"

// Settings returns the current settings.
func (c *Controller) Settings() models.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Settings
}

// UpdateSettings validates and merges u into the settings. Saving restarts
// the show at the start slide with the new duration.
func (c *Controller) UpdateSettings(u models.SettingsUpdate) (models.Settings, error) {
	if appErr := models.Validate(u); appErr != nil {
		return models.Settings{}, appErr
	}
	if err := c.requireUnlocked(); err != nil {
		return models.Settings{}, err
	}
	snap, err := c.apply(func(s *models.Snapshot) error {
		u.Apply(&s.Settings)
		return nil
	}, c.restartWithSettings)
	if err != nil {
		return models.Settings{}, err
	}
	return snap.Settings, nil
}

// ResetSettings restores the factory settings.
func (c *Controller) ResetSettings() (models.Settings, error) {
	if err := c.requireUnlocked(); err != nil {
		return models.Settings{}, err
	}
	snap, err := c.apply(func(s *models.Snapshot) error {
		s.Settings = models.DefaultSettings()
		return nil
	}, c.restartWithSettings)
	if err != nil {
		return models.Settings{}, err
	}
	return snap.Settings, nil
}

func (c *Controller) restartWithSettings(snap models.Snapshot) {
	if err := c.engine.Retime(snap.Settings.SlideDuration); err != nil {
		c.engine.NotifyError(err.Error())
	}
	c.engine.GoTo(models.ClampIndex(snap.Settings.StartSlide, len(snap.Images)))
}

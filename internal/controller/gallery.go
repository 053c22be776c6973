package controller

import (
	"io"
	"log/slog"
	"strconv"

	"github.com/brianhealey/slidepi/internal/models"
)

// Images returns the image collection in show order.
func (c *Controller) Images() []models.Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.DeepCopy().Images
}

// AddImage stores an upload and appends it to the collection.
func (c *Controller) AddImage(r io.Reader, fileName string) (models.Image, error) {
	if err := c.requireUnlocked(); err != nil {
		return models.Image{}, err
	}
	if c.lib == nil {
		return models.Image{}, models.ErrBadRequest("uploads are disabled")
	}
	img, err := c.lib.Store(r, fileName)
	if err != nil {
		return models.Image{}, err
	}

	_, err = c.apply(func(s *models.Snapshot) error {
		img.ID = s.NextImageID()
		s.Images = append(s.Images, img)
		return nil
	}, c.resync)
	if err != nil {
		return models.Image{}, err
	}
	slog.Info("controller: image added", "id", img.ID, "title", img.Title)
	return img, nil
}

// RenameImage changes the title (slide caption) of image id.
func (c *Controller) RenameImage(id int, u models.ImageUpdate) (models.Image, error) {
	if appErr := models.Validate(u); appErr != nil {
		return models.Image{}, appErr
	}
	if err := c.requireUnlocked(); err != nil {
		return models.Image{}, err
	}
	var out models.Image
	_, err := c.apply(func(s *models.Snapshot) error {
		i := indexOf(s.Images, id)
		if i < 0 {
			return imageNotFound(id)
		}
		s.Images[i].Title = u.Title
		out = s.Images[i]
		return nil
	}, c.resync)
	return out, err
}

// MoveImage moves image id to position to.
func (c *Controller) MoveImage(id int, req models.MoveRequest) ([]models.Image, error) {
	if appErr := models.Validate(req); appErr != nil {
		return nil, appErr
	}
	if err := c.requireUnlocked(); err != nil {
		return nil, err
	}
	snap, err := c.apply(func(s *models.Snapshot) error {
		from := indexOf(s.Images, id)
		if from < 0 {
			return imageNotFound(id)
		}
		if req.To >= len(s.Images) {
			return models.ErrIndexOutOfRange(req.To, len(s.Images))
		}
		img := s.Images[from]
		s.Images = append(s.Images[:from], s.Images[from+1:]...)
		s.Images = append(s.Images[:req.To], append([]models.Image{img}, s.Images[req.To:]...)...)
		return nil
	}, c.resync)
	if err != nil {
		return nil, err
	}
	return snap.Images, nil
}

// DeleteImage removes image id from the collection and deletes its files.
func (c *Controller) DeleteImage(id int) error {
	if err := c.requireUnlocked(); err != nil {
		return err
	}
	var removed models.Image
	_, err := c.apply(func(s *models.Snapshot) error {
		i := indexOf(s.Images, id)
		if i < 0 {
			return imageNotFound(id)
		}
		removed = s.Images[i]
		s.Images = append(s.Images[:i], s.Images[i+1:]...)
		return nil
	}, c.resync)
	if err != nil {
		return err
	}
	if c.lib != nil {
		if err := c.lib.Remove(removed); err != nil {
			slog.Warn("controller: removing media file failed", "id", id, "err", err)
		}
	}
	slog.Info("controller: image deleted", "id", id)
	return nil
}

func indexOf(images []models.Image, id int) int {
	for i, img := range images {
		if img.ID == id {
			return i
		}
	}
	return -1
}

func imageNotFound(id int) *models.AppError {
	return models.ErrNotFound("image " + strconv.Itoa(id) + " not found")
}

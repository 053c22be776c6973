package config

import (
	"log/slog"
	"math"

	"github.com/brianhealey/slidepi/internal/models"
)

// migrateSnapshot repairs values that older or hand-edited snapshots may
// carry: out-of-range settings, a nil image list, missing titles and
// duplicate or unset image IDs.
func migrateSnapshot(snap *models.Snapshot) {
	migrateSettings(&snap.Settings)

	if snap.Images == nil {
		snap.Images = []models.Image{}
	}

	kept := snap.Images[:0]
	for _, img := range snap.Images {
		if img.Src == "" {
			slog.Warn("config: dropping image without source", "id", img.ID)
			continue
		}
		kept = append(kept, img)
	}
	snap.Images = kept

	seen := make(map[int]bool, len(snap.Images))
	for i := range snap.Images {
		img := &snap.Images[i]
		if img.ID <= 0 || seen[img.ID] {
			next := (models.Snapshot{Images: snap.Images}).NextImageID()
			slog.Warn("config: invalid image ID, fixing", "id", img.ID, "index", i, "new_id", next)
			img.ID = next
		}
		seen[img.ID] = true
		if img.Title == "" {
			img.Title = models.TitleFromFileName(img.FileName)
		}
	}
}

func migrateSettings(s *models.Settings) {
	def := models.DefaultSettings()

	if math.IsNaN(s.SlideDuration) || s.SlideDuration < models.MinSlideDuration || s.SlideDuration > models.MaxSlideDuration {
		slog.Warn("config: slide duration out of range, using default", "value", s.SlideDuration)
		s.SlideDuration = def.SlideDuration
	}
	if s.StartSlide < 0 {
		s.StartSlide = 0
	}
	if math.IsNaN(s.TransitionSpeed) || s.TransitionSpeed < 0.1 || s.TransitionSpeed > 5 {
		s.TransitionSpeed = def.TransitionSpeed
	}
	switch s.ImageFit {
	case models.FitCover, models.FitContain, models.FitFill:
	default:
		s.ImageFit = def.ImageFit
	}
	switch s.CaptionPosition {
	case models.CaptionTop, models.CaptionCenter, models.CaptionBottom:
	default:
		s.CaptionPosition = def.CaptionPosition
	}
	if s.FontSize < 12 || s.FontSize > 96 {
		s.FontSize = def.FontSize
	}
}

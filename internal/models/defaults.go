package models

import (
	"log/slog"
	"path"
	"strings"

	"github.com/creasty/defaults"
)

// Caption positions and image fit modes understood by the presentation layer.
const (
	CaptionTop    = "top"
	CaptionCenter = "center"
	CaptionBottom = "bottom"

	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"

	MinSlideDuration = 1.0
	MaxSlideDuration = 60.0
)

// DefaultSettings returns the factory settings: 5s slides starting at the first
// image, progress bar and transitions on, captions at the bottom in 32px.
func DefaultSettings() Settings {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		// Only reachable with a malformed struct tag.
		slog.Error("models: applying settings defaults", "err", err)
	}
	return s
}

// DefaultSnapshot returns the state used when no store file is found:
// default settings and an empty image collection.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Settings: DefaultSettings(),
		Images:   []Image{},
	}
}

// ClampIndex clamps i into [0, count-1]. It returns -1 when count is zero.
func ClampIndex(i, count int) int {
	if count <= 0 {
		return -1
	}
	if i < 0 {
		return 0
	}
	if i > count-1 {
		return count - 1
	}
	return i
}

// TitleFromFileName derives a default image title from an upload name by
// stripping the directory and extension.
func TitleFromFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

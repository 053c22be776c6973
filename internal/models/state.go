// Package models defines the data structures shared by the SlidePi daemon,
// its HTTP API and its clients.
package models

// Image is one entry of the image collection managed through the gallery.
type Image struct {
	ID       int    `json:"id"`
	Src      string `json:"src"`
	Title    string `json:"title"`
	FileName string `json:"file_name,omitempty"` // original upload name
	Stored   string `json:"stored,omitempty"`    // file name inside the media dir
	Thumb    string `json:"thumb,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Taken    string `json:"taken,omitempty"` // EXIF DateTime when present
}

// Slide is the engine's read-only view of an Image.
type Slide struct {
	ID       int    `json:"id"`
	ImageRef string `json:"image_ref"`
	Caption  string `json:"caption"`
}

// SlidesFromImages builds the slide set shown by the engine, preserving order.
func SlidesFromImages(images []Image) []Slide {
	slides := make([]Slide, len(images))
	for i, img := range images {
		slides[i] = Slide{ID: img.ID, ImageRef: img.Src, Caption: img.Title}
	}
	return slides
}

// Settings is the user-editable configuration record.
// The engine only reads SlideDuration and StartSlide; the rest is presentation.
type Settings struct {
	SlideDuration     float64 `json:"slideDuration" default:"5"`
	StartSlide        int     `json:"startSlide"`
	AutoHideControls  bool    `json:"autoHideControls" default:"true"`
	ShowProgress      bool    `json:"showProgress" default:"true"`
	EnableTransitions bool    `json:"enableTransitions" default:"true"`
	TransitionSpeed   float64 `json:"transitionSpeed" default:"1"`
	ImageFit          string  `json:"imageFit" default:"cover"`        // "cover" | "contain" | "fill"
	CaptionPosition   string  `json:"captionPosition" default:"bottom"` // "top" | "center" | "bottom"
	FontSize          int     `json:"fontSize" default:"32"`
}

// PlaybackState is the engine state machine phase.
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// Playback is a point-in-time view of the slideshow engine.
// CurrentIndex is nil exactly when Count is zero.
type Playback struct {
	State           PlaybackState `json:"state"`
	CurrentIndex    *int          `json:"current_index"`
	Count           int           `json:"count"`
	Paused          bool          `json:"paused"`
	Running         bool          `json:"running"`
	Hidden          bool          `json:"hidden"`
	SlideDurationMs int64         `json:"slide_duration_ms"`
	ProgressPercent float64       `json:"progress_percent"`
}

// LockStatus describes the lock gate. Pending is only set while Locked.
type LockStatus struct {
	Locked        bool   `json:"locked"`
	Pending       string `json:"pending,omitempty"`
	HasCredential bool   `json:"has_credential"`
}

// Snapshot is the persisted key-value state: settings plus the image collection.
type Snapshot struct {
	Settings Settings `json:"settings"`
	Images   []Image  `json:"images"`
}

// DeepCopy returns a copy that shares no slices with s.
func (s Snapshot) DeepCopy() Snapshot {
	next := Snapshot{Settings: s.Settings}
	next.Images = make([]Image, len(s.Images))
	copy(next.Images, s.Images)
	return next
}

// NextImageID returns one more than the highest image ID in use.
func (s Snapshot) NextImageID() int {
	maxID := 0
	for _, img := range s.Images {
		if img.ID > maxID {
			maxID = img.ID
		}
	}
	return maxID + 1
}

// Info is the system information response.
type Info struct {
	Version  string  `json:"version"`
	Hostname string  `json:"hostname"`
	Store    string  `json:"store"`
	CPUTempC float64 `json:"cpu_temp_c,omitempty"` // 0 when the platform has no thermal zone
}

// State is the complete system state returned by GET /api.
type State struct {
	Playback   Playback   `json:"playback"`
	Settings   Settings   `json:"settings"`
	Images     []Image    `json:"images"`
	Lock       LockStatus `json:"lock"`
	Fullscreen bool       `json:"fullscreen"`
	Info       Info       `json:"info"`
}

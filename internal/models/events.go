package models

// EventType names the kind of notification pushed to presentation clients.
type EventType string

const (
	EventSlide      EventType = "slide"      // current slide changed; Index set (-1 = placeholder)
	EventProgress   EventType = "progress"   // progress tick; Percent set
	EventPause      EventType = "pause"      // pause state changed; Paused set
	EventCredential EventType = "credential" // a gated action needs the password; Action set
	EventError      EventType = "error"      // user-facing error; Message set
	EventState      EventType = "state"      // full state after a collection/settings/lock change
	EventFullscreen EventType = "fullscreen" // fullscreen toggle requested
	EventSettings   EventType = "settings"   // settings panel may be opened
)

// Event is a single notification delivered over the event bus and SSE.
type Event struct {
	Type    EventType `json:"type"`
	Index   *int      `json:"index,omitempty"`
	Percent *float64  `json:"percent,omitempty"`
	Paused  *bool     `json:"paused,omitempty"`
	Action  string    `json:"action,omitempty"`
	Message string    `json:"message,omitempty"`
	State   *State    `json:"state,omitempty"`
}

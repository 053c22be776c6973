package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SettingsUpdate is the PATCH body for updating settings. Nil fields are left unchanged.
type SettingsUpdate struct {
	SlideDuration     *float64 `json:"slideDuration,omitempty" validate:"omitempty,gte=1,lte=60"`
	StartSlide        *int     `json:"startSlide,omitempty" validate:"omitempty,gte=0"`
	AutoHideControls  *bool    `json:"autoHideControls,omitempty"`
	ShowProgress      *bool    `json:"showProgress,omitempty"`
	EnableTransitions *bool    `json:"enableTransitions,omitempty"`
	TransitionSpeed   *float64 `json:"transitionSpeed,omitempty" validate:"omitempty,gte=0.1,lte=5"`
	ImageFit          *string  `json:"imageFit,omitempty" validate:"omitempty,oneof=cover contain fill"`
	CaptionPosition   *string  `json:"captionPosition,omitempty" validate:"omitempty,oneof=top center bottom"`
	FontSize          *int     `json:"fontSize,omitempty" validate:"omitempty,gte=12,lte=96"`
}

// Apply merges the non-nil fields of u into s.
func (u SettingsUpdate) Apply(s *Settings) {
	if u.SlideDuration != nil {
		s.SlideDuration = *u.SlideDuration
	}
	if u.StartSlide != nil {
		s.StartSlide = *u.StartSlide
	}
	if u.AutoHideControls != nil {
		s.AutoHideControls = *u.AutoHideControls
	}
	if u.ShowProgress != nil {
		s.ShowProgress = *u.ShowProgress
	}
	if u.EnableTransitions != nil {
		s.EnableTransitions = *u.EnableTransitions
	}
	if u.TransitionSpeed != nil {
		s.TransitionSpeed = *u.TransitionSpeed
	}
	if u.ImageFit != nil {
		s.ImageFit = *u.ImageFit
	}
	if u.CaptionPosition != nil {
		s.CaptionPosition = *u.CaptionPosition
	}
	if u.FontSize != nil {
		s.FontSize = *u.FontSize
	}
}

// ImageUpdate is the PATCH body for renaming an image.
type ImageUpdate struct {
	Title string `json:"title" validate:"max=200"`
}

// MoveRequest is the POST body for reordering an image.
type MoveRequest struct {
	To int `json:"to" validate:"gte=0"`
}

// UnlockRequest is the POST body for unlocking the controls.
type UnlockRequest struct {
	Password string `json:"password"`
}

// CredentialUpdate is the PUT body for changing the lock password.
type CredentialUpdate struct {
	Current string `json:"current"`
	Next    string `json:"next" validate:"required,min=4,max=72"`
}

// VisibilityRequest reports whether a viewer's page is hidden. Client is the
// id the page passed to /api/subscribe.
type VisibilityRequest struct {
	Client string `json:"client,omitempty"`
	Hidden bool   `json:"hidden"`
}

// ActionResult is returned by gated endpoints. Pending is set when the
// action was deferred behind the lock.
type ActionResult struct {
	Executed bool   `json:"executed"`
	Pending  string `json:"pending,omitempty"`
	State    *State `json:"state,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its validate struct tags and converts the first
// failure into a BAD_REQUEST AppError naming the field.
func Validate(v any) *AppError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		appErr := ErrBadRequest("invalid " + field + ": failed " + fe.Tag() + " " + fe.Param())
		appErr.Message = strings.TrimSpace(appErr.Message)
		appErr.Field = field
		return appErr
	}
	return ErrBadRequest(err.Error())
}

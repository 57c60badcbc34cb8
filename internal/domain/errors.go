package domain

import "errors"

var (
	ErrPromptGenerationFailed = errors.New("prompt generation failed")
	ErrGenerationFailed       = errors.New("image generation failed")
	ErrInvalidRawImage        = errors.New("invalid raw image")
	ErrRenderFailed           = errors.New("derived render failed")
	// ErrStateConflict marks a regeneration attempted while another one is
	// in flight for the same slot. The scheduler recovers it locally.
	ErrStateConflict = errors.New("regeneration already in flight")
	ErrNotFound      = errors.New("not found")
)

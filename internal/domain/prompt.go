package domain

import (
	"strings"
	"time"
)

// Mode selects where the next prompt comes from.
type Mode string

const (
	ModeManual      Mode = "manual"
	ModeInspiration Mode = "inspiration"
	ModeCreative    Mode = "creative"
)

// ParseMode sanitizes free-form input into a supported mode.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeManual:
		return ModeManual, true
	case ModeInspiration:
		return ModeInspiration, true
	case ModeCreative:
		return ModeCreative, true
	default:
		return "", false
	}
}

// ReferenceImage is an uploaded inspiration image handed to the vision
// collaborator.
type ReferenceImage struct {
	Data       []byte
	MIME       string
	Filename   string
	StorageKey string
}

// GenerationRequest describes what the composer should produce. Only the
// field matching Mode is meaningful: ManualText for manual, Reference for
// inspiration, Theme for creative.
type GenerationRequest struct {
	Mode       Mode
	Theme      string
	ManualText string
	Reference  *ReferenceImage
	// Style and Composition pin the creative axes. Empty values are sampled
	// by the composer.
	Style       string
	Composition string
}

// PromptRecord is one entry of the prompt history.
type PromptRecord struct {
	Text      string    `json:"text"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshState is owned by the scheduler and lives for the process lifetime.
type RefreshState struct {
	LastRefreshAt time.Time     `json:"last_refresh_at"`
	Mode          Mode          `json:"mode"`
	Interval      time.Duration `json:"interval"`
}

// MinRefreshInterval is the smallest interval the frame accepts.
const MinRefreshInterval = 60 * time.Second

// Settings are the operator-controlled knobs of the frame.
type Settings struct {
	Mode         Mode          `json:"mode"`
	ManualPrompt string        `json:"manual_prompt"`
	Theme        string        `json:"theme_prompt"`
	Interval     time.Duration `json:"interval"`
}

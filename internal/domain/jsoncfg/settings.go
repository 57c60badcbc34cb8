package jsoncfg

import (
	"fmt"
	"strings"
	"time"

	"frameart/internal/domain"
)

// SettingsPatch is the JSON body accepted by the settings API. Absent fields
// leave the current value untouched.
type SettingsPatch struct {
	Prompt         string  `json:"prompt"`
	Mode           *string `json:"mode,omitempty"`
	RefreshSeconds *int    `json:"refresh_seconds,omitempty"`
	ThemePrompt    *string `json:"theme_prompt,omitempty"`
}

const (
	// DefaultRefreshSeconds is applied when no interval has been configured.
	DefaultRefreshSeconds = 300
	// MinRefreshSeconds mirrors domain.MinRefreshInterval for the wire format.
	MinRefreshSeconds = 60
	// DefaultManualPrompt seeds manual mode before the operator sets one.
	DefaultManualPrompt = "a cat chasing a dog"
	// DefaultTheme seeds creative mode.
	DefaultTheme = "South Australian landscapes, towns, and coastal regions, including vineyards, " +
		"rolling agricultural hills, historic stone farmhouses, 19th-century Lutheran churches, " +
		"bluestone cottages, rugged coastlines, windswept beaches, estuaries, river gums, " +
		"wildlife such as kangaroos and blue fairy wrens, cottage gardens, native flowers, " +
		"olive groves, sheep paddocks, dusty backroads, outback colours, quaint main streets, " +
		"markets, cafes, and winery views, all evoking a sense of place, sunlight, texture, " +
		"and everyday beauty unique to regional South Australia."
)

// DefaultSettings is the state of a freshly started frame.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Mode:         domain.ModeCreative,
		ManualPrompt: DefaultManualPrompt,
		Theme:        DefaultTheme,
		Interval:     DefaultRefreshSeconds * time.Second,
	}
}

// Normalize trims text fields, clamps the interval and validates the mode.
func (p *SettingsPatch) Normalize() error {
	if p == nil {
		return nil
	}
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.ThemePrompt != nil {
		theme := strings.TrimSpace(*p.ThemePrompt)
		p.ThemePrompt = &theme
	}
	if p.RefreshSeconds != nil && *p.RefreshSeconds < MinRefreshSeconds {
		clamped := MinRefreshSeconds
		p.RefreshSeconds = &clamped
	}
	if p.Mode != nil {
		mode, ok := domain.ParseMode(*p.Mode)
		if !ok {
			return fmt.Errorf("unsupported mode %q", *p.Mode)
		}
		normalized := string(mode)
		p.Mode = &normalized
	}
	return nil
}

// ApplyTo merges the patch into the current settings.
func (p SettingsPatch) ApplyTo(cur domain.Settings) domain.Settings {
	next := cur
	if p.Prompt != "" {
		next.ManualPrompt = p.Prompt
	}
	if p.ThemePrompt != nil && *p.ThemePrompt != "" {
		next.Theme = *p.ThemePrompt
	}
	if p.RefreshSeconds != nil {
		next.Interval = time.Duration(*p.RefreshSeconds) * time.Second
	}
	if p.Mode != nil {
		if mode, ok := domain.ParseMode(*p.Mode); ok {
			next.Mode = mode
		}
	}
	if next.Interval < domain.MinRefreshInterval {
		next.Interval = domain.MinRefreshInterval
	}
	return next
}

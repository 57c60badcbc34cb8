// Package history keeps the bounded record of recently used prompts so the
// composer can steer the language model away from repeating itself.
package history

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"frameart/internal/domain"
)

// DefaultSize is the retention bound used when Options.Size is not positive.
const DefaultSize = 20

type Options struct {
	Size int
	Now  func() time.Time
}

// History is a count-bounded, most-recent-last log of prompt records.
// The zero value is not usable; construct with New.
type History struct {
	mu      sync.Mutex
	records []domain.PromptRecord
	size    int
	now     func() time.Time
	fold    cases.Caser
}

func New(opts Options) *History {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &History{
		size: size,
		now:  now,
		fold: cases.Fold(),
	}
}

// Size returns the retention bound.
func (h *History) Size() int {
	return h.size
}

// Record appends a prompt and evicts the oldest entries beyond the bound.
func (h *History) Record(text, subject string) domain.PromptRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := domain.PromptRecord{
		Text:      strings.TrimSpace(text),
		Subject:   h.normalizeLocked(subject),
		CreatedAt: h.now(),
	}
	h.records = append(h.records, rec)
	if len(h.records) > h.size {
		h.records = append([]domain.PromptRecord(nil), h.records[len(h.records)-h.size:]...)
	}
	return rec
}

// Recent returns the retained records, most recent first.
func (h *History) Recent() []domain.PromptRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.PromptRecord, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0; i-- {
		out = append(out, h.records[i])
	}
	return out
}

// RecentPrompts returns the retained prompt texts, most recent first.
func (h *History) RecentPrompts() []string {
	recs := h.Recent()
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.Text != "" {
			out = append(out, r.Text)
		}
	}
	return out
}

// RecentSubjects returns the distinct retained subject tags, most recent
// first. Empty tags are skipped.
func (h *History) RecentSubjects() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{}, len(h.records))
	out := make([]string, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0; i-- {
		s := h.records[i].Subject
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Contains reports whether subject matches a retained tag after folding.
func (h *History) Contains(subject string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.normalizeLocked(subject)
	if s == "" {
		return false
	}
	for _, r := range h.records {
		if r.Subject == s {
			return true
		}
	}
	return false
}

// Len returns the number of retained records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Normalize folds case and collapses whitespace the same way Record does.
func (h *History) Normalize(subject string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.normalizeLocked(subject)
}

// Caser is stateful, so it is only used under the mutex.
func (h *History) normalizeLocked(subject string) string {
	fields := strings.Fields(subject)
	if len(fields) == 0 {
		return ""
	}
	return h.fold.String(strings.Join(fields, " "))
}

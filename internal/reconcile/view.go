package reconcile

import (
	"github.com/nagham05/chatterly/internal/model"
)

// View is the reconciled projection for the open conversation. Everything in
// it is recomputed from the merged state on each change; nothing is patched
// in place.
type View struct {
	Messages []model.Message `json:"messages"`
	Pending  []model.Message `json:"pending,omitempty"`
	Sections []DaySection    `json:"sections,omitempty"`
	Media    []model.Message `json:"media,omitempty"`

	// IndexNotReady means at least one source hit a missing server-side
	// index; the caller shows "setup in progress", not an error or an empty
	// conversation.
	IndexNotReady bool  `json:"index_not_ready,omitempty"`
	Err           error `json:"-"`
}

// DaySection marks a date-separator boundary in the timeline.
type DaySection struct {
	Day      string          `json:"day"` // YYYY-MM-DD, UTC
	Messages []model.Message `json:"messages"`
}

func sectionsByDay(msgs []model.Message) []DaySection {
	var out []DaySection
	for _, m := range msgs {
		day := m.SentAt.Time().Format("2006-01-02")
		if len(out) == 0 || out[len(out)-1].Day != day {
			out = append(out, DaySection{Day: day})
		}
		last := &out[len(out)-1]
		last.Messages = append(last.Messages, m)
	}
	return out
}

func sharedMedia(msgs []model.Message) []model.Message {
	var out []model.Message
	for _, m := range msgs {
		if m.Type.IsMedia() {
			out = append(out, m)
		}
	}
	return out
}

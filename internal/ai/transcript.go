package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/face-recall/internal/database"
)

// DateLayout is the day format accepted for date filters and used for grouping.
const DateLayout = "2006-01-02"

// ErrFutureDate is returned for a summary date after today.
var ErrFutureDate = errors.New("cannot fetch conversations from future dates")

// ParseDay parses a YYYY-MM-DD day in now's location and rejects days after today.
func ParseDay(s string, now time.Time) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.After(today) {
		return time.Time{}, ErrFutureDate
	}
	return day, nil
}

// FilterByDate keeps the entries whose timestamp falls on day (in day's location).
// Entries without text are dropped.
func FilterByDate(entries []database.TranscriptEntry, day time.Time) []database.TranscriptEntry {
	want := day.Format(DateLayout)
	var out []database.TranscriptEntry
	for _, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		if e.Timestamp.In(day.Location()).Format(DateLayout) == want {
			out = append(out, e)
		}
	}
	return out
}

// FormatTranscript renders one "[timestamp] text" line per entry.
func FormatTranscript(entries []database.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s", e.Timestamp.Format(time.RFC3339), text)
	}
	return b.String()
}

// GroupByDate buckets entries per day, in loc.
func GroupByDate(entries []database.TranscriptEntry, loc *time.Location) map[string][]database.TranscriptEntry {
	out := make(map[string][]database.TranscriptEntry)
	for _, e := range entries {
		day := e.Timestamp.In(loc).Format(DateLayout)
		out[day] = append(out[day], e)
	}
	return out
}

// Summary is a summarized conversation, optionally restricted to one day.
type Summary struct {
	PatientID     string                                `json:"patient_id"`
	KnownPersonID string                                `json:"known_person_id"`
	Date          string                                `json:"date,omitempty"`
	Summary       string                                `json:"summary"`
	MessageCount  int                                   `json:"total_messages"`
	TextLength    int                                   `json:"conversation_length"`
	Messages      []database.TranscriptEntry            `json:"original_messages"`
	ByDate        map[string][]database.TranscriptEntry `json:"messages_by_date,omitempty"`
	Dates         []string                              `json:"conversation_dates,omitempty"`
}

// SummarizeConversation summarizes conv, restricted to day when day is non-zero.
// A conversation without matching entries yields an empty Summary.Summary and no
// model call.
func SummarizeConversation(ctx context.Context, s Summarizer, conv *database.Conversation, day time.Time) (*Summary, error) {
	out := &Summary{}
	var entries []database.TranscriptEntry
	if conv != nil {
		out.PatientID = conv.PatientID
		out.KnownPersonID = conv.KnownPersonID
		entries = conv.Entries
	}

	if !day.IsZero() {
		out.Date = day.Format(DateLayout)
		entries = FilterByDate(entries, day)
	} else {
		entries = nonEmpty(entries)
		out.ByDate = GroupByDate(entries, time.Local)
		for d := range out.ByDate {
			out.Dates = append(out.Dates, d)
		}
		sort.Strings(out.Dates)
	}

	out.Messages = entries
	out.MessageCount = len(entries)
	if len(entries) == 0 {
		return out, nil
	}

	text := FormatTranscript(entries)
	out.TextLength = len(text)

	summary, err := s.Summarize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("summarize conversation: %w", err)
	}
	out.Summary = summary
	return out, nil
}

func nonEmpty(entries []database.TranscriptEntry) []database.TranscriptEntry {
	out := make([]database.TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Text) != "" {
			out = append(out, e)
		}
	}
	return out
}
